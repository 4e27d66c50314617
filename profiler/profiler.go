// Package profiler - named stage timers for the preprocessing and decoding
// pipeline, with running min/avg/max statistics and a periodic log report.
package profiler

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/pkg/errors"
)

// ErrNotStarted is returned by End for a stage without a matching Begin.
var ErrNotStarted = errors.New("profiler: stage not started")

// ProfilingOptions configures the profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to emit status reports (default: 2s)
	ReportInterval time.Duration `json:"reportInterval" yaml:"reportInterval"`
	// MaxSamples specifies how many durations per stage the average covers
	// (default: 600)
	MaxSamples int `json:"maxSamples" yaml:"maxSamples"`
}

// StageStats is a snapshot of one stage.
type StageStats struct {
	Name string
	// Count is the number of durations ever recorded.
	Count int64
	// Samples is the number of durations the average covers.
	Samples int
	Min     time.Duration
	Avg     time.Duration
	Max     time.Duration
	// Last is the most recent duration.
	Last time.Duration
}

func (s StageStats) String() string {
	return fmt.Sprintf("%s: avg=%v, min=%v, max=%v, last=%v, count=%d", s.Name,
		s.Avg.Truncate(time.Microsecond), s.Min.Truncate(time.Microsecond),
		s.Max.Truncate(time.Microsecond), s.Last.Truncate(time.Microsecond), s.Count)
}

// timeTracker keeps a window of durations and lifetime extremes.
type timeTracker struct {
	durations []time.Duration
	next      int
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	lastTime  time.Duration
	count     int64
}

func (t *timeTracker) add(d time.Duration, maxSamples int) {
	if t.count == 0 || d < t.minTime {
		t.minTime = d
	}
	if d > t.maxTime {
		t.maxTime = d
	}
	t.lastTime = d
	t.count++

	if len(t.durations) < maxSamples {
		t.durations = append(t.durations, d)
		t.totalTime += d
		return
	}
	// Window full: overwrite the oldest sample.
	t.totalTime += d - t.durations[t.next]
	t.durations[t.next] = d
	t.next = (t.next + 1) % maxSamples
}

func (t *timeTracker) stats(name string) StageStats {
	s := StageStats{
		Name:    name,
		Count:   t.count,
		Samples: len(t.durations),
		Min:     t.minTime,
		Max:     t.maxTime,
		Last:    t.lastTime,
	}
	if len(t.durations) > 0 {
		s.Avg = t.totalTime / time.Duration(len(t.durations))
	}
	return s
}

// Profiler times named pipeline stages.
//
// Stages are timed either with StartOperation, which returns the function
// that stops the timer and is safe from any goroutine, or with Begin and End
// pairs keyed by stage name, which suit a single loop timing its own steps.
// A nil *Profiler accepts every call and records nothing.
type Profiler struct {
	log            logs.Log
	reportInterval time.Duration
	maxSamples     int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	startTime   time.Time
	stages      map[string]*timeTracker
	open        map[string]time.Time
	memStats    runtime.MemStats
	lastGCCount uint32
}

// NewProfiler creates a profiler that reports to log.
//
// Arguments:
// - log: Destination of the periodic report.
// - opts: Configuration options for the profiler.
//
// Returns:
// - A configured Profiler. Call Start for periodic reports.
//
// @example
// prof := profiler.NewProfiler(profiler.NewPrefixLogger(log, "profiler:"), profiler.ProfilingOptions{})
// prof.Start()
// defer prof.Stop()
func NewProfiler(log logs.Log, opts ProfilingOptions) *Profiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 2 * time.Second
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Profiler{
		log:            log,
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		stages:         make(map[string]*timeTracker),
		open:           make(map[string]time.Time),
	}
}

// Start begins emitting a report every ReportInterval. Calling it again
// while running does nothing.
func (p *Profiler) Start() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.ctx.Err() != nil {
		return
	}
	p.running = true
	p.startTime = time.Now()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				p.Report()
			}
		}
	}()
}

// Stop ends periodic reporting and waits for the report goroutine. A stopped
// profiler still records stages but cannot be started again.
func (p *Profiler) Stop() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

// StartOperation begins timing one run of a stage.
//
// Arguments:
// - name: The name of the stage.
//
// Returns:
// - A function to call when the stage completes.
//
// @example
// done := prof.StartOperation("resize")
// err := images.ResizeEmbed(tensor, params, frame, box, images.OrderRGB, pool)
// done()
func (p *Profiler) StartOperation(name string) func() {
	if p == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		p.Record(name, time.Since(start))
	}
}

// Begin marks the start of a stage. A second Begin before End restarts it.
func (p *Profiler) Begin(name string) {
	if p == nil {
		return
	}
	now := time.Now()
	p.mu.Lock()
	p.open[name] = now
	p.mu.Unlock()
}

// End records the time since the matching Begin.
func (p *Profiler) End(name string) (time.Duration, error) {
	if p == nil {
		return 0, nil
	}
	now := time.Now()

	p.mu.Lock()
	start, ok := p.open[name]
	if !ok {
		p.mu.Unlock()
		return 0, errors.Wrapf(ErrNotStarted, "%q", name)
	}
	delete(p.open, name)
	d := now.Sub(start)
	p.record(name, d)
	p.mu.Unlock()
	return d, nil
}

// Record adds one duration to a stage.
func (p *Profiler) Record(name string, d time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.record(name, d)
	p.mu.Unlock()
}

func (p *Profiler) record(name string, d time.Duration) {
	tracker, ok := p.stages[name]
	if !ok {
		tracker = &timeTracker{durations: make([]time.Duration, 0, min(p.maxSamples, 64))}
		p.stages[name] = tracker
	}
	tracker.add(d, p.maxSamples)
}

// Stage returns the statistics of one stage.
func (p *Profiler) Stage(name string) (StageStats, bool) {
	if p == nil {
		return StageStats{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	tracker, ok := p.stages[name]
	if !ok {
		return StageStats{}, false
	}
	return tracker.stats(name), true
}

// Stats returns every stage, sorted by name.
func (p *Profiler) Stats() []StageStats {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := make([]StageStats, 0, len(p.stages))
	for name, tracker := range p.stages {
		stats = append(stats, tracker.stats(name))
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Reset forgets every stage.
func (p *Profiler) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	clear(p.stages)
	clear(p.open)
	p.mu.Unlock()
}

// Report writes the stage timings and memory use to the log.
func (p *Profiler) Report() {
	if p == nil || p.log == nil {
		return
	}
	stats := p.Stats()

	p.mu.Lock()
	runtime.ReadMemStats(&p.memStats)
	uptime := time.Since(p.startTime)
	alloc, heapObjects := p.memStats.Alloc, p.memStats.HeapObjects
	gcCycles, newGC := p.memStats.NumGC, p.memStats.NumGC-p.lastGCCount
	p.lastGCCount = p.memStats.NumGC
	p.mu.Unlock()

	p.log.Infof("uptime %v, goroutines %d, alloc %s, heap objects %d, gc cycles %d (new: %d)",
		uptime.Truncate(time.Millisecond), runtime.NumGoroutine(), formatBytes(alloc), heapObjects, gcCycles, newGC)
	for _, s := range stats {
		p.log.Infof("%v", s)
	}
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
