package profiler

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingLog keeps every line written to it.
type recordingLog struct {
	mu     sync.Mutex
	lines  []string
	closed bool
}

var _ logs.Log = (*recordingLog)(nil)

func (l *recordingLog) add(level, format string, a ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprintf(format, a...))
}

func (l *recordingLog) Close()                                    { l.closed = true }
func (l *recordingLog) Debugf(format string, a ...interface{})    { l.add("D", format, a...) }
func (l *recordingLog) Infof(format string, a ...interface{})     { l.add("I", format, a...) }
func (l *recordingLog) Warnf(format string, a ...interface{})     { l.add("W", format, a...) }
func (l *recordingLog) Errorf(format string, a ...interface{})    { l.add("E", format, a...) }
func (l *recordingLog) Criticalf(format string, a ...interface{}) { l.add("C", format, a...) }

func (l *recordingLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func TestRecordStats(t *testing.T) {
	p := NewProfiler(logs.NewTestingLog(t), ProfilingOptions{})

	for _, ms := range []int{4, 2, 6} {
		p.Record("resize", time.Duration(ms)*time.Millisecond)
	}

	s, ok := p.Stage("resize")
	require.True(t, ok)
	assert.Equal(t, int64(3), s.Count)
	assert.Equal(t, 3, s.Samples)
	assert.Equal(t, 2*time.Millisecond, s.Min)
	assert.Equal(t, 4*time.Millisecond, s.Avg)
	assert.Equal(t, 6*time.Millisecond, s.Max)
	assert.Equal(t, 6*time.Millisecond, s.Last)

	_, ok = p.Stage("nms")
	assert.False(t, ok)
}

func TestSampleWindow(t *testing.T) {
	p := NewProfiler(nil, ProfilingOptions{MaxSamples: 2})

	p.Record("conv", 10*time.Millisecond)
	p.Record("conv", 20*time.Millisecond)
	p.Record("conv", 40*time.Millisecond)
	p.Record("conv", 60*time.Millisecond)

	// The average covers the last two; extremes cover every sample.
	s, _ := p.Stage("conv")
	assert.Equal(t, int64(4), s.Count)
	assert.Equal(t, 2, s.Samples)
	assert.Equal(t, 50*time.Millisecond, s.Avg)
	assert.Equal(t, 10*time.Millisecond, s.Min)
	assert.Equal(t, 60*time.Millisecond, s.Max)
}

func TestBeginEnd(t *testing.T) {
	p := NewProfiler(nil, ProfilingOptions{})

	p.Begin("decode")
	time.Sleep(2 * time.Millisecond)
	d, err := p.End("decode")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, d, 2*time.Millisecond)

	s, ok := p.Stage("decode")
	require.True(t, ok)
	assert.Equal(t, d, s.Last)

	// The stage is closed by End.
	_, err = p.End("decode")
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = p.End("never")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestStartOperationConcurrent(t *testing.T) {
	p := NewProfiler(nil, ProfilingOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				done := p.StartOperation("nms")
				done()
			}
		}()
	}
	wg.Wait()

	s, ok := p.Stage("nms")
	require.True(t, ok)
	assert.Equal(t, int64(800), s.Count)
	assert.Equal(t, 600, s.Samples)
}

func TestStatsSortedAndReset(t *testing.T) {
	p := NewProfiler(nil, ProfilingOptions{})
	p.Record("resize", time.Millisecond)
	p.Record("decode", time.Millisecond)
	p.Record("nms", time.Millisecond)

	var names []string
	for _, s := range p.Stats() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"decode", "nms", "resize"}, names)

	p.Begin("open")
	p.Reset()
	assert.Empty(t, p.Stats())
	_, err := p.End("open")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestReport(t *testing.T) {
	log := &recordingLog{}
	p := NewProfiler(NewPrefixLogger(log, "profiler:"), ProfilingOptions{})
	p.Record("resize", 3*time.Millisecond)
	p.Record("decode", time.Millisecond)

	p.Report()

	lines := log.snapshot()
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "I profiler: uptime "), lines[0])
	assert.Equal(t, "I profiler: decode: avg=1ms, min=1ms, max=1ms, last=1ms, count=1", lines[1])
	assert.Equal(t, "I profiler: resize: avg=3ms, min=3ms, max=3ms, last=3ms, count=1", lines[2])
}

func TestPeriodicReport(t *testing.T) {
	log := &recordingLog{}
	p := NewProfiler(log, ProfilingOptions{ReportInterval: 5 * time.Millisecond})
	p.Record("conv", time.Millisecond)

	p.Start()
	p.Start()
	assert.Eventually(t, func() bool { return len(log.snapshot()) >= 4 }, time.Second, time.Millisecond)
	p.Stop()
	p.Stop()

	// Stopped for good: no further reports.
	n := len(log.snapshot())
	p.Start()
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, log.snapshot(), n)
}

func TestNilProfiler(t *testing.T) {
	var p *Profiler
	p.Start()
	p.Begin("x")
	_, err := p.End("x")
	assert.NoError(t, err)
	p.StartOperation("x")()
	p.Record("x", time.Second)
	p.Report()
	p.Reset()
	p.Stop()
	assert.Nil(t, p.Stats())
}

func TestPrefixLogger(t *testing.T) {
	log := &recordingLog{}
	l := NewPrefixLogger(log, "webcam:")

	l.Debugf("a %d", 1)
	l.Infof("b")
	l.Warnf("c")
	l.Errorf("d")
	l.Criticalf("e")
	l.Close()

	assert.Equal(t, []string{"D webcam: a 1", "I webcam: b", "W webcam: c", "E webcam: d", "C webcam: e"}, log.snapshot())
	assert.True(t, log.closed)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2<<20))
}

func BenchmarkStartOperation(b *testing.B) {
	p := NewProfiler(nil, ProfilingOptions{})
	for i := 0; i < b.N; i++ {
		p.StartOperation("stage")()
	}
}
