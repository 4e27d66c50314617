// Package config - process level configuration: worker threads, logging,
// the detector and its preprocessor, loaded from one YAML file.
package config

import (
	"os"

	"github.com/cyclopcam/logs"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-nnaccel/compute"
	"github.com/nvr-ai/go-nnaccel/models/model"
	"github.com/nvr-ai/go-nnaccel/models/model/preprocess"
	"github.com/nvr-ai/go-nnaccel/profiler"
)

// ErrInvalid is returned for configs that fail validation.
var ErrInvalid = errors.New("config: invalid")

// Config is the top level configuration file.
type Config struct {
	// Threads is the worker pool size. Zero means one per CPU, and a negative
	// value runs every kernel serially.
	Threads int `json:"threads" yaml:"threads"`
	// Debug enables per frame debug logging.
	Debug bool `json:"debug" yaml:"debug"`

	Detector   model.Config              `json:"detector" yaml:"detector"`
	Preprocess preprocess.ModelConfig    `json:"preprocess" yaml:"preprocess"`
	Profiler   profiler.ProfilingOptions `json:"profiler" yaml:"profiler"`
}

// Default returns the tiny YOLOv2 VOC setup at 416x416.
func Default() *Config {
	detector := model.DefaultConfig()
	return &Config{
		Detector:   *detector,
		Preprocess: *preprocess.GetYOLOConfig(detector.InputWidth),
	}
}

// Validate checks every section and that the preprocessor produces what the
// detector consumes.
func (c *Config) Validate() error {
	if err := c.Detector.Validate(); err != nil {
		return errors.WithMessage(err, "detector")
	}
	if err := c.Preprocess.Validate(); err != nil {
		return errors.WithMessage(err, "preprocess")
	}
	if c.Preprocess.InputWidth != c.Detector.InputWidth || c.Preprocess.InputHeight != c.Detector.InputHeight {
		return errors.Wrapf(ErrInvalid, "preprocess output %dx%d does not match detector input %dx%d",
			c.Preprocess.InputWidth, c.Preprocess.InputHeight, c.Detector.InputWidth, c.Detector.InputHeight)
	}
	if c.Profiler.ReportInterval < 0 || c.Profiler.MaxSamples < 0 {
		return errors.Wrap(ErrInvalid, "negative profiler option")
	}
	return nil
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(ErrInvalid, "yaml: %v", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads and parses a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "config %s", path)
	}
	return c, nil
}

// Save writes c as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write config %s", path)
}

// NewPool returns the worker pool the config asks for, nil when Threads is
// negative. The caller closes it.
func (c *Config) NewPool() *compute.Pool {
	if c.Threads < 0 {
		return nil
	}
	return compute.NewPool(c.Threads)
}

// NewPreprocessor builds the preprocessor, logging through log with a
// "preprocess:" prefix when Debug is set.
func (c *Config) NewPreprocessor(pool *compute.Pool, log logs.Log) (*preprocess.Preprocessor, error) {
	var plog logs.Log
	if log != nil {
		plog = profiler.NewPrefixLogger(log, "preprocess:")
	}
	p, err := preprocess.NewPreprocessor(&c.Preprocess, pool, plog)
	if err != nil {
		return nil, err
	}
	p.SetDebugMode(c.Debug)
	return p, nil
}

// NewProfiler builds the stage profiler, reporting through log with a
// "profiler:" prefix.
func (c *Config) NewProfiler(log logs.Log) *profiler.Profiler {
	var plog logs.Log
	if log != nil {
		plog = profiler.NewPrefixLogger(log, "profiler:")
	}
	return profiler.NewProfiler(plog, c.Profiler)
}
