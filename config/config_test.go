package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-nnaccel/images"
	"github.com/nvr-ai/go-nnaccel/models/model"
	"github.com/nvr-ai/go-nnaccel/models/model/preprocess"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 416, c.Preprocess.InputWidth)
	assert.Equal(t, model.FamilyVOC, c.Detector.Family)
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
threads: 2
debug: true
detector:
  name: yolo-v2-coco
  family: coco
  classes: 80
  inputWidth: 608
  inputHeight: 608
preprocess:
  inputWidth: 608
  inputHeight: 608
  colorMode: 1
profiler:
  reportInterval: 5s
  maxSamples: 100
`))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Threads)
	assert.True(t, c.Debug)
	assert.Equal(t, model.FamilyCOCO, c.Detector.Family)
	assert.Equal(t, preprocess.ColorModeBGR, c.Preprocess.ColorMode)
	// Fields the file leaves out keep their defaults.
	assert.True(t, c.Preprocess.KeepAspectRatio)
	assert.Equal(t, float32(0.4), c.Detector.NMS.IoUThreshold)
	assert.Equal(t, 5*time.Second, c.Profiler.ReportInterval)
	assert.Equal(t, 100, c.Profiler.MaxSamples)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"syntax", "threads: [1"},
		{"size mismatch", "preprocess:\n  inputWidth: 320\n"},
		{"detector", "detector:\n  coords: 1\n"},
		{"preprocess", "preprocess:\n  colorMode: 9\n"},
		{"profiler", "profiler:\n  maxSamples: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("preprocess:\n  inputWidth: 320\n"))
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = Parse([]byte("detector:\n  coords: 1\n"))
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
	_, err = Parse([]byte("preprocess:\n  colorMode: 9\n"))
	assert.ErrorIs(t, err, preprocess.ErrInvalidArgument)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nnaccel.yaml")

	c := Default()
	c.Threads = 3
	c.Profiler.ReportInterval = 10 * time.Second
	require.NoError(t, c.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBuilders(t *testing.T) {
	c := Default()
	c.Threads = 2
	c.Debug = true

	pool := c.NewPool()
	require.NotNil(t, pool)
	defer pool.Close()
	assert.Equal(t, 2, pool.Threads())

	p, err := c.NewPreprocessor(pool, logs.NewTestingLog(t))
	require.NoError(t, err)
	result, err := p.PreprocessFrame(images.FormatRGB, make([]byte, 64*48*3), 64, 48)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 416, 416}, result.Shape)

	prof := c.NewProfiler(logs.NewTestingLog(t))
	prof.Record("frame", time.Millisecond)
	prof.Report()

	c.Threads = -1
	assert.Nil(t, c.NewPool())

	// Without a log the builders still work, with debug output off.
	_, err = c.NewPreprocessor(nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, c.NewProfiler(nil))
}
