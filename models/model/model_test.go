package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-nnaccel/common/orderedlist"
	"github.com/nvr-ai/go-nnaccel/models/postprocess"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())

	w, h := c.Grid()
	assert.Equal(t, 13, w)
	assert.Equal(t, 13, h)
	assert.Equal(t, 5, c.NumAnchors())
	assert.Equal(t, 13*13*5*25, c.OutputSize())
	assert.Equal(t, "person", c.ClassName(14))
	assert.Equal(t, "", c.ClassName(20))

	coco := COCOConfig(608)
	require.NoError(t, coco.Validate())
	w, _ = coco.Grid()
	assert.Equal(t, 19, w)
	assert.Equal(t, "person", coco.ClassName(0))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		err    error
	}{
		{"input", func(c *Config) { c.InputWidth = 0 }, ErrInvalidConfig},
		{"grid", func(c *Config) { c.InputHeight = 16 }, ErrInvalidConfig},
		{"odd anchors", func(c *Config) { c.Anchors = c.Anchors[:3] }, ErrInvalidConfig},
		{"no anchors", func(c *Config) { c.Anchors = nil }, ErrInvalidConfig},
		{"negative anchor", func(c *Config) { c.Anchors[1] = -1 }, ErrInvalidConfig},
		{"coords", func(c *Config) { c.Coords = 2 }, ErrInvalidConfig},
		{"threshold", func(c *Config) { c.ConfidenceThreshold = 1 }, ErrInvalidConfig},
		{"nms", func(c *Config) { c.NMS.IoUThreshold = 1.5 }, ErrInvalidConfig},
		{"class count", func(c *Config) { c.Classes = 80 }, ErrInvalidConfig},
		{"family", func(c *Config) { c.Family = "imagenet" }, ErrUnknownFamily},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), tt.err)
		})
	}

	// A config without a family skips the class set check.
	c := DefaultConfig()
	c.Family = ""
	c.Classes = 3
	assert.NoError(t, c.Validate())
	assert.Equal(t, "", c.ClassName(0))

	var nilConfig *Config
	assert.ErrorIs(t, nilConfig.Validate(), ErrInvalidConfig)
}

func TestConfigGridOverride(t *testing.T) {
	c := DefaultConfig()
	c.GridWidth, c.GridHeight = 26, 26
	w, h := c.Grid()
	assert.Equal(t, 26, w)
	assert.Equal(t, 26, h)
	assert.Equal(t, 26*26*5*25, c.OutputSize())
}

func TestConfigLayer(t *testing.T) {
	c := DefaultConfig()
	c.Family = ""
	c.InputWidth, c.InputHeight = 64, 64
	c.Anchors = []float32{1, 1}
	c.Classes = 2

	output := make([]float32, c.OutputSize())
	layer, err := c.Layer(output)
	require.NoError(t, err)
	assert.Equal(t, 2, layer.W)
	assert.Equal(t, 1, layer.N)
	assert.Equal(t, c.OutputSize(), layer.Outputs)

	// Cell 3, objectness 0.9, class 1 at 0.8.
	for entry, v := range []float32{0.5, 0.5, 0, 0, 0.9, 0.1, 0.8} {
		output[layer.EntryIndex(0, 3, entry)] = v
	}
	param, err := postprocess.StretchCorrectParam(64, 64)
	require.NoError(t, err)
	list := orderedlist.NewSafe[postprocess.ObjectBox](postprocess.CompareProb)
	require.NoError(t, postprocess.ParseObjectBoxes(layer, param, c.ConfidenceThreshold, c.NMS.IoUThreshold, list))

	boxes := list.Values()
	require.Len(t, boxes, 1)
	assert.Equal(t, 1, boxes[0].ClassID)
	assert.InDelta(t, 0.72, boxes[0].Prob, 1e-6)

	_, err = c.Layer(output[:10])
	assert.ErrorIs(t, err, postprocess.ErrInvalidArgument)

	c.Coords = 0
	_, err = c.Layer(output)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
name: yolo-v2-coco
family: coco
inputWidth: 608
inputHeight: 608
classes: 80
confidenceThreshold: 0.3
nms:
  iouThreshold: 0.45
  indexed: true
`))
	require.NoError(t, err)
	assert.Equal(t, NameYOLOv2COCO, c.Name)
	assert.Equal(t, FamilyCOCO, c.Family)
	assert.Equal(t, float32(0.3), c.ConfidenceThreshold)
	assert.True(t, c.NMS.Indexed)
	// Unset fields keep their defaults.
	assert.Equal(t, 5, c.NumAnchors())
	assert.Equal(t, 4, c.Coords)

	_, err = Parse([]byte("classes: [1, 2"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Parse([]byte("classes: 80"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("inputWidth: 320\ninputHeight: 320\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	w, _ := c.Grid()
	assert.Equal(t, 10, w)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestClassManager(t *testing.T) {
	m := DefaultClassManager

	name, err := m.GetName(FamilyVOC, 14)
	require.NoError(t, err)
	assert.Equal(t, "person", name)

	idx, err := m.GetIndex(FamilyCOCO, "dog")
	require.NoError(t, err)
	assert.Equal(t, 16, idx)

	// VOC "dog" (11) is COCO "dog" (16).
	mapped, err := m.MapClass(FamilyVOC, 11, FamilyCOCO)
	require.NoError(t, err)
	assert.Equal(t, OutputClass{Index: 16, Name: "dog"}, mapped)

	// "aeroplane" has no COCO counterpart under that name.
	_, err = m.MapClass(FamilyVOC, 0, FamilyCOCO)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = m.GetName("imagenet", 0)
	assert.ErrorIs(t, err, ErrUnknownFamily)
	_, err = m.GetName(FamilyCOCO, 80)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.Len(t, COCOClasses.Names(), 80)
	assert.Equal(t, "tvmonitor", VOCClasses.Names()[19])
	assert.Equal(t, "", LookupName("imagenet", 0))
}
