// Package model - Definitions for region layer detectors: network input,
// layer shape, anchors, thresholds and output class sets.
package model

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-nnaccel/models/postprocess"
)

var (
	// ErrInvalidConfig is returned for configs that cannot describe a detector.
	ErrInvalidConfig = errors.New("model: invalid config")
	// ErrUnknownFamily is returned for families without a class set.
	ErrUnknownFamily = errors.New("model: unknown family")
)

// Family is the family of models, which fixes the class set.
type Family string

const (
	// FamilyCOCO is the 80 class COCO family.
	FamilyCOCO Family = "coco"
	// FamilyVOC is the 20 class Pascal VOC family.
	FamilyVOC Family = "voc"
)

// Name is the unique identifier of a model.
type Name string

const (
	// NameTinyYOLOv2VOC is the name of the tiny YOLOv2 VOC model.
	NameTinyYOLOv2VOC Name = "tiny-yolo-v2-voc"
	// NameYOLOv2COCO is the name of the YOLOv2 COCO model.
	NameYOLOv2COCO Name = "yolo-v2-coco"
)

// Stride is the downsampling factor between the network input and the
// region grid.
const Stride = 32

// Config describes one region layer detector.
type Config struct {
	Name   Name   `json:"name" yaml:"name"`
	Family Family `json:"family" yaml:"family"`
	// Path of the weights, for the forward pass driver.
	Path string `json:"path" yaml:"path"`

	InputWidth  int `json:"inputWidth" yaml:"inputWidth"`
	InputHeight int `json:"inputHeight" yaml:"inputHeight"`
	// GridWidth and GridHeight default to the input size over Stride.
	GridWidth  int `json:"gridWidth" yaml:"gridWidth"`
	GridHeight int `json:"gridHeight" yaml:"gridHeight"`

	// Anchors are (w, h) pairs in grid cells, one pair per anchor.
	Anchors    []float32 `json:"anchors" yaml:"anchors"`
	Classes    int       `json:"classes" yaml:"classes"`
	Coords     int       `json:"coords" yaml:"coords"`
	Background bool      `json:"background" yaml:"background"`

	ConfidenceThreshold float32               `json:"confidenceThreshold" yaml:"confidenceThreshold"`
	NMS                 postprocess.NMSConfig `json:"nms" yaml:"nms"`
}

// DefaultConfig returns the tiny YOLOv2 VOC detector.
func DefaultConfig() *Config {
	return &Config{
		Name:                NameTinyYOLOv2VOC,
		Family:              FamilyVOC,
		InputWidth:          416,
		InputHeight:         416,
		Anchors:             []float32{1.08, 1.19, 3.42, 4.41, 6.63, 11.38, 9.42, 5.11, 16.62, 10.52},
		Classes:             20,
		Coords:              4,
		ConfidenceThreshold: 0.24,
		NMS:                 postprocess.NMSConfig{IoUThreshold: 0.4},
	}
}

// COCOConfig returns the full YOLOv2 COCO detector at the given input size.
func COCOConfig(inputSize int) *Config {
	return &Config{
		Name:                NameYOLOv2COCO,
		Family:              FamilyCOCO,
		InputWidth:          inputSize,
		InputHeight:         inputSize,
		Anchors:             []float32{0.57273, 0.677385, 1.87446, 2.06253, 3.33843, 5.47434, 7.88282, 3.52778, 9.77052, 9.16828},
		Classes:             80,
		Coords:              4,
		ConfidenceThreshold: 0.24,
		NMS:                 postprocess.NMSConfig{IoUThreshold: 0.4},
	}
}

// NumAnchors returns the number of anchors per grid cell.
func (c *Config) NumAnchors() int {
	return len(c.Anchors) / 2
}

// Grid returns the region grid size.
func (c *Config) Grid() (int, int) {
	w, h := c.GridWidth, c.GridHeight
	if w == 0 {
		w = c.InputWidth / Stride
	}
	if h == 0 {
		h = c.InputHeight / Stride
	}
	return w, h
}

// Validate checks that the config describes a usable detector.
func (c *Config) Validate() error {
	if c == nil {
		return errors.Wrap(ErrInvalidConfig, "nil config")
	}
	if c.InputWidth < 1 || c.InputHeight < 1 {
		return errors.Wrapf(ErrInvalidConfig, "input %dx%d", c.InputWidth, c.InputHeight)
	}
	if w, h := c.Grid(); w < 1 || h < 1 {
		return errors.Wrapf(ErrInvalidConfig, "grid %dx%d", w, h)
	}
	if len(c.Anchors) == 0 || len(c.Anchors)%2 != 0 {
		return errors.Wrapf(ErrInvalidConfig, "%d anchor values, want (w, h) pairs", len(c.Anchors))
	}
	for _, a := range c.Anchors {
		if a <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "anchor %v", a)
		}
	}
	if c.Classes < 1 || c.Coords < 4 {
		return errors.Wrapf(ErrInvalidConfig, "classes=%d coords=%d", c.Classes, c.Coords)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold >= 1 {
		return errors.Wrapf(ErrInvalidConfig, "confidence threshold %v", c.ConfidenceThreshold)
	}
	if c.NMS.IoUThreshold > 1 {
		return errors.Wrapf(ErrInvalidConfig, "nms threshold %v", c.NMS.IoUThreshold)
	}
	if c.Family != "" {
		set, err := DefaultClassManager.Set(c.Family)
		if err != nil {
			return err
		}
		if len(set.Classes) != c.Classes {
			return errors.Wrapf(ErrInvalidConfig, "family %q has %d classes, config %d", c.Family, len(set.Classes), c.Classes)
		}
	}
	return nil
}

// OutputSize is the number of floats the region layer produces per image.
func (c *Config) OutputSize() int {
	w, h := c.Grid()
	return w * h * c.NumAnchors() * (c.Coords + 1 + c.Classes)
}

// Layer wraps the forward pass output of one image (or a batch, entries
// OutputSize floats apart) as a region layer of this detector.
//
// Arguments:
// - output: Region layer activations, logistic already applied to the
// offsets and objectness.
//
// Returns:
// - The layer, validated.
// - ErrInvalidConfig or postprocess.ErrInvalidArgument.
//
// @example
// layer, err := cfg.Layer(output)
// err = postprocess.ParseObjectBoxes(layer, param, cfg.ConfidenceThreshold, cfg.NMS.IoUThreshold, list)
func (c *Config) Layer(output []float32) (*postprocess.RegionLayer, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	w, h := c.Grid()
	l := &postprocess.RegionLayer{
		W:          w,
		H:          h,
		N:          c.NumAnchors(),
		Classes:    c.Classes,
		Coords:     c.Coords,
		Background: c.Background,
		Biases:     c.Anchors,
		Output:     output,
		Outputs:    c.OutputSize(),
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// ClassName returns the label of a class index, or "" if the family is not
// set or the index is out of range.
func (c *Config) ClassName(id int) string {
	return LookupName(c.Family, id)
}

// Parse decodes a YAML config over DefaultConfig and validates it.
func Parse(data []byte) (*Config, error) {
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "yaml: %v", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read model config %s", path)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "model config %s", path)
	}
	return c, nil
}
