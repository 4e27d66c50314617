// Package preprocess - turns encoded stills and raw camera frames into the
// planar float tensor a detector expects, remembering how the frame was placed
// so boxes can be mapped back onto it.
package preprocess

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png" // registers the PNG decoder for image.Decode
	"sync"

	"github.com/cyclopcam/logs"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-nnaccel/compute"
	"github.com/nvr-ai/go-nnaccel/images"
	"github.com/nvr-ai/go-nnaccel/models/postprocess"
)

var (
	// ErrInvalidArgument is returned for unusable configs and input frames.
	ErrInvalidArgument = errors.New("preprocess: invalid argument")
	// ErrDecode is returned when an encoded still cannot be decoded.
	ErrDecode = errors.New("preprocess: decode failed")
)

// ImageFormat represents the encoding of a still image.
type ImageFormat string

const (
	// ImageFormatJPEG represents JPEG image format.
	ImageFormatJPEG ImageFormat = "jpeg"
	// ImageFormatPNG represents PNG image format.
	ImageFormatPNG ImageFormat = "png"
)

// Image represents an encoded input image with metadata.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The encoded bytes of the image.
	Data []byte `json:"-" yaml:"-"`
	// The width of the image, if known. Zero means take it from the decoder.
	Width int `json:"width" yaml:"width"`
	// The height of the image, if known.
	Height int `json:"height" yaml:"height"`
}

// ColorMode defines the plane order the network was trained with.
type ColorMode int

const (
	// ColorModeRGB puts red in plane 0.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR puts blue in plane 0 (common for OpenCV trained models).
	ColorModeBGR
)

// MaxCachedSizes is the default number of source sizes whose resize tables
// are kept.
const MaxCachedSizes = 8

// ModelConfig defines preprocessing configuration for a specific model.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string `json:"name" yaml:"name"`
	// InputWidth is the expected width of the model input.
	InputWidth int `json:"inputWidth" yaml:"inputWidth"`
	// InputHeight is the expected height of the model input.
	InputHeight int `json:"inputHeight" yaml:"inputHeight"`
	// ColorMode is the plane order of the produced tensor.
	ColorMode ColorMode `json:"colorMode" yaml:"colorMode"`
	// KeepAspectRatio if true, maintains aspect ratio with letterboxing.
	KeepAspectRatio bool `json:"keepAspectRatio" yaml:"keepAspectRatio"`
	// MaxSourceWidth and MaxSourceHeight bound decoded stills. Larger stills
	// are shrunk before the fixed-point resize. Zero disables the bound.
	MaxSourceWidth  int `json:"maxSourceWidth" yaml:"maxSourceWidth"`
	MaxSourceHeight int `json:"maxSourceHeight" yaml:"maxSourceHeight"`
	// MaxCachedSizes caps the resize table cache. Zero means MaxCachedSizes.
	MaxCachedSizes int `json:"maxCachedSizes" yaml:"maxCachedSizes"`
}

// Validate checks the network input size and the limits.
func (c *ModelConfig) Validate() error {
	if c == nil {
		return errors.Wrap(ErrInvalidArgument, "nil model config")
	}
	if c.InputWidth < 1 || c.InputHeight < 1 {
		return errors.Wrapf(ErrInvalidArgument, "model input %dx%d", c.InputWidth, c.InputHeight)
	}
	if c.ColorMode != ColorModeRGB && c.ColorMode != ColorModeBGR {
		return errors.Wrapf(ErrInvalidArgument, "color mode %d", c.ColorMode)
	}
	if c.MaxSourceWidth < 0 || c.MaxSourceHeight < 0 || c.MaxCachedSizes < 0 {
		return errors.Wrap(ErrInvalidArgument, "negative limit")
	}
	return nil
}

// GetYOLOConfig returns a standard configuration for region layer YOLO models.
//
// Arguments:
// - inputSize: The input size (typically 416 or 608).
//
// Returns:
// - A configured ModelConfig.
//
// @example
// config := GetYOLOConfig(416)
// preprocessor, err := NewPreprocessor(config, pool, log)
func GetYOLOConfig(inputSize int) *ModelConfig {
	return &ModelConfig{
		Name:            "yolo",
		InputWidth:      inputSize,
		InputHeight:     inputSize,
		ColorMode:       ColorModeRGB,
		KeepAspectRatio: true,
		MaxSourceWidth:  3840,
		MaxSourceHeight: 2160,
	}
}

// PreprocessingResult contains the preprocessed tensor and the placement
// needed to map detections back onto the source frame.
type PreprocessingResult struct {
	// Tensor is the three channel planar float network input.
	Tensor *images.Image
	// OriginalWidth is the source frame width before preprocessing.
	OriginalWidth int
	// OriginalHeight is the source frame height before preprocessing.
	OriginalHeight int
	// ScaleX is the horizontal scaling factor applied.
	ScaleX float32
	// ScaleY is the vertical scaling factor applied.
	ScaleY float32
	// PadLeft is the left padding applied for letterboxing.
	PadLeft int
	// PadTop is the top padding applied for letterboxing.
	PadTop int
	// Shape is the tensor shape [C, H, W].
	Shape []int
	// Correct maps decoded boxes back onto the source frame.
	Correct postprocess.CorrectParam
}

// Data returns the tensor values.
func (r *PreprocessingResult) Data() []float32 {
	return r.Tensor.Pixels
}

type sourceSize struct {
	w, h int
}

// Preprocessor converts frames for one network input size.
//
// Resize tables depend only on the source size, so they are built once per
// size and reused. A Preprocessor is safe for concurrent use.
type Preprocessor struct {
	config    *ModelConfig
	pool      *compute.Pool
	log       logs.Log
	debugMode bool

	mu     sync.RWMutex
	params map[sourceSize]*images.ResizeParams
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
// - config: The model-specific preprocessing configuration.
// - pool: Worker pool for the resize. Nil runs serially.
// - log: Receives debug output when debug mode is on.
//
// Returns:
// - A configured Preprocessor instance.
// - ErrInvalidArgument if the config is unusable.
//
// @example
// preprocessor, err := NewPreprocessor(GetYOLOConfig(416), compute.NewPool(0), log)
func NewPreprocessor(config *ModelConfig, pool *compute.Pool, log logs.Log) (*Preprocessor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Preprocessor{
		config: config,
		pool:   pool,
		log:    log,
		params: make(map[sourceSize]*images.ResizeParams),
	}, nil
}

// SetDebugMode enables or disables debug logging.
func (p *Preprocessor) SetDebugMode(enabled bool) {
	p.debugMode = enabled && p.log != nil
}

// Config returns the model configuration.
func (p *Preprocessor) Config() *ModelConfig {
	return p.config
}

// CachedSizes returns the number of source sizes with a cached resize table.
func (p *Preprocessor) CachedSizes() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.params)
}

func (p *Preprocessor) debugf(format string, args ...interface{}) {
	if p.debugMode {
		p.log.Debugf(format, args...)
	}
}

// Preprocess decodes an encoded still and converts it.
//
// Arguments:
// - img: The encoded image.
//
// Returns:
// - PreprocessingResult containing the tensor and placement.
// - ErrInvalidArgument for an empty image, ErrDecode if decoding fails.
//
// @example
// result, err := preprocessor.Preprocess(&Image{Format: ImageFormatJPEG, Data: jpegData})
func (p *Preprocessor) Preprocess(img *Image) (*PreprocessingResult, error) {
	if err := validateInput(img); err != nil {
		return nil, errors.Wrap(err, "input validation failed")
	}

	decoded, err := decodeImage(img)
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "%s: %v", img.Format, err)
	}
	if img.Width > 0 && img.Height > 0 && (decoded.Bounds().Dx() != img.Width || decoded.Bounds().Dy() != img.Height) {
		p.debugf("%s: declared %dx%d, decoded %dx%d", p.config.Name, img.Width, img.Height,
			decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}

	data, w, h := images.PackImage(decoded, p.config.MaxSourceWidth, p.config.MaxSourceHeight)
	p.debugf("%s: decoded %s still, packed to %dx%d", p.config.Name, img.Format, w, h)
	return p.PreprocessFrame(images.FormatRGB, data, w, h)
}

// PreprocessFrame converts a raw RGB, BGR or YUYV frame.
//
// Frames already at the network size are converted directly. Otherwise the
// frame is resized, letterboxed when the config keeps the aspect ratio and
// stretched when it does not.
//
// Arguments:
// - format: Layout of data.
// - data: Interleaved frame bytes.
// - width, height: Frame size.
//
// Returns:
// - PreprocessingResult containing the tensor and placement.
// - ErrInvalidArgument for unsupported formats or short buffers.
func (p *Preprocessor) PreprocessFrame(format images.Format, data []byte, width, height int) (*PreprocessingResult, error) {
	if width < 1 || height < 1 {
		return nil, errors.Wrapf(ErrInvalidArgument, "frame %dx%d", width, height)
	}

	switch format {
	case images.FormatRGB, images.FormatBGR:
	case images.FormatYUV:
		rgb, err := images.YUYVToRGB(data, width, height)
		if err != nil {
			return nil, err
		}
		data, format = rgb, images.FormatRGB
	default:
		return nil, errors.Wrapf(ErrInvalidArgument, "frame format %v", format)
	}
	if len(data) < 3*width*height {
		return nil, errors.Wrapf(ErrInvalidArgument, "%v frame has %d bytes, want %d", format, len(data), 3*width*height)
	}

	order := images.OrderRGB
	if (format == images.FormatBGR) != (p.config.ColorMode == ColorModeBGR) {
		order = images.OrderBGR
	}

	netW, netH := p.config.InputWidth, p.config.InputHeight
	tensor, err := images.NewImage(images.FormatPlanarFloat, netW, netH, 3)
	if err != nil {
		return nil, err
	}
	result := &PreprocessingResult{
		Tensor:         tensor,
		OriginalWidth:  width,
		OriginalHeight: height,
		Shape:          []int{3, netH, netW},
	}

	switch {
	case width == netW && height == netH:
		err = images.FromPacked(tensor, data, order)
		if err == nil {
			result.ScaleX, result.ScaleY = 1, 1
			result.Correct, err = postprocess.StretchCorrectParam(width, height)
		}
	case p.config.KeepAspectRatio:
		err = p.letterbox(result, data, order)
	default:
		err = p.stretch(result, data, order)
	}
	if err != nil {
		return nil, err
	}

	p.debugf("%s: %dx%d -> %dx%d, scale (%.4f, %.4f), padding (%d, %d)", p.config.Name,
		width, height, netW, netH, result.ScaleX, result.ScaleY, result.PadLeft, result.PadTop)
	return result, nil
}

func (p *Preprocessor) letterbox(r *PreprocessingResult, data []byte, order images.ChannelOrder) error {
	netW, netH := p.config.InputWidth, p.config.InputHeight
	dstW, dstH, box, err := images.Letterbox(r.OriginalWidth, r.OriginalHeight, netW, netH)
	if err != nil {
		return err
	}
	params, err := p.resizeParams(dstW, dstH, r.OriginalWidth, r.OriginalHeight)
	if err != nil {
		return err
	}
	if err := images.ResizeEmbed(r.Tensor, params, data, box, order, p.pool); err != nil {
		return err
	}

	r.ScaleX = float32(dstW) / float32(r.OriginalWidth)
	r.ScaleY = float32(dstH) / float32(r.OriginalHeight)
	r.PadLeft, r.PadTop = box.X, box.Y
	r.Correct, err = postprocess.NewCorrectParam(r.OriginalWidth, r.OriginalHeight, netW, netH)
	return err
}

func (p *Preprocessor) stretch(r *PreprocessingResult, data []byte, order images.ChannelOrder) error {
	netW, netH := p.config.InputWidth, p.config.InputHeight
	params, err := p.resizeParams(netW, netH, r.OriginalWidth, r.OriginalHeight)
	if err != nil {
		return err
	}
	if err := images.ResizeFromPacked(r.Tensor, params, data, order, p.pool); err != nil {
		return err
	}

	r.ScaleX = float32(netW) / float32(r.OriginalWidth)
	r.ScaleY = float32(netH) / float32(r.OriginalHeight)
	r.Correct, err = postprocess.StretchCorrectParam(r.OriginalWidth, r.OriginalHeight)
	return err
}

// resizeParams returns the cached table for a source size, building it on
// first use. The whole cache is dropped once it reaches its limit.
func (p *Preprocessor) resizeParams(dstW, dstH, srcW, srcH int) (*images.ResizeParams, error) {
	key := sourceSize{srcW, srcH}

	p.mu.RLock()
	params, ok := p.params[key]
	p.mu.RUnlock()
	if ok && params.Matches(dstW, dstH, srcW, srcH) {
		return params, nil
	}

	params, err := images.NewResizeParams(dstW, dstH, srcW, srcH)
	if err != nil {
		return nil, err
	}

	limit := p.config.MaxCachedSizes
	if limit == 0 {
		limit = MaxCachedSizes
	}
	p.mu.Lock()
	if len(p.params) >= limit {
		p.debugf("%s: resize cache full (%d sizes), clearing", p.config.Name, len(p.params))
		clear(p.params)
	}
	p.params[key] = params
	p.mu.Unlock()
	return params, nil
}

// validateInput validates the input image structure.
func validateInput(img *Image) error {
	if img == nil {
		return errors.Wrap(ErrInvalidArgument, "image is nil")
	}
	if len(img.Data) == 0 {
		return errors.Wrap(ErrInvalidArgument, "image data is empty")
	}
	if img.Width < 0 || img.Height < 0 {
		return errors.Wrapf(ErrInvalidArgument, "invalid image dimensions: %dx%d", img.Width, img.Height)
	}
	return nil
}

// decodeImage decodes the image data into an image.Image.
func decodeImage(img *Image) (image.Image, error) {
	reader := bytes.NewReader(img.Data)
	switch img.Format {
	case ImageFormatJPEG:
		return jpeg.Decode(reader)
	default:
		// Try auto-detection.
		decoded, _, err := image.Decode(reader)
		return decoded, err
	}
}

// BatchPreprocess processes multiple images in parallel.
//
// Arguments:
// - imgs: Slice of images to preprocess.
// - maxConcurrency: Maximum number of images to process concurrently.
//
// Returns:
// - Slice of preprocessing results, in input order.
// - The first error, if any preprocessing fails.
//
// @example
// results, err := preprocessor.BatchPreprocess([]*Image{img1, img2, img3}, 4)
func (p *Preprocessor) BatchPreprocess(imgs []*Image, maxConcurrency int) ([]*PreprocessingResult, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	results := make([]*PreprocessingResult, len(imgs))
	errs := make([]error, len(imgs))

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, img := range imgs {
		wg.Add(1)
		go func(idx int, img *Image) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := p.Preprocess(img)
			if err != nil {
				errs[idx] = errors.WithMessagef(err, "failed to preprocess image %d", idx)
			} else {
				results[idx] = result
			}
		}(i, img)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
