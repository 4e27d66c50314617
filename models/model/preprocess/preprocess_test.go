package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-nnaccel/compute"
	"github.com/nvr-ai/go-nnaccel/images"
	"github.com/nvr-ai/go-nnaccel/models/postprocess"
)

// The fixed-point resize rounds to the nearest step, so a flat colour can
// come out one level off.
const tolerance = 2.0 / 255

var testColor = color.NRGBA{R: 200, G: 100, B: 50, A: 255}

func solidImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, testColor)
		}
	}
	return img
}

func createTestPNGImage(t testing.TB, width, height int) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(width, height)))
	return buf.Bytes()
}

func createTestJPEGImage(t testing.TB, width, height int) []byte {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solidImage(width, height), &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

// solidFrame returns a packed three byte per pixel frame of one colour.
func solidFrame(width, height int, c0, c1, c2 byte) []byte {
	data := make([]byte, width*height*3)
	for i := 0; i < len(data); i += 3 {
		data[i], data[i+1], data[i+2] = c0, c1, c2
	}
	return data
}

func newPreprocessor(t testing.TB, config *ModelConfig) *Preprocessor {
	p, err := NewPreprocessor(config, nil, nil)
	require.NoError(t, err)
	return p
}

// pixel returns the value of plane c at (x, y).
func pixel(r *PreprocessingResult, c, x, y int) float32 {
	return r.Tensor.Plane(c)[y*r.Tensor.Width+x]
}

func TestPreprocessLetterbox(t *testing.T) {
	p := newPreprocessor(t, GetYOLOConfig(416))

	result, err := p.Preprocess(&Image{Format: ImageFormatPNG, Data: createTestPNGImage(t, 640, 480), Width: 640, Height: 480})
	require.NoError(t, err)

	assert.Equal(t, []int{3, 416, 416}, result.Shape)
	assert.Len(t, result.Data(), 3*416*416)
	assert.Equal(t, 640, result.OriginalWidth)
	assert.Equal(t, 480, result.OriginalHeight)
	assert.Equal(t, 0, result.PadLeft)
	assert.Equal(t, 52, result.PadTop)
	assert.InDelta(t, 0.65, result.ScaleX, 1e-6)
	assert.InDelta(t, 0.65, result.ScaleY, 1e-6)

	want, err := postprocess.NewCorrectParam(640, 480, 416, 416)
	require.NoError(t, err)
	assert.Equal(t, want, result.Correct)

	// Letterbox margins above and below, the frame in between.
	for c := 0; c < 3; c++ {
		assert.Equal(t, images.LetterboxFill, pixel(result, c, 200, 0))
		assert.Equal(t, images.LetterboxFill, pixel(result, c, 200, 415))
	}
	assert.InDelta(t, 200.0/255, pixel(result, 0, 208, 208), tolerance)
	assert.InDelta(t, 100.0/255, pixel(result, 1, 208, 208), tolerance)
	assert.InDelta(t, 50.0/255, pixel(result, 2, 208, 208), tolerance)
}

func TestPreprocessJPEG(t *testing.T) {
	p := newPreprocessor(t, GetYOLOConfig(416))

	result, err := p.Preprocess(&Image{Format: ImageFormatJPEG, Data: createTestJPEGImage(t, 480, 640)})
	require.NoError(t, err)

	// Portrait frames are padded left and right.
	assert.Equal(t, 52, result.PadLeft)
	assert.Equal(t, 0, result.PadTop)
	assert.InDelta(t, 200.0/255, pixel(result, 0, 208, 208), 6.0/255)
}

func TestPreprocessColorModeBGR(t *testing.T) {
	config := GetYOLOConfig(416)
	config.ColorMode = ColorModeBGR
	p := newPreprocessor(t, config)

	result, err := p.Preprocess(&Image{Format: ImageFormatPNG, Data: createTestPNGImage(t, 640, 480)})
	require.NoError(t, err)

	assert.InDelta(t, 50.0/255, pixel(result, 0, 208, 208), tolerance)
	assert.InDelta(t, 100.0/255, pixel(result, 1, 208, 208), tolerance)
	assert.InDelta(t, 200.0/255, pixel(result, 2, 208, 208), tolerance)
}

func TestPreprocessFrameChannelOrder(t *testing.T) {
	tests := []struct {
		name   string
		format images.Format
		mode   ColorMode
		data   []byte
		want   [3]float32
	}{
		{"rgb into rgb", images.FormatRGB, ColorModeRGB, solidFrame(32, 32, 200, 100, 50), [3]float32{200, 100, 50}},
		{"bgr into rgb", images.FormatBGR, ColorModeRGB, solidFrame(32, 32, 50, 100, 200), [3]float32{200, 100, 50}},
		{"bgr into bgr", images.FormatBGR, ColorModeBGR, solidFrame(32, 32, 50, 100, 200), [3]float32{50, 100, 200}},
		{"rgb into bgr", images.FormatRGB, ColorModeBGR, solidFrame(32, 32, 200, 100, 50), [3]float32{50, 100, 200}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := GetYOLOConfig(32)
			config.ColorMode = tt.mode
			p := newPreprocessor(t, config)

			// Same size as the network: converted without a resize.
			result, err := p.PreprocessFrame(tt.format, tt.data, 32, 32)
			require.NoError(t, err)
			assert.Equal(t, float32(1), result.ScaleX)
			assert.Equal(t, 0, p.CachedSizes())
			for c := 0; c < 3; c++ {
				assert.Equal(t, tt.want[c]/255, pixel(result, c, 5, 7), "plane %d", c)
			}
		})
	}
}

func TestPreprocessFrameStretch(t *testing.T) {
	config := GetYOLOConfig(416)
	config.KeepAspectRatio = false
	p := newPreprocessor(t, config)

	result, err := p.PreprocessFrame(images.FormatRGB, solidFrame(640, 480, 200, 100, 50), 640, 480)
	require.NoError(t, err)

	assert.Equal(t, 0, result.PadLeft)
	assert.Equal(t, 0, result.PadTop)
	assert.InDelta(t, 416.0/480, result.ScaleY, 1e-6)
	want, err := postprocess.StretchCorrectParam(640, 480)
	require.NoError(t, err)
	assert.Equal(t, want, result.Correct)

	// No margins: the corners carry the frame colour.
	assert.InDelta(t, 200.0/255, pixel(result, 0, 0, 0), tolerance)
	assert.InDelta(t, 50.0/255, pixel(result, 2, 415, 415), tolerance)
}

func TestPreprocessFrameYUV(t *testing.T) {
	p := newPreprocessor(t, GetYOLOConfig(64))

	// Neutral chroma with Y=126 is mid grey, 128 in every channel.
	yuv := make([]byte, 2*16*8)
	for i := 0; i < len(yuv); i += 4 {
		yuv[i], yuv[i+1], yuv[i+2], yuv[i+3] = 126, 128, 126, 128
	}
	result, err := p.PreprocessFrame(images.FormatYUV, yuv, 16, 8)
	require.NoError(t, err)

	assert.Equal(t, 16, result.PadTop)
	for c := 0; c < 3; c++ {
		assert.InDelta(t, 128.0/255, pixel(result, c, 32, 32), tolerance)
	}

	_, err = p.PreprocessFrame(images.FormatYUV, yuv, 15, 8)
	assert.ErrorIs(t, err, images.ErrInvalidArgument)
}

func TestPreprocessPooledMatchesSerial(t *testing.T) {
	pool := compute.NewPool(4)
	defer pool.Close()

	serial := newPreprocessor(t, GetYOLOConfig(416))
	pooled, err := NewPreprocessor(GetYOLOConfig(416), pool, nil)
	require.NoError(t, err)

	data := make([]byte, 300*200*3)
	for i := range data {
		data[i] = byte(i * 7)
	}
	want, err := serial.PreprocessFrame(images.FormatRGB, data, 300, 200)
	require.NoError(t, err)
	got, err := pooled.PreprocessFrame(images.FormatRGB, data, 300, 200)
	require.NoError(t, err)

	assert.Equal(t, want.Data(), got.Data())
	assert.Equal(t, want.Correct, got.Correct)
}

func TestPreprocessResizeCache(t *testing.T) {
	config := GetYOLOConfig(64)
	config.MaxCachedSizes = 2
	p := newPreprocessor(t, config)

	frame := func(w, h int) {
		_, err := p.PreprocessFrame(images.FormatRGB, solidFrame(w, h, 1, 2, 3), w, h)
		require.NoError(t, err)
	}

	frame(100, 50)
	frame(100, 50)
	assert.Equal(t, 1, p.CachedSizes())
	frame(50, 100)
	assert.Equal(t, 2, p.CachedSizes())
	// A third size clears the cache before it is added.
	frame(80, 80)
	assert.Equal(t, 1, p.CachedSizes())
}

func TestPreprocessValidation(t *testing.T) {
	p := newPreprocessor(t, GetYOLOConfig(416))

	_, err := p.Preprocess(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = p.Preprocess(&Image{Format: ImageFormatJPEG})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = p.Preprocess(&Image{Format: ImageFormatJPEG, Data: []byte("not a jpeg"), Width: 10, Height: 10})
	assert.ErrorIs(t, err, ErrDecode)

	_, err = p.Preprocess(&Image{Format: ImageFormatPNG, Data: []byte{0x89, 'P', 'N', 'G'}})
	assert.ErrorIs(t, err, ErrDecode)

	_, err = p.PreprocessFrame(images.FormatPlanarFloat, make([]byte, 12), 2, 2)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = p.PreprocessFrame(images.FormatRGB, make([]byte, 11), 2, 2)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = p.PreprocessFrame(images.FormatRGB, nil, 0, 2)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestModelConfigValidate(t *testing.T) {
	assert.NoError(t, GetYOLOConfig(416).Validate())

	var nilConfig *ModelConfig
	assert.ErrorIs(t, nilConfig.Validate(), ErrInvalidArgument)

	bad := []func(c *ModelConfig){
		func(c *ModelConfig) { c.InputWidth = 0 },
		func(c *ModelConfig) { c.InputHeight = -1 },
		func(c *ModelConfig) { c.ColorMode = 7 },
		func(c *ModelConfig) { c.MaxCachedSizes = -1 },
	}
	for i, mutate := range bad {
		c := GetYOLOConfig(416)
		mutate(c)
		assert.ErrorIs(t, c.Validate(), ErrInvalidArgument, "case %d", i)
		_, err := NewPreprocessor(c, nil, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument, "case %d", i)
	}
}

func TestPreprocessIdempotency(t *testing.T) {
	p := newPreprocessor(t, GetYOLOConfig(416))
	img := &Image{Format: ImageFormatPNG, Data: createTestPNGImage(t, 320, 240)}

	first, err := p.Preprocess(img)
	require.NoError(t, err)
	second, err := p.Preprocess(img)
	require.NoError(t, err)

	assert.Equal(t, first.Data(), second.Data())
	assert.NotSame(t, first.Tensor, second.Tensor)
}

func TestBatchPreprocess(t *testing.T) {
	p := newPreprocessor(t, GetYOLOConfig(128))

	imgs := []*Image{
		{Format: ImageFormatPNG, Data: createTestPNGImage(t, 100, 60)},
		{Format: ImageFormatJPEG, Data: createTestJPEGImage(t, 60, 100)},
		{Format: ImageFormatPNG, Data: createTestPNGImage(t, 128, 128)},
	}
	results, err := p.BatchPreprocess(imgs, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 100, results[0].OriginalWidth)
	assert.Equal(t, 60, results[1].OriginalWidth)
	assert.Equal(t, 128, results[2].OriginalWidth)

	imgs = append(imgs, &Image{Format: ImageFormatJPEG, Data: []byte{1, 2, 3}})
	_, err = p.BatchPreprocess(imgs, 0)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestPreprocessDebugMode(t *testing.T) {
	p, err := NewPreprocessor(GetYOLOConfig(64), nil, logs.NewTestingLog(t))
	require.NoError(t, err)
	p.SetDebugMode(true)

	_, err = p.Preprocess(&Image{Format: ImageFormatPNG, Data: createTestPNGImage(t, 40, 30), Width: 41, Height: 30})
	require.NoError(t, err)

	// Without a log debug mode stays off.
	q := newPreprocessor(t, GetYOLOConfig(64))
	q.SetDebugMode(true)
	assert.False(t, q.debugMode)
}

func BenchmarkPreprocessFrame(b *testing.B) {
	pool := compute.NewPool(0)
	defer pool.Close()
	p, err := NewPreprocessor(GetYOLOConfig(416), pool, nil)
	require.NoError(b, err)
	data := solidFrame(1280, 720, 10, 20, 30)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.PreprocessFrame(images.FormatRGB, data, 1280, 720); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPreprocessJPEG(b *testing.B) {
	p := newPreprocessor(b, GetYOLOConfig(416))
	img := &Image{Format: ImageFormatJPEG, Data: createTestJPEGImage(b, 640, 480)}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Preprocess(img); err != nil {
			b.Fatal(err)
		}
	}
}
