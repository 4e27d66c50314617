package images

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-nnaccel/compute"
)

// TestResizeEmbedContainment fills everything outside the placed frame with
// the letterbox value and matches the plain resize inside it.
func TestResizeEmbedContainment(t *testing.T) {
	pool := compute.NewPool(4)
	defer pool.Close()

	srcW, srcH := 64, 48
	data := randomFrame(srcW, srcH, 11)
	p, err := NewResizeParams(288, 240, srcW, srcH)
	require.NoError(t, err)

	plain := newTensor(t, 288, 240)
	require.NoError(t, ResizeFromRGB(plain, p, data, nil))

	box := EmbedBox{X: 0, Y: 40, Width: 320, Height: 320}
	for _, pl := range []*compute.Pool{nil, pool} {
		canvas := newTensor(t, 320, 320)
		require.NoError(t, ResizeEmbed(canvas, p, data, box, OrderRGB, pl))

		for c := 0; c < 3; c++ {
			plane := canvas.Plane(c)
			ref := plain.Plane(c)
			for y := 0; y < 320; y++ {
				for x := 0; x < 320; x++ {
					v := plane[y*320+x]
					if y < 40 || y >= 280 || x >= 288 {
						require.Equal(t, LetterboxFill, v, "c=%d x=%d y=%d", c, x, y)
					} else {
						require.Equal(t, ref[(y-40)*288+x], v, "c=%d x=%d y=%d", c, x, y)
					}
				}
			}
		}
	}
}

// TestResizeEmbedCentered fills both horizontal margins.
func TestResizeEmbedCentered(t *testing.T) {
	data := randomFrame(20, 20, 4)
	p, err := NewResizeParams(10, 10, 20, 20)
	require.NoError(t, err)

	canvas := newTensor(t, 16, 12)
	box := EmbedBox{X: 3, Y: 1, Width: 16, Height: 12}
	require.NoError(t, ResizeEmbed(canvas, p, data, box, OrderBGR, nil))

	plane := canvas.Plane(0)
	row := plane[5*16 : 6*16]
	assert.Equal(t, LetterboxFill, row[0])
	assert.Equal(t, LetterboxFill, row[2])
	assert.Equal(t, LetterboxFill, row[13])
	assert.Equal(t, LetterboxFill, row[15])
}

// TestResizeEmbedRejectsBadBox never dispatches when the frame does not fit.
func TestResizeEmbedRejectsBadBox(t *testing.T) {
	data := randomFrame(20, 20, 4)
	p, err := NewResizeParams(10, 10, 20, 20)
	require.NoError(t, err)

	tests := []struct {
		name string
		box  EmbedBox
		w, h int
	}{
		{"canvas too narrow", EmbedBox{X: 0, Y: 0, Width: 8, Height: 10}, 8, 10},
		{"overflows right", EmbedBox{X: 3, Y: 0, Width: 12, Height: 12}, 12, 12},
		{"overflows bottom", EmbedBox{X: 0, Y: 5, Width: 12, Height: 12}, 12, 12},
		{"negative offset", EmbedBox{X: -1, Y: 0, Width: 12, Height: 12}, 12, 12},
		{"canvas size mismatch", EmbedBox{X: 0, Y: 0, Width: 12, Height: 12}, 14, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canvas := newTensor(t, tt.w, tt.h)
			err := ResizeEmbed(canvas, p, data, tt.box, OrderRGB, nil)
			assert.True(t, errors.Is(err, ErrInvalidArgument), "got %v", err)
		})
	}
}

// TestLetterbox computes aspect preserving placement.
func TestLetterbox(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		netW, netH   int
		wantW, wantH int
		wantBox      EmbedBox
	}{
		{"landscape", 1920, 1080, 416, 416, 416, 234, EmbedBox{X: 0, Y: 91, Width: 416, Height: 416}},
		{"portrait", 480, 640, 320, 320, 240, 320, EmbedBox{X: 40, Y: 0, Width: 320, Height: 320}},
		{"exact", 640, 480, 320, 240, 320, 240, EmbedBox{X: 0, Y: 0, Width: 320, Height: 240}},
		// A 49 row margin puts the frame at row 24, rounded down.
		{"odd margin", 100, 51, 100, 100, 100, 51, EmbedBox{X: 0, Y: 24, Width: 100, Height: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, box, err := Letterbox(tt.srcW, tt.srcH, tt.netW, tt.netH)
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
			assert.Equal(t, tt.wantBox, box)
			assert.NoError(t, box.Validate(w, h))
		})
	}

	_, _, _, err := Letterbox(0, 10, 10, 10)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func BenchmarkResizeEmbed(b *testing.B) {
	data := randomFrame(1280, 720, 1)
	w, h, box, _ := Letterbox(1280, 720, 416, 416)
	p, _ := NewResizeParams(w, h, 1280, 720)
	img, _ := NewImage(FormatPlanarFloat, 416, 416, 3)
	pool := compute.NewPool(0)
	defer pool.Close()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ResizeEmbed(img, p, data, box, OrderRGB, pool)
	}
}
