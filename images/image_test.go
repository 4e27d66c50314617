package images

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewImageBufferSizes checks the buffer size invariant for every format.
func TestNewImageBufferSizes(t *testing.T) {
	tests := []struct {
		format Format
		bytes  int64
	}{
		{FormatRGB, 4 * 3 * 3},
		{FormatBGR, 4 * 3 * 3},
		{FormatYUV, 2 * 4 * 3},
		{FormatPlanarFloat, 4 * 4 * 3 * 3},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			img, err := NewImage(tt.format, 4, 3, 3)
			require.NoError(t, err)
			assert.Equal(t, tt.bytes, img.BufferSize())
			if tt.format == FormatPlanarFloat {
				assert.Len(t, img.Pixels, int(tt.bytes/4))
				assert.Nil(t, img.Data)
			} else {
				assert.Len(t, img.Data, int(tt.bytes))
				assert.Nil(t, img.Pixels)
			}
		})
	}
}

// TestNewImageRejectsBadInput covers the invalid argument and allocation paths.
func TestNewImageRejectsBadInput(t *testing.T) {
	_, err := NewImage(FormatRGB, 0, 10, 3)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = NewImage(FormatRGB, 10, 10, -1)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = NewImage(Format(42), 10, 10, 3)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = NewImage(FormatPlanarFloat, 100000, 100000, 3)
	assert.True(t, errors.Is(err, ErrAllocation))
}

// TestImageCopyTo deep copies and rejects mismatched destinations.
func TestImageCopyTo(t *testing.T) {
	src, err := NewImage(FormatPlanarFloat, 2, 2, 3)
	require.NoError(t, err)
	for i := range src.Pixels {
		src.Pixels[i] = float32(i)
	}

	dst, err := NewImage(FormatPlanarFloat, 2, 2, 3)
	require.NoError(t, err)
	require.NoError(t, src.CopyTo(dst))
	assert.Equal(t, src.Pixels, dst.Pixels)

	src.Pixels[0] = 99
	assert.Equal(t, float32(0), dst.Pixels[0], "copy must not share the buffer")

	other, err := NewImage(FormatRGB, 2, 2, 3)
	require.NoError(t, err)
	assert.True(t, errors.Is(src.CopyTo(other), ErrInvalidArgument))

	dst.Free()
	assert.True(t, errors.Is(src.CopyTo(dst), ErrInvalidArgument))
	assert.True(t, errors.Is(src.CopyTo(nil), ErrInvalidArgument))
}

func TestParseFormat(t *testing.T) {
	for _, f := range []Format{FormatRGB, FormatBGR, FormatYUV, FormatPlanarFloat} {
		got, err := ParseFormat(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFormat("cmyk")
	assert.Error(t, err)
}
