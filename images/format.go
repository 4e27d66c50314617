package images

import (
	"fmt"

	"github.com/pkg/errors"
)

// Format is the pixel layout of an Image buffer.
type Format int

const (
	// FormatRGB is interleaved 8 bit R, G, B.
	FormatRGB Format = iota
	// FormatBGR is interleaved 8 bit B, G, R.
	FormatBGR
	// FormatYUV is packed YUYV 4:2:2, two bytes per pixel.
	FormatYUV
	// FormatPlanarFloat is channel-major (C x H x W) float32, normalized to [0, 1].
	FormatPlanarFloat
)

func (f Format) String() string {
	switch f {
	case FormatRGB:
		return "rgb"
	case FormatBGR:
		return "bgr"
	case FormatYUV:
		return "yuv"
	case FormatPlanarFloat:
		return "planar-float"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat is the inverse of Format.String.
func ParseFormat(s string) (Format, error) {
	for _, f := range []Format{FormatRGB, FormatBGR, FormatYUV, FormatPlanarFloat} {
		if f.String() == s {
			return f, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidArgument, "unknown image format %q", s)
}

// BufferSize returns the number of bytes an image of this format occupies.
// YUV is always two bytes per pixel regardless of channels.
func (f Format) BufferSize(width, height, channels int) int64 {
	w, h, c := int64(width), int64(height), int64(channels)
	switch f {
	case FormatYUV:
		return 2 * w * h
	case FormatPlanarFloat:
		return 4 * c * w * h
	default:
		return c * w * h
	}
}

// ChannelOrder selects which destination plane each interleaved source
// channel is written to when building a planar tensor.
type ChannelOrder int

const (
	// OrderRGB writes source channel c to plane c.
	OrderRGB ChannelOrder = iota
	// OrderBGR writes source channel c to plane channels-1-c, which turns
	// interleaved BGR input into RGB planes.
	OrderBGR
)

func (o ChannelOrder) String() string {
	if o == OrderBGR {
		return "bgr"
	}
	return "rgb"
}

// plane maps a source channel index to its destination plane.
func (o ChannelOrder) plane(c, channels int) int {
	if o == OrderBGR {
		return channels - 1 - c
	}
	return c
}
