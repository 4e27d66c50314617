// Package images - converts packed camera frames into planar float tensors
// ready for a forward pass: direct conversion, fixed-point bilinear resize and
// letterbox embedding, each with a serial and a pooled parallel variant.
package images

import (
	"github.com/pkg/errors"
)

// maxBufferSize caps a single image allocation at 1 GiB.
const maxBufferSize = 1 << 30

// Image is a frame with a single owned buffer whose layout depends on Format.
//
// Byte formats (RGB, BGR, YUV) use Data. FormatPlanarFloat uses Pixels, laid
// out as Channels planes of Height rows of Width values.
type Image struct {
	// The format of the image.
	Format Format `json:"format" yaml:"format"`
	// The width of the image in pixels.
	Width int `json:"width" yaml:"width"`
	// The height of the image in pixels.
	Height int `json:"height" yaml:"height"`
	// The number of channels.
	Channels int `json:"channels" yaml:"channels"`
	// The data of byte formatted images.
	Data []byte `json:"-" yaml:"-"`
	// The data of planar float images.
	Pixels []float32 `json:"-" yaml:"-"`
}

// NewImage allocates an image of the given format and size.
//
// Arguments:
// - format: Pixel layout of the buffer.
// - width, height, channels: Dimensions. All must be positive.
//
// Returns:
// - The allocated image.
// - ErrInvalidArgument for bad dimensions, ErrAllocation if the buffer would
// exceed the allocation limit.
//
// @example
// tensor, err := images.NewImage(images.FormatPlanarFloat, 416, 416, 3)
func NewImage(format Format, width, height, channels int) (*Image, error) {
	if width <= 0 || height <= 0 || channels <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "dimensions %dx%dx%d", width, height, channels)
	}
	if format < FormatRGB || format > FormatPlanarFloat {
		return nil, errors.Wrapf(ErrInvalidArgument, "format %v", format)
	}

	size := format.BufferSize(width, height, channels)
	if size > maxBufferSize {
		return nil, errors.Wrapf(ErrAllocation, "%v image %dx%dx%d needs %d bytes", format, width, height, channels, size)
	}

	img := &Image{
		Format:   format,
		Width:    width,
		Height:   height,
		Channels: channels,
	}
	if format == FormatPlanarFloat {
		img.Pixels = make([]float32, size/4)
	} else {
		img.Data = make([]byte, size)
	}
	return img, nil
}

// BufferSize returns the size of the image buffer in bytes.
func (img *Image) BufferSize() int64 {
	return img.Format.BufferSize(img.Width, img.Height, img.Channels)
}

// Plane returns channel c of a planar float image.
func (img *Image) Plane(c int) []float32 {
	n := img.Width * img.Height
	return img.Pixels[c*n : (c+1)*n]
}

// CopyTo deep-copies img into dst, which must already be allocated with the
// same format and dimensions.
func (img *Image) CopyTo(dst *Image) error {
	if img == nil || dst == nil {
		return errors.Wrap(ErrInvalidArgument, "nil image")
	}
	if img.Format != dst.Format || img.Width != dst.Width || img.Height != dst.Height || img.Channels != dst.Channels {
		return errors.Wrapf(ErrInvalidArgument, "copy %v %dx%dx%d into %v %dx%dx%d",
			img.Format, img.Width, img.Height, img.Channels,
			dst.Format, dst.Width, dst.Height, dst.Channels)
	}
	if len(dst.Data) != len(img.Data) || len(dst.Pixels) != len(img.Pixels) {
		return errors.Wrap(ErrInvalidArgument, "destination buffer not allocated")
	}
	copy(dst.Data, img.Data)
	copy(dst.Pixels, img.Pixels)
	return nil
}

// Free releases the buffer. The image must not be used afterwards.
func (img *Image) Free() {
	img.Data = nil
	img.Pixels = nil
}

// checkPlanar validates a destination tensor for the conversion functions.
func checkPlanar(img *Image, channels int) error {
	if img == nil {
		return errors.Wrap(ErrInvalidArgument, "nil destination image")
	}
	if img.Format != FormatPlanarFloat {
		return errors.Wrapf(ErrInvalidArgument, "destination format %v, want %v", img.Format, FormatPlanarFloat)
	}
	if img.Width <= 0 || img.Height <= 0 || img.Channels <= 0 {
		return errors.Wrapf(ErrInvalidArgument, "destination dimensions %dx%dx%d", img.Width, img.Height, img.Channels)
	}
	if channels > 0 && img.Channels != channels {
		return errors.Wrapf(ErrInvalidArgument, "destination has %d channels, want %d", img.Channels, channels)
	}
	if len(img.Pixels) != img.Width*img.Height*img.Channels {
		return errors.Wrap(ErrInvalidArgument, "destination buffer not allocated")
	}
	return nil
}
