package images

import (
	"github.com/pkg/errors"
)

// FromRGB fills a planar float image from interleaved RGB bytes without
// resizing. Each byte is normalized to [0, 1] by dividing by 255.
func FromRGB(img *Image, data []byte) error {
	return FromPacked(img, data, OrderRGB)
}

// FromBGR fills a planar float image from interleaved BGR bytes without
// resizing.
//
// Channels are copied in source order, so the planes come out as B, G, R.
// Use FromPacked with OrderBGR to get R, G, B planes instead.
func FromBGR(img *Image, data []byte) error {
	return FromPacked(img, data, OrderRGB)
}

// FromPacked fills a planar float image from interleaved 8 bit data.
//
// Arguments:
// - img: Destination, must be FormatPlanarFloat and allocated.
// - data: Interleaved source of img.Width*img.Height*img.Channels bytes.
// - order: Plane assignment for the source channels.
//
// Returns:
// - ErrInvalidArgument if the destination or source is unusable.
func FromPacked(img *Image, data []byte, order ChannelOrder) error {
	if err := checkPlanar(img, 0); err != nil {
		return err
	}
	c := img.Channels
	n := img.Width * img.Height
	if len(data) < n*c {
		return errors.Wrapf(ErrInvalidArgument, "source has %d bytes, want %d", len(data), n*c)
	}

	planes := make([][]float32, c)
	for k := 0; k < c; k++ {
		planes[order.plane(k, c)] = img.Plane(k)
	}
	for p := 0; p < n; p++ {
		src := data[p*c : p*c+c]
		for k, v := range src {
			planes[k][p] = float32(v) / 255
		}
	}
	return nil
}

// FromYUV fills a three channel planar float image from packed YUYV data,
// converting to RGB planes with BT.601 integer coefficients.
// The image width must be even.
func FromYUV(img *Image, data []byte) error {
	if err := checkPlanar(img, 3); err != nil {
		return err
	}
	rgb, err := YUYVToRGB(data, img.Width, img.Height)
	if err != nil {
		return err
	}
	return FromPacked(img, rgb, OrderRGB)
}

// YUYVToRGB expands packed YUYV into interleaved RGB bytes. The width must
// be even.
func YUYVToRGB(data []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "yuyv dimensions %dx%d", width, height)
	}
	if len(data) < 2*width*height {
		return nil, errors.Wrapf(ErrInvalidArgument, "yuyv source has %d bytes, want %d", len(data), 2*width*height)
	}

	rgb := make([]byte, 3*width*height)
	// Each 4 byte macropixel Y0 U Y1 V yields two RGB pixels.
	for i := 0; i < 2*width*height; i += 4 {
		o := i / 2 * 3
		y0, u, y1, v := data[i], data[i+1], data[i+2], data[i+3]
		yuvPixel(rgb[o:o+3], y0, u, v)
		yuvPixel(rgb[o+3:o+6], y1, u, v)
	}
	return rgb, nil
}

// yuvPixel writes one BT.601 studio-swing pixel.
func yuvPixel(dst []byte, y, u, v byte) {
	c := 298 * (int32(y) - 16)
	d := int32(u) - 128
	e := int32(v) - 128
	dst[0] = clampByte((c + 409*e + 128) >> 8)
	dst[1] = clampByte((c - 100*d - 208*e + 128) >> 8)
	dst[2] = clampByte((c + 516*d + 128) >> 8)
}

func clampByte(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
