package images

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
)

// PackImage converts a decoded image into interleaved RGB bytes ready for
// FromRGB or ResizeFromRGB.
//
// Frames larger than maxW x maxH are first shrunk with a bilinear thumbnail
// that keeps the aspect ratio, which bounds the cost of the fixed-point
// resize for very large stills. A non-positive limit disables the shrink.
//
// Arguments:
// - img: Decoded source image.
// - maxW, maxH: Largest frame size passed through unchanged.
//
// Returns:
// - The packed RGB bytes, width and height of the packed frame.
//
// @example
// data, w, h := images.PackImage(decoded, 1920, 1080)
func PackImage(img image.Image, maxW, maxH int) ([]byte, int, int) {
	b := img.Bounds()
	if maxW > 0 && maxH > 0 && (b.Dx() > maxW || b.Dy() > maxH) {
		img = resize.Thumbnail(uint(maxW), uint(maxH), img, resize.Bilinear)
		b = img.Bounds()
	}

	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*3)

	switch src := img.(type) {
	case *image.RGBA:
		packRGBA(out, src.Pix, src.Stride, w, h)
	case *image.NRGBA:
		packRGBA(out, src.Pix, src.Stride, w, h)
	default:
		o := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				out[o], out[o+1], out[o+2] = c.R, c.G, c.B
				o += 3
			}
		}
	}
	return out, w, h
}

// packRGBA drops the alpha byte of 4 byte per pixel rows.
func packRGBA(out, pix []byte, stride, w, h int) {
	for y := 0; y < h; y++ {
		row := pix[y*stride : y*stride+w*4]
		dst := out[y*w*3 : (y+1)*w*3]
		for x := 0; x < w; x++ {
			dst[3*x] = row[4*x]
			dst[3*x+1] = row[4*x+1]
			dst[3*x+2] = row[4*x+2]
		}
	}
}
