package images

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Fixed-point layout of the bilinear resize.
//
// Weights are Q11 (ResizeCoefScale == 1.0). The horizontal pass multiplies an
// 8 bit sample by a Q11 weight and drops 4 bits, leaving a Q7 intermediate
// that fits an int16 (255*2048>>4 == 32640). The vertical pass multiplies the
// Q7 value by a Q11 weight (Q18), drops 16 bits (Q2), adds a rounding bias of
// half a unit and drops the last 2 bits, landing back on the 0..255 scale.
const (
	ResizeCoefBits  = 11
	ResizeCoefScale = 1 << ResizeCoefBits

	horizontalShift = 4
	verticalShift   = 16
	roundingBias    = 2
	finalShift      = 2
)

// pixelStride is the byte distance between horizontally adjacent pixels of
// the interleaved three channel source.
const pixelStride = 3

// ResizeParams is the precomputed interpolation table for one exact
// (source size, destination size) pair. It depends only on the sizes, never
// on pixel data, and is read-only once built, so one table can be shared by
// any number of concurrent resizes of frames with that size pair. A different
// size pair needs a new table.
type ResizeParams struct {
	DstWidth  int
	DstHeight int
	SrcWidth  int
	SrcHeight int
	ScaleX    float32
	ScaleY    float32

	// XOfs holds, per destination column, the byte offset of the left source
	// pixel within a row (source column * 3).
	XOfs []int32
	// YOfs holds, per destination row, the top source row * 3. The row starts
	// at byte SrcWidth*YOfs[dy].
	YOfs []int32
	// Alpha holds two Q11 weights per destination column.
	Alpha []int16
	// Beta holds two Q11 weights per destination row.
	Beta []int16
}

// NewResizeParams builds the table for resizing a srcW x srcH frame to
// dstW x dstH.
//
// Arguments:
// - dstW, dstH: Destination size, at least 1.
// - srcW, srcH: Source size, at least 2 so there is always a pair of samples.
//
// Returns:
// - The table.
// - ErrInvalidArgument for unusable sizes.
//
// @example
// params, err := images.NewResizeParams(416, 234, 1920, 1080)
func NewResizeParams(dstW, dstH, srcW, srcH int) (*ResizeParams, error) {
	if dstW < 1 || dstH < 1 {
		return nil, errors.Wrapf(ErrInvalidArgument, "destination size %dx%d", dstW, dstH)
	}
	if srcW < 2 || srcH < 2 {
		return nil, errors.Wrapf(ErrInvalidArgument, "source size %dx%d", srcW, srcH)
	}

	p := &ResizeParams{
		DstWidth:  dstW,
		DstHeight: dstH,
		SrcWidth:  srcW,
		SrcHeight: srcH,
		ScaleX:    float32(srcW) / float32(dstW),
		ScaleY:    float32(srcH) / float32(dstH),
	}
	p.XOfs, p.Alpha = resizeCoefficients(dstW, srcW, p.ScaleX)
	p.YOfs, p.Beta = resizeCoefficients(dstH, srcH, p.ScaleY)
	return p, nil
}

// Matches reports whether the table was built for exactly these sizes.
func (p *ResizeParams) Matches(dstW, dstH, srcW, srcH int) bool {
	return p != nil && p.DstWidth == dstW && p.DstHeight == dstH && p.SrcWidth == srcW && p.SrcHeight == srcH
}

// resizeCoefficients computes the source offsets and weight pairs along one
// axis. The source position of destination d is (d+0.5)*scale-0.5; positions
// left of the first sample clamp to it, and positions at or beyond the last
// sample reuse the final pair with all weight on the right sample.
func resizeCoefficients(dst, src int, scale float32) ([]int32, []int16) {
	ofs := make([]int32, dst)
	coef := make([]int16, 2*dst)
	for d := 0; d < dst; d++ {
		f := float32((float64(d)+0.5)*float64(scale) - 0.5)
		s := int(math32.Floor(f))
		f -= float32(s)

		if s < 0 {
			s = 0
			f = 0
		}
		if s >= src-1 {
			s = src - 2
			f = 1
		}

		ofs[d] = int32(s * pixelStride)
		coef[2*d] = saturateInt16((1 - f) * ResizeCoefScale)
		coef[2*d+1] = saturateInt16(f * ResizeCoefScale)
	}
	return ofs, coef
}

// saturateInt16 rounds half away from zero and clamps to the int16 range.
func saturateInt16(x float32) int16 {
	var v int
	if x >= 0 {
		v = int(x + 0.5)
	} else {
		v = int(x - 0.5)
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(v)
}
