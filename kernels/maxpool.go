package kernels

import (
	"github.com/chewxy/math32"
)

// MaxPool computes output plane (b, c) for any window size, stride and
// padding. Samples outside the input count as -Inf, so a window made only
// of padding yields -Inf.
func MaxPool(p *MaxPoolParams, b, c int) {
	img := p.inputPlane(b, c)
	out := p.OutputSlice(b, c)

	for i := 0; i < p.OutH; i++ {
		for j := 0; j < p.OutW; j++ {
			best := math32.Inf(-1)
			for m := 0; m < p.Size; m++ {
				y := i*p.Stride + m - p.Pad
				if y < 0 || y >= p.H {
					continue
				}
				row := img[y*p.W : (y+1)*p.W]
				for n := 0; n < p.Size; n++ {
					x := j*p.Stride + n - p.Pad
					if x < 0 || x >= p.W {
						continue
					}
					best = math32.Max(best, row[x])
				}
			}
			out[i*p.OutW+j] = best
		}
	}
}

// MaxPool2x2S2 computes output plane (b, c) of a 2x2, stride 2, unpadded
// pool. Output row i reads input rows 2i and 2i+1 directly.
func MaxPool2x2S2(p *MaxPoolParams, b, c int) {
	img := p.inputPlane(b, c)
	out := p.OutputSlice(b, c)

	for i := 0; i < p.OutH; i++ {
		r0 := img[2*i*p.W : (2*i+1)*p.W]
		r1 := img[(2*i+1)*p.W : (2*i+2)*p.W]
		o := out[i*p.OutW : (i+1)*p.OutW]
		for j := range o {
			o[j] = max(r0[2*j], r0[2*j+1], r1[2*j], r1[2*j+1])
		}
	}
}
