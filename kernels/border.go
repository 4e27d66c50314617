package kernels

// MakeBorderData copies batch*channels planes of w x h from src into dst,
// surrounding each plane with pad zeros on every side. Each destination plane
// is (w+2*pad) x (h+2*pad); rows outside the source are all zeros.
func MakeBorderData(dst, src []float32, batch, channels, w, h, pad int) {
	pw := w + 2*pad
	o := 0
	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			plane := src[(b*channels+c)*w*h:]
			for y := -pad; y < h+pad; y++ {
				makeBorderRow(dst[o:o+pw], plane, y, pad, w, h)
				o += pw
			}
		}
	}
}

func makeBorderRow(dst, plane []float32, row, pad, w, h int) {
	if row < 0 || row >= h {
		clear(dst)
		return
	}
	clear(dst[:pad])
	copy(dst[pad:pad+w], plane[row*w:row*w+w])
	clear(dst[pad+w:])
}
