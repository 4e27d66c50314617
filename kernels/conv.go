package kernels

// Conv1x1 computes output plane (b, oc) of a 1x1, stride 1, single group
// convolution. Input channels are consumed four at a time with a scalar tail.
func Conv1x1(p *ConvParams, b, oc int) {
	plane := p.W * p.H
	out := p.OutputSlice(b, oc)
	clear(out)

	kernel := p.Weights[oc*p.InCh : (oc+1)*p.InCh]
	in := p.Input[b*p.InCh*plane : (b+1)*p.InCh*plane]

	q := 0
	for ; q+3 < p.InCh; q += 4 {
		i0 := in[q*plane : (q+1)*plane]
		i1 := in[(q+1)*plane : (q+2)*plane]
		i2 := in[(q+2)*plane : (q+3)*plane]
		i3 := in[(q+3)*plane : (q+4)*plane]
		k0, k1, k2, k3 := kernel[q], kernel[q+1], kernel[q+2], kernel[q+3]
		for j := range out {
			out[j] += i0[j]*k0 + i1[j]*k1 + i2[j]*k2 + i3[j]*k3
		}
	}
	for ; q < p.InCh; q++ {
		i0 := in[q*plane : (q+1)*plane]
		k0 := kernel[q]
		for j := range out {
			out[j] += i0[j] * k0
		}
	}
}

// Conv3x3 computes output plane (b, oc) of a dense 3x3, stride 1, single
// group convolution. It reads the zero padded planes that MakeBorderData
// wrote into p.Workspace, summing over every input channel.
func Conv3x3(p *ConvParams, b, oc int) {
	pw, ph := p.PaddedSize()
	plane := pw * ph
	out := p.OutputSlice(b, oc)
	clear(out)

	kernel := p.Weights[oc*p.InCh*9 : (oc+1)*p.InCh*9]
	base := b * p.InCh * plane
	for q := 0; q < p.InCh; q++ {
		img := p.Workspace[base+q*plane : base+(q+1)*plane]
		conv3x3Plane(out, img, kernel[q*9:q*9+9], pw, p.OutW, p.OutH)
	}
}

// DepthwiseConv3x3 computes output plane (b, oc) of a depthwise 3x3, stride 1
// convolution: output channel oc only sees padded input channel oc.
func DepthwiseConv3x3(p *ConvParams, b, oc int) {
	pw, ph := p.PaddedSize()
	plane := pw * ph
	out := p.OutputSlice(b, oc)
	clear(out)

	start := (b*p.InCh + oc) * plane
	conv3x3Plane(out, p.Workspace[start:start+plane], p.Weights[oc*9:oc*9+9], pw, p.OutW, p.OutH)
}

// conv3x3Plane accumulates one padded plane filtered by a 3x3 kernel into out.
// Two output rows are produced per pass from four input rows, so the two
// middle rows are loaded once for both; an odd last row is done alone.
func conv3x3Plane(out, img, k []float32, pw, outw, outh int) {
	k0, k1, k2 := k[0], k[1], k[2]
	k3, k4, k5 := k[3], k[4], k[5]
	k6, k7, k8 := k[6], k[7], k[8]

	i := 0
	for ; i+1 < outh; i += 2 {
		r0 := img[i*pw : (i+1)*pw]
		r1 := img[(i+1)*pw : (i+2)*pw]
		r2 := img[(i+2)*pw : (i+3)*pw]
		r3 := img[(i+3)*pw : (i+4)*pw]
		o0 := out[i*outw : (i+1)*outw]
		o1 := out[(i+1)*outw : (i+2)*outw]
		for j := 0; j < outw; j++ {
			m1 := r1[j]*k3 + r1[j+1]*k4 + r1[j+2]*k5
			m2 := r2[j]*k6 + r2[j+1]*k7 + r2[j+2]*k8
			o0[j] += r0[j]*k0 + r0[j+1]*k1 + r0[j+2]*k2 + m1 + m2
			o1[j] += r1[j]*k0 + r1[j+1]*k1 + r1[j+2]*k2 +
				r2[j]*k3 + r2[j+1]*k4 + r2[j+2]*k5 +
				r3[j]*k6 + r3[j+1]*k7 + r3[j+2]*k8
		}
	}
	if i < outh {
		r0 := img[i*pw : (i+1)*pw]
		r1 := img[(i+1)*pw : (i+2)*pw]
		r2 := img[(i+2)*pw : (i+3)*pw]
		o0 := out[i*outw : (i+1)*outw]
		for j := 0; j < outw; j++ {
			o0[j] += r0[j]*k0 + r0[j+1]*k1 + r0[j+2]*k2 +
				r1[j]*k3 + r1[j+1]*k4 + r1[j+2]*k5 +
				r2[j]*k6 + r2[j+1]*k7 + r2[j+2]*k8
		}
	}
}
