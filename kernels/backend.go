package kernels

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GroupShape is the shape of one group of a grouped convolution as seen by a
// Backend: InCh input planes of W x H become OutCh planes of OutW x OutH.
type GroupShape struct {
	InCh   int
	OutCh  int
	W      int
	H      int
	OutW   int
	OutH   int
	Size   int
	Pad    int
	Stride int
}

// Backend is the general purpose convolution used for shapes no specialized
// kernel covers.
//
// Conv convolves in (InCh x H x W) with weights (OutCh x InCh x Size x Size)
// into out (OutCh x OutH x OutW), zero padding by Pad.
type Backend interface {
	Conv(in, weights, out []float32, shape GroupShape) error
}

// TensorBackend lowers the convolution to a matrix product: the padded input
// is unrolled into an im2col matrix of (InCh*Size*Size) x (OutH*OutW) and
// multiplied by the (OutCh) x (InCh*Size*Size) weight matrix.
type TensorBackend struct{}

// Conv implements Backend.
func (TensorBackend) Conv(in, weights, out []float32, s GroupShape) error {
	rows := s.InCh * s.Size * s.Size
	cols := s.OutH * s.OutW

	col := make([]float32, rows*cols)
	im2col(col, in, s)

	w := tensor.New(tensor.WithShape(s.OutCh, rows), tensor.WithBacking(weights[:s.OutCh*rows]))
	x := tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(col))
	y, err := tensor.MatMul(w, x)
	if err != nil {
		return errors.Wrap(err, "im2col matmul")
	}
	data, ok := y.Data().([]float32)
	if !ok || len(data) != s.OutCh*cols {
		return errors.Errorf("im2col matmul returned %T", y.Data())
	}
	copy(out, data)
	return nil
}

// im2col writes, for every tap (c, ky, kx), the input sample each output
// position reads through that tap; padding reads as zero.
func im2col(col, in []float32, s GroupShape) {
	cols := s.OutH * s.OutW
	r := 0
	for c := 0; c < s.InCh; c++ {
		plane := in[c*s.W*s.H : (c+1)*s.W*s.H]
		for ky := 0; ky < s.Size; ky++ {
			for kx := 0; kx < s.Size; kx++ {
				dst := col[r*cols : (r+1)*cols]
				for oy := 0; oy < s.OutH; oy++ {
					y := oy*s.Stride + ky - s.Pad
					for ox := 0; ox < s.OutW; ox++ {
						x := ox*s.Stride + kx - s.Pad
						if y < 0 || y >= s.H || x < 0 || x >= s.W {
							dst[oy*s.OutW+ox] = 0
							continue
						}
						dst[oy*s.OutW+ox] = plane[y*s.W+x]
					}
				}
				r++
			}
		}
	}
}

// GraphBackend builds a one node gorgonia expression graph with Conv2d and
// runs it on a tape machine. It is slower than TensorBackend and serves as an
// independent reference implementation.
type GraphBackend struct{}

// Conv implements Backend.
func (GraphBackend) Conv(in, weights, out []float32, s GroupShape) error {
	g := G.NewGraph()

	xt := tensor.New(tensor.WithShape(1, s.InCh, s.H, s.W), tensor.Of(tensor.Float32),
		tensor.WithBacking(in[:s.InCh*s.H*s.W]))
	kt := tensor.New(tensor.WithShape(s.OutCh, s.InCh, s.Size, s.Size), tensor.Of(tensor.Float32),
		tensor.WithBacking(weights[:s.OutCh*s.InCh*s.Size*s.Size]))

	x := G.NewTensor(g, tensor.Float32, 4, G.WithShape(xt.Shape()...), G.WithName("input"), G.WithValue(xt))
	k := G.NewTensor(g, tensor.Float32, 4, G.WithShape(kt.Shape()...), G.WithName("weights"), G.WithValue(kt))

	y, err := G.Conv2d(x, k, tensor.Shape{s.Size, s.Size}, []int{s.Pad, s.Pad}, []int{s.Stride, s.Stride}, []int{1, 1})
	if err != nil {
		return errors.Wrap(err, "conv2d node")
	}

	tm := G.NewTapeMachine(g)
	defer tm.Close()
	if err := tm.RunAll(); err != nil {
		return errors.Wrap(err, "run conv2d graph")
	}

	data, ok := y.Value().Data().([]float32)
	if !ok || len(data) != s.OutCh*s.OutH*s.OutW {
		return errors.Errorf("conv2d graph returned %v", y.Shape())
	}
	copy(out, data)
	return nil
}
