// Package kernels - provides the specialized convolution, pooling and
// activation kernels run over planar float tensors, plus the dispatch that
// picks a kernel for a layer shape.
//
// Every kernel works on one (batch, output channel) slice at a time. That
// slice is the unit of parallel work: the dispatchers fan a batch x channel
// grid out over a compute.Pool and each item writes only its own slice.
package kernels

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument is returned for nil or short buffers, non-positive
	// dimensions and inconsistent layer shapes.
	ErrInvalidArgument = errors.New("kernels: invalid argument")
	// ErrBackend is returned when the generic convolution backend fails.
	ErrBackend = errors.New("kernels: backend failure")
)

// ConvParams describes one convolution layer invocation.
//
// All tensors are NCHW float32. Input holds batch*InCh planes of W x H,
// Output holds batch*OutCh planes of OutW x OutH, and Weights holds OutCh
// filters of (InCh/Groups)*Size*Size taps. Workspace is caller owned scratch
// for the zero padded copy of the input used by the 3x3 kernels; it must hold
// WorkspaceSize(batch) floats and must not be shared by concurrent dispatches.
type ConvParams struct {
	Input     []float32
	Output    []float32
	Weights   []float32
	Workspace []float32

	Size   int
	Pad    int
	Stride int
	Groups int

	W    int
	H    int
	InCh int

	OutW  int
	OutH  int
	OutCh int
}

// PaddedSize returns the width and height of one zero padded input plane.
func (p *ConvParams) PaddedSize() (int, int) {
	return p.W + 2*p.Pad, p.H + 2*p.Pad
}

// WorkspaceSize returns the number of floats the border workspace needs for
// the given batch.
func (p *ConvParams) WorkspaceSize(batch int) int {
	pw, ph := p.PaddedSize()
	return batch * p.InCh * pw * ph
}

// OutputSlice returns the output plane of batch b and output channel oc.
//
// Plane index b*OutCh+oc is unique per grid item, so the slices handed to
// concurrent items never overlap.
func (p *ConvParams) OutputSlice(b, oc int) []float32 {
	n := p.OutW * p.OutH
	start := (b*p.OutCh + oc) * n
	return p.Output[start : start+n]
}

// Validate checks dimensions and buffer lengths for a dispatch over batch
// images. The workspace is checked separately because only the 3x3 kernels
// use it.
func (p *ConvParams) Validate(batch int) error {
	if p == nil {
		return errors.Wrap(ErrInvalidArgument, "nil conv params")
	}
	if batch < 1 {
		return errors.Wrapf(ErrInvalidArgument, "batch %d", batch)
	}
	if p.W < 1 || p.H < 1 || p.InCh < 1 || p.OutW < 1 || p.OutH < 1 || p.OutCh < 1 {
		return errors.Wrapf(ErrInvalidArgument, "conv shape in %dx%dx%d out %dx%dx%d",
			p.W, p.H, p.InCh, p.OutW, p.OutH, p.OutCh)
	}
	if p.Size < 1 || p.Stride < 1 || p.Pad < 0 {
		return errors.Wrapf(ErrInvalidArgument, "conv size %d stride %d pad %d", p.Size, p.Stride, p.Pad)
	}
	if p.Groups < 1 || p.InCh%p.Groups != 0 || p.OutCh%p.Groups != 0 {
		return errors.Wrapf(ErrInvalidArgument, "groups %d do not divide channels %d/%d", p.Groups, p.InCh, p.OutCh)
	}
	if w, h := OutputSize(p.W, p.Size, p.Pad, p.Stride), OutputSize(p.H, p.Size, p.Pad, p.Stride); w != p.OutW || h != p.OutH {
		return errors.Wrapf(ErrInvalidArgument, "output %dx%d, layer produces %dx%d", p.OutW, p.OutH, w, h)
	}
	if need := batch * p.InCh * p.W * p.H; len(p.Input) < need {
		return errors.Wrapf(ErrInvalidArgument, "input has %d floats, want %d", len(p.Input), need)
	}
	if need := p.OutCh * (p.InCh / p.Groups) * p.Size * p.Size; len(p.Weights) < need {
		return errors.Wrapf(ErrInvalidArgument, "weights have %d floats, want %d", len(p.Weights), need)
	}
	if need := batch * p.OutCh * p.OutW * p.OutH; len(p.Output) < need {
		return errors.Wrapf(ErrInvalidArgument, "output has %d floats, want %d", len(p.Output), need)
	}
	return nil
}

// OutputSize is the spatial output length of a window of size taps sliding
// with stride over in samples padded by pad on both sides.
//
// @example
// OutputSize(416, 3, 1, 1) // 416
// OutputSize(416, 2, 0, 2) // 208
func OutputSize(in, size, pad, stride int) int {
	if stride < 1 {
		return 0
	}
	return (in+2*pad-size)/stride + 1
}

// MaxPoolParams describes one max pooling layer invocation. Input and Output
// are NCHW with Channels planes per image.
type MaxPoolParams struct {
	Input  []float32
	Output []float32

	Size   int
	Pad    int
	Stride int

	W        int
	H        int
	Channels int

	OutW int
	OutH int
}

// OutputSlice returns the output plane of batch b and channel c.
func (p *MaxPoolParams) OutputSlice(b, c int) []float32 {
	n := p.OutW * p.OutH
	start := (b*p.Channels + c) * n
	return p.Output[start : start+n]
}

func (p *MaxPoolParams) inputPlane(b, c int) []float32 {
	n := p.W * p.H
	start := (b*p.Channels + c) * n
	return p.Input[start : start+n]
}

// Validate checks dimensions and buffer lengths for a dispatch over batch
// images.
func (p *MaxPoolParams) Validate(batch int) error {
	if p == nil {
		return errors.Wrap(ErrInvalidArgument, "nil maxpool params")
	}
	if batch < 1 || p.W < 1 || p.H < 1 || p.Channels < 1 || p.OutW < 1 || p.OutH < 1 {
		return errors.Wrapf(ErrInvalidArgument, "maxpool batch %d in %dx%dx%d out %dx%d",
			batch, p.W, p.H, p.Channels, p.OutW, p.OutH)
	}
	if p.Size < 1 || p.Stride < 1 || p.Pad < 0 {
		return errors.Wrapf(ErrInvalidArgument, "maxpool size %d stride %d pad %d", p.Size, p.Stride, p.Pad)
	}
	if need := batch * p.Channels * p.W * p.H; len(p.Input) < need {
		return errors.Wrapf(ErrInvalidArgument, "input has %d floats, want %d", len(p.Input), need)
	}
	if need := batch * p.Channels * p.OutW * p.OutH; len(p.Output) < need {
		return errors.Wrapf(ErrInvalidArgument, "output has %d floats, want %d", len(p.Output), need)
	}
	return nil
}
