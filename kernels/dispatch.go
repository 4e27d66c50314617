package kernels

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-nnaccel/compute"
)

// KernelKind is the convolution implementation chosen for a layer shape.
type KernelKind int

const (
	// KindGeneric hands the layer to a Backend, once per (batch, group).
	KindGeneric KernelKind = iota
	// KindDepthwise3x3 is a 3x3 stride 1 conv with one group per channel.
	KindDepthwise3x3
	// KindConv3x3 is the dense 3x3 stride 1 conv specialized for 16 outputs.
	KindConv3x3
	// KindConv1x1 is an unpadded 1x1 stride 1 single group conv.
	KindConv1x1
)

func (k KernelKind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindDepthwise3x3:
		return "depthwise3x3"
	case KindConv3x3:
		return "conv3x3"
	case KindConv1x1:
		return "conv1x1"
	}
	return fmt.Sprintf("KernelKind(%d)", int(k))
}

// ClassifyConv picks the kernel for a layer shape. Checks run in priority
// order; the first match wins.
func ClassifyConv(p ConvParams) KernelKind {
	switch {
	case p.Size == 3 && p.Stride == 1 && p.Groups == p.InCh && p.InCh == p.OutCh:
		return KindDepthwise3x3
	case p.Size == 3 && p.Stride == 1 && p.Groups == 1 && p.OutCh == 16:
		return KindConv3x3
	case p.Size == 1 && p.Stride == 1 && p.Groups == 1 && p.Pad == 0:
		return KindConv1x1
	}
	return KindGeneric
}

// DispatchConv runs one convolution layer over batch images.
//
// Arguments:
// - pool: Worker pool for the batch x OutCh grid. nil runs serially.
// - p: Layer descriptor. The 3x3 kernels fill p.Workspace with the padded
// input first; p.Input is never modified.
// - batch: Number of images in Input.
// - backend: Generic convolution used when no specialized kernel matches.
// nil selects TensorBackend.
//
// Returns:
// - ErrInvalidArgument when the descriptor is inconsistent, ErrBackend when
// the generic backend fails. On error Output is unspecified.
//
// @example
//
//	p := &kernels.ConvParams{Input: x, Output: y, Weights: w, Workspace: ws,
//		Size: 3, Pad: 1, Stride: 1, Groups: 1, W: 52, H: 52, InCh: 8,
//		OutW: 52, OutH: 52, OutCh: 16}
//	err := kernels.DispatchConv(pool, p, 1, nil)
func DispatchConv(pool *compute.Pool, p *ConvParams, batch int, backend Backend) error {
	if err := p.Validate(batch); err != nil {
		return err
	}

	var kernel func(*ConvParams, int, int)
	switch kind := ClassifyConv(*p); kind {
	case KindDepthwise3x3, KindConv3x3:
		if need := p.WorkspaceSize(batch); len(p.Workspace) < need {
			return errors.Wrapf(ErrInvalidArgument, "%s workspace has %d floats, want %d", kind, len(p.Workspace), need)
		}
		MakeBorderData(p.Workspace, p.Input, batch, p.InCh, p.W, p.H, p.Pad)
		kernel = Conv3x3
		if kind == KindDepthwise3x3 {
			kernel = DepthwiseConv3x3
		}
	case KindConv1x1:
		kernel = Conv1x1
	default:
		return dispatchGeneric(p, batch, backend)
	}

	pool.Compute2D(batch, p.OutCh, func(b, oc int) {
		kernel(p, b, oc)
	})
	return nil
}

// dispatchGeneric calls the backend once per (batch, group) on the matching
// input, weight and output sub-ranges.
func dispatchGeneric(p *ConvParams, batch int, backend Backend) error {
	if backend == nil {
		backend = TensorBackend{}
	}
	gin := p.InCh / p.Groups
	gout := p.OutCh / p.Groups
	shape := GroupShape{
		InCh:   gin,
		OutCh:  gout,
		W:      p.W,
		H:      p.H,
		OutW:   p.OutW,
		OutH:   p.OutH,
		Size:   p.Size,
		Pad:    p.Pad,
		Stride: p.Stride,
	}
	inStep := gin * p.W * p.H
	weightStep := gout * gin * p.Size * p.Size
	outStep := gout * p.OutW * p.OutH

	for b := 0; b < batch; b++ {
		for g := 0; g < p.Groups; g++ {
			in := p.Input[(b*p.Groups+g)*inStep : (b*p.Groups+g+1)*inStep]
			weights := p.Weights[g*weightStep : (g+1)*weightStep]
			out := p.Output[(b*p.Groups+g)*outStep : (b*p.Groups+g+1)*outStep]
			if err := backend.Conv(in, weights, out, shape); err != nil {
				return errors.Wrapf(ErrBackend, "batch %d group %d: %v", b, g, err)
			}
		}
	}
	return nil
}

// PoolKind is the max pooling implementation chosen for a layer shape.
type PoolKind int

const (
	// PoolGeneric handles any size, stride and padding with bounds checks.
	PoolGeneric PoolKind = iota
	// Pool2x2S2 is the unpadded 2x2 stride 2 pool.
	Pool2x2S2
)

func (k PoolKind) String() string {
	switch k {
	case PoolGeneric:
		return "maxpool"
	case Pool2x2S2:
		return "maxpool2x2s2"
	}
	return fmt.Sprintf("PoolKind(%d)", int(k))
}

// ClassifyMaxPool picks the pooling kernel for a layer shape.
func ClassifyMaxPool(p MaxPoolParams) PoolKind {
	if p.Size == 2 && p.Stride == 2 && p.Pad == 0 {
		return Pool2x2S2
	}
	return PoolGeneric
}

// DispatchMaxPool runs one max pooling layer over batch images, one grid item
// per (batch, channel).
func DispatchMaxPool(pool *compute.Pool, p *MaxPoolParams, batch int) error {
	if err := p.Validate(batch); err != nil {
		return err
	}
	kernel := MaxPool
	if ClassifyMaxPool(*p) == Pool2x2S2 {
		if 2*p.OutW > p.W || 2*p.OutH > p.H {
			return errors.Wrapf(ErrInvalidArgument, "2x2 pool output %dx%d from %dx%d", p.OutW, p.OutH, p.W, p.H)
		}
		kernel = MaxPool2x2S2
	}
	pool.Compute2D(batch, p.Channels, func(b, c int) {
		kernel(p, b, c)
	})
	return nil
}
