package kernels

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-nnaccel/compute"
)

// LeakySlope is the negative slope of the leaky ReLU applied after folded
// batch normalization.
const LeakySlope float32 = 0.1

// NormalizeParams describes a folded batch normalization over X, which holds
// batch*Filters planes of Spatial floats. For filter f the transform is
// B[f]*x + A[f], with
//
//	A = bias - scale*mean/sqrt(variance)
//	B = scale/sqrt(variance)
//
// precomputed by the caller.
type NormalizeParams struct {
	X       []float32
	A       []float32
	B       []float32
	Spatial int
}

// NormalizeActivate applies the folded normalization followed by a leaky ReLU
// in place, one grid item per (batch, filter).
func NormalizeActivate(pool *compute.Pool, p *NormalizeParams, batch, filters int) error {
	if p == nil || batch < 1 || filters < 1 || p.Spatial < 1 {
		return errors.Wrap(ErrInvalidArgument, "normalize shape")
	}
	if len(p.A) < filters || len(p.B) < filters {
		return errors.Wrapf(ErrInvalidArgument, "normalize coefficients %d/%d for %d filters", len(p.A), len(p.B), filters)
	}
	if need := batch * filters * p.Spatial; len(p.X) < need {
		return errors.Wrapf(ErrInvalidArgument, "normalize input has %d floats, want %d", len(p.X), need)
	}

	pool.Compute2D(batch, filters, func(b, f int) {
		start := (b*filters + f) * p.Spatial
		normalizeLeaky(p.X[start:start+p.Spatial], p.A[f], p.B[f])
	})
	return nil
}

func normalizeLeaky(x []float32, a, b float32) {
	for i, v := range x {
		v = b*v + a
		if v <= 0 {
			v *= LeakySlope
		}
		x[i] = v
	}
}
