package postprocess

import (
	"github.com/pkg/errors"
)

// CorrectParam maps boxes decoded in network space back onto the original
// image. It undoes the aspect preserving letterbox and moves the origin from
// the box centre to its top-left corner:
//
//	x' = XT*x - WT*w + XD    w' = 2*WT*w
//	y' = YT*y - HT*h + YD    h' = 2*HT*h
type CorrectParam struct {
	XT float32 `json:"xt" yaml:"xt"`
	WT float32 `json:"wt" yaml:"wt"`
	XD float32 `json:"xd" yaml:"xd"`
	YT float32 `json:"yt" yaml:"yt"`
	HT float32 `json:"ht" yaml:"ht"`
	YD float32 `json:"yd" yaml:"yd"`
}

// NewCorrectParam derives the coefficients for a w x h image that was
// letterboxed into a netW x netH network input.
//
// The scaled size uses the same integer arithmetic as images.Letterbox, so the
// two always agree on where the image sits inside the canvas.
//
// Arguments:
// - w, h: Original image size.
// - netW, netH: Network input size.
//
// Returns:
// - The coefficients.
// - ErrInvalidArgument if any size is not positive.
//
// @example
// param, err := postprocess.NewCorrectParam(1920, 1080, 416, 416)
// box = param.Correct(box)
func NewCorrectParam(w, h, netW, netH int) (CorrectParam, error) {
	if w < 1 || h < 1 || netW < 1 || netH < 1 {
		return CorrectParam{}, errors.Wrapf(ErrInvalidArgument, "correct param image %dx%d network %dx%d", w, h, netW, netH)
	}

	var newW, newH int
	if float32(netW)/float32(w) < float32(netH)/float32(h) {
		newW = netW
		newH = h * netW / w
	} else {
		newH = netH
		newW = w * netH / h
	}
	if newW < 1 || newH < 1 {
		return CorrectParam{}, errors.Wrapf(ErrInvalidArgument, "image %dx%d collapses inside %dx%d", w, h, netW, netH)
	}

	return CorrectParam{
		XT: float32(w*netW) / float32(newW),
		WT: float32(w*netW) / float32(2*newW),
		XD: -float32(w*(netW-newW)) / float32(2*newW),
		YT: float32(h*netH) / float32(newH),
		HT: float32(h*netH) / float32(2*newH),
		YD: -float32(h*(netH-newH)) / float32(2*newH),
	}, nil
}

// Correct applies the mapping to one box. Probability, class and anchor
// fields are carried over unchanged.
func (p CorrectParam) Correct(box ObjectBox) ObjectBox {
	out := box
	out.X = p.XT*box.X - p.WT*box.W + p.XD
	out.Y = p.YT*box.Y - p.HT*box.H + p.YD
	out.W = 2 * p.WT * box.W
	out.H = 2 * p.HT * box.H
	return out
}

// StretchCorrectParam returns the coefficients for a w x h image that was
// resized to the network input without keeping its aspect ratio. Boxes only
// need scaling and the centre to corner shift.
func StretchCorrectParam(w, h int) (CorrectParam, error) {
	if w < 1 || h < 1 {
		return CorrectParam{}, errors.Wrapf(ErrInvalidArgument, "correct param image %dx%d", w, h)
	}
	return CorrectParam{
		XT: float32(w),
		WT: float32(w) / 2,
		YT: float32(h),
		HT: float32(h) / 2,
	}, nil
}
