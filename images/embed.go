package images

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-nnaccel/compute"
)

// LetterboxFill is the value written to canvas pixels not covered by the
// resized frame.
const LetterboxFill float32 = 0.5

// EmbedBox places a resized frame inside a larger canvas.
type EmbedBox struct {
	// X is the left column of the frame on the canvas.
	X int `json:"x" yaml:"x"`
	// Y is the top row of the frame on the canvas.
	Y int `json:"y" yaml:"y"`
	// Width is the canvas width.
	Width int `json:"width" yaml:"width"`
	// Height is the canvas height.
	Height int `json:"height" yaml:"height"`
}

// Validate checks that a dstW x dstH frame fits the canvas at (X, Y).
func (b EmbedBox) Validate(dstW, dstH int) error {
	if b.X < 0 || b.Y < 0 {
		return errors.Wrapf(ErrInvalidArgument, "embed offset (%d, %d)", b.X, b.Y)
	}
	if b.Width < dstW || b.Height < dstH || b.X+dstW > b.Width || b.Y+dstH > b.Height {
		return errors.Wrapf(ErrInvalidArgument, "%dx%d frame at (%d, %d) does not fit %dx%d canvas",
			dstW, dstH, b.X, b.Y, b.Width, b.Height)
	}
	return nil
}

// Letterbox computes the aspect preserving size of a srcW x srcH frame inside
// a netW x netH network input and centres it.
//
// The scaled size uses the same integer arithmetic as the box correction of
// the detection decoder, so boxes map back onto the frame that was embedded.
// The offset is (net-dst)/2 rounded down, while the correction assumes the
// exact half, so an odd margin leaves corrected boxes up to half a pixel off.
//
// Arguments:
// - srcW, srcH: Original frame size.
// - netW, netH: Network input size.
//
// Returns:
// - dstW, dstH: Size to resize the frame to.
// - box: Placement on the network canvas.
// - error: ErrInvalidArgument for non-positive sizes.
//
// @example
// dstW, dstH, box, err := images.Letterbox(1920, 1080, 416, 416) // 416x234 at (0, 91)
func Letterbox(srcW, srcH, netW, netH int) (dstW, dstH int, box EmbedBox, err error) {
	if srcW <= 0 || srcH <= 0 || netW <= 0 || netH <= 0 {
		return 0, 0, EmbedBox{}, errors.Wrapf(ErrInvalidArgument, "letterbox %dx%d into %dx%d", srcW, srcH, netW, netH)
	}
	if float32(netW)/float32(srcW) < float32(netH)/float32(srcH) {
		dstW = netW
		dstH = srcH * netW / srcW
	} else {
		dstH = netH
		dstW = srcW * netH / srcH
	}
	dstW = max(dstW, 1)
	dstH = max(dstH, 1)
	box = EmbedBox{
		X:      (netW - dstW) / 2,
		Y:      (netH - dstH) / 2,
		Width:  netW,
		Height: netH,
	}
	return dstW, dstH, box, nil
}

// ResizeEmbed resizes interleaved three channel data with p and places it on
// a canvas described by box, filling the rest with LetterboxFill.
//
// img must be a three channel planar float image of box.Width x box.Height.
// Work is split per canvas row: rows above or below the frame are filled,
// rows inside it get left and right margins filled and the frame row
// resized in between. A nil pool processes canvas rows serially.
func ResizeEmbed(img *Image, p *ResizeParams, data []byte, box EmbedBox, order ChannelOrder, pool *compute.Pool) error {
	if err := checkResize(img, p, data); err != nil {
		return err
	}
	if err := box.Validate(p.DstWidth, p.DstHeight); err != nil {
		return err
	}
	if img.Width != box.Width || img.Height != box.Height {
		return errors.Wrapf(ErrInvalidArgument, "canvas %dx%d does not match embed box %dx%d",
			img.Width, img.Height, box.Width, box.Height)
	}

	embedRow := func(row int) {
		if row < box.Y || row >= box.Y+p.DstHeight {
			fillRow(destinationPlanes(img, OrderRGB, row, 0, box.Width))
			return
		}
		if box.X > 0 {
			fillRow(destinationPlanes(img, OrderRGB, row, 0, box.X))
		}
		buf := getRowBuffers(p.DstWidth)
		resizeRow(destinationPlanes(img, order, row, box.X, p.DstWidth), data, p, row-box.Y, buf)
		rowBufferPool.Put(buf)
		if right := box.Width - box.X - p.DstWidth; right > 0 {
			fillRow(destinationPlanes(img, OrderRGB, row, box.X+p.DstWidth, right))
		}
	}

	if pool == nil {
		for row := 0; row < box.Height; row++ {
			embedRow(row)
		}
		return nil
	}
	pool.Compute1D(box.Height, embedRow)
	return nil
}

func fillRow(planes [3][]float32) {
	for _, plane := range planes {
		for i := range plane {
			plane[i] = LetterboxFill
		}
	}
}
