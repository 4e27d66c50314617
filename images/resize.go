package images

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-nnaccel/compute"
)

// rowBuffers are the two horizontally interpolated Q7 rows of one destination
// row. Pooled so the per-row parallel path does not allocate per task.
type rowBuffers struct {
	rows0 []int16
	rows1 []int16
}

var rowBufferPool = sync.Pool{
	New: func() any { return &rowBuffers{} },
}

func getRowBuffers(width int) *rowBuffers {
	b := rowBufferPool.Get().(*rowBuffers)
	n := width * pixelStride
	if cap(b.rows0) < n {
		b.rows0 = make([]int16, n)
		b.rows1 = make([]int16, n)
	}
	b.rows0 = b.rows0[:n]
	b.rows1 = b.rows1[:n]
	return b
}

// hresize interpolates one source row horizontally into dst (Q7 triplets).
func hresize(dst []int16, row []byte, p *ResizeParams) {
	for dx, sx := range p.XOfs {
		a0 := int32(p.Alpha[2*dx])
		a1 := int32(p.Alpha[2*dx+1])
		s := row[sx : sx+2*pixelStride]
		o := dst[dx*pixelStride : dx*pixelStride+pixelStride]
		o[0] = int16((int32(s[0])*a0 + int32(s[3])*a1) >> horizontalShift)
		o[1] = int16((int32(s[1])*a0 + int32(s[4])*a1) >> horizontalShift)
		o[2] = int16((int32(s[2])*a0 + int32(s[5])*a1) >> horizontalShift)
	}
}

// vresize blends two Q7 rows with the weights of destination row dy and
// writes normalized floats into the three planes.
func vresize(planes [3][]float32, rows0, rows1 []int16, b0, b1 int16) {
	w0, w1 := int32(b0), int32(b1)
	for dx := range planes[0] {
		for k := 0; k < 3; k++ {
			i := dx*pixelStride + k
			v := ((w0*int32(rows0[i]))>>verticalShift + (w1*int32(rows1[i]))>>verticalShift + roundingBias) >> finalShift
			planes[k][dx] = float32(v) / 255
		}
	}
}

// sourceRow returns the interleaved source row starting at YOfs-style offset.
func sourceRow(data []byte, p *ResizeParams, yofs int32) []byte {
	start := p.SrcWidth * int(yofs)
	return data[start : start+p.SrcWidth*pixelStride]
}

// resizeRow computes destination row dy independently of any other row.
func resizeRow(planes [3][]float32, data []byte, p *ResizeParams, dy int, buf *rowBuffers) {
	sy := p.YOfs[dy]
	hresize(buf.rows0, sourceRow(data, p, sy), p)
	hresize(buf.rows1, sourceRow(data, p, sy+pixelStride), p)
	vresize(planes, buf.rows0, buf.rows1, p.Beta[2*dy], p.Beta[2*dy+1])
}

// destinationPlanes returns, per source channel, the w values of row `row`
// starting at column x of the plane that channel is written to.
func destinationPlanes(img *Image, order ChannelOrder, row, x, w int) [3][]float32 {
	var planes [3][]float32
	for k := 0; k < 3; k++ {
		plane := img.Plane(order.plane(k, 3))
		start := row*img.Width + x
		planes[k] = plane[start : start+w]
	}
	return planes
}

func checkResize(img *Image, p *ResizeParams, data []byte) error {
	if err := checkPlanar(img, 3); err != nil {
		return err
	}
	if p == nil || len(p.XOfs) != p.DstWidth || len(p.YOfs) != p.DstHeight {
		return errors.Wrap(ErrInvalidArgument, "resize params not built")
	}
	if need := p.SrcWidth * p.SrcHeight * pixelStride; len(data) < need {
		return errors.Wrapf(ErrInvalidArgument, "source has %d bytes, want %d", len(data), need)
	}
	return nil
}

// ResizeFromRGB resizes interleaved RGB data into a planar float image using
// the fixed-point bilinear table p. A nil pool runs the serial path.
func ResizeFromRGB(img *Image, p *ResizeParams, data []byte, pool *compute.Pool) error {
	return ResizeFromPacked(img, p, data, OrderRGB, pool)
}

// ResizeFromBGR is ResizeFromRGB for BGR input. Like FromBGR it writes
// channels in source order; pass OrderBGR to ResizeFromPacked to swap.
func ResizeFromBGR(img *Image, p *ResizeParams, data []byte, pool *compute.Pool) error {
	return ResizeFromPacked(img, p, data, OrderRGB, pool)
}

// ResizeFromYUV converts packed YUYV to RGB and resizes it.
func ResizeFromYUV(img *Image, p *ResizeParams, data []byte, pool *compute.Pool) error {
	if p == nil {
		return errors.Wrap(ErrInvalidArgument, "resize params not built")
	}
	rgb, err := YUYVToRGB(data, p.SrcWidth, p.SrcHeight)
	if err != nil {
		return err
	}
	return ResizeFromPacked(img, p, rgb, OrderRGB, pool)
}

// ResizeFromPacked resizes interleaved three channel data into img, which
// must be a three channel planar float image of exactly p.DstWidth x
// p.DstHeight.
//
// Arguments:
// - img: Destination tensor.
// - p: Table built for (img size, source size).
// - data: Interleaved source, p.SrcWidth*p.SrcHeight*3 bytes.
// - order: Plane assignment of the source channels.
// - pool: Worker pool. With a pool each destination row is one task;
// without one rows are processed serially with a rolling row buffer.
//
// Returns:
// - ErrInvalidArgument on any mismatch. On error img is left unspecified.
func ResizeFromPacked(img *Image, p *ResizeParams, data []byte, order ChannelOrder, pool *compute.Pool) error {
	if err := checkResize(img, p, data); err != nil {
		return err
	}
	if img.Width != p.DstWidth || img.Height != p.DstHeight {
		return errors.Wrapf(ErrInvalidArgument, "destination %dx%d does not match params %dx%d",
			img.Width, img.Height, p.DstWidth, p.DstHeight)
	}

	if pool == nil {
		resizeSerial(img, p, data, order)
		return nil
	}

	pool.Compute1D(p.DstHeight, func(dy int) {
		buf := getRowBuffers(p.DstWidth)
		resizeRow(destinationPlanes(img, order, dy, 0, p.DstWidth), data, p, dy, buf)
		rowBufferPool.Put(buf)
	})
	return nil
}

// resizeSerial walks destination rows in order. When consecutive rows share
// their source pair both buffers are reused; when the new pair starts at the
// previous bottom row, the old bottom buffer becomes the new top buffer and
// only one source row is interpolated.
func resizeSerial(img *Image, p *ResizeParams, data []byte, order ChannelOrder) {
	buf := getRowBuffers(p.DstWidth)
	defer rowBufferPool.Put(buf)

	rows0, rows1 := buf.rows0, buf.rows1
	prev := int32(-1)
	for dy := 0; dy < p.DstHeight; dy++ {
		sy := p.YOfs[dy]
		switch {
		case sy == prev:
			// same source pair, both buffers are current
		case prev >= 0 && sy == prev+pixelStride:
			rows0, rows1 = rows1, rows0
			hresize(rows1, sourceRow(data, p, sy+pixelStride), p)
		default:
			hresize(rows0, sourceRow(data, p, sy), p)
			hresize(rows1, sourceRow(data, p, sy+pixelStride), p)
		}
		prev = sy
		vresize(destinationPlanes(img, order, dy, 0, p.DstWidth), rows0, rows1, p.Beta[2*dy], p.Beta[2*dy+1])
	}
}
