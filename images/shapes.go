package images

// Rect is a lightweight integer bounding box in pixel coordinates.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 int
}

// Width returns X2-X1.
func (r Rect) Width() int { return r.X2 - r.X1 }

// Height returns Y2-Y1.
func (r Rect) Height() int { return r.Y2 - r.Y1 }

// Area returns the box area, zero for empty or inverted boxes.
func (r Rect) Area() int {
	if r.X2 <= r.X1 || r.Y2 <= r.Y1 {
		return 0
	}
	return r.Width() * r.Height()
}

// Clip intersects r with a width x height frame.
func (r Rect) Clip(width, height int) Rect {
	return Rect{
		X1: min(max(r.X1, 0), width),
		Y1: min(max(r.Y1, 0), height),
		X2: min(max(r.X2, 0), width),
		Y2: min(max(r.Y2, 0), height),
	}
}

// CalculateIoU returns the intersection over union of two rectangles, 0 when
// they do not overlap.
//
// @example
// iou := CalculateIoU(Rect{0, 0, 10, 10}, Rect{5, 5, 15, 15}) // 25 / 175
func CalculateIoU(r, o Rect) float32 {
	inter := Rect{
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
		X2: min(r.X2, o.X2),
		Y2: min(r.Y2, o.Y2),
	}.Area()
	if inter == 0 {
		return 0
	}
	return float32(inter) / float32(r.Area()+o.Area()-inter)
}
