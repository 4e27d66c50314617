// Package postprocess - decodes region layer output into object boxes, maps
// them back to image coordinates and suppresses duplicates.
package postprocess

import (
	"github.com/chewxy/math32"
)

// ObjectBox is one detection candidate.
//
// X, Y is the top-left corner once the box has been corrected into image
// space; straight out of GetObjectBox it is the box centre in network
// normalized units. The anchor fields record which grid cell and anchor
// produced the box and take no part in the geometry.
type ObjectBox struct {
	X       float32 `json:"x" yaml:"x"`
	Y       float32 `json:"y" yaml:"y"`
	W       float32 `json:"w" yaml:"w"`
	H       float32 `json:"h" yaml:"h"`
	Prob    float32 `json:"prob" yaml:"prob"`
	ClassID int     `json:"classId" yaml:"classId"`

	AnchorRow   int `json:"anchorRow" yaml:"anchorRow"`
	AnchorCol   int `json:"anchorCol" yaml:"anchorCol"`
	AnchorIndex int `json:"anchorIndex" yaml:"anchorIndex"`
}

// NewObjectBox returns an empty box with no class and no anchor.
func NewObjectBox() ObjectBox {
	return ObjectBox{ClassID: -1, AnchorRow: -1, AnchorCol: -1, AnchorIndex: -1}
}

// CompareProb orders boxes by descending probability. It is the comparator
// of the detection list.
func CompareProb(a, b ObjectBox) int {
	switch {
	case a.Prob > b.Prob:
		return 1
	case a.Prob < b.Prob:
		return -1
	}
	return 0
}

// overlap is the length shared by the spans [x1, x1+w1) and [x2, x2+w2),
// negative when they are disjoint.
func overlap(x1, w1, x2, w2 float32) float32 {
	left := math32.Max(x1, x2)
	right := math32.Min(x1+w1, x2+w2)
	return right - left
}

// Intersection returns the area shared by a and b.
func Intersection(a, b ObjectBox) float32 {
	w := overlap(a.X, a.W, b.X, b.W)
	h := overlap(a.Y, a.H, b.Y, b.H)
	if w < 0 || h < 0 {
		return 0
	}
	return w * h
}

// Union returns area(a) + area(b) - Intersection(a, b).
func Union(a, b ObjectBox) float32 {
	return a.W*a.H + b.W*b.H - Intersection(a, b)
}

// IoU returns the intersection over union of a and b. Two degenerate boxes
// with no area have an IoU of 0.
func IoU(a, b ObjectBox) float32 {
	u := Union(a, b)
	if u <= 0 {
		return 0
	}
	return Intersection(a, b) / u
}
