package postprocess

import (
	flatbush "github.com/bmharper/flatbush-go"
	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-nnaccel/common/orderedlist"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// IoUThreshold is the overlap above which the weaker of two same class
	// boxes is removed. Values <= 0 disable suppression.
	IoUThreshold float32 `json:"iouThreshold" yaml:"iouThreshold"`
	// Indexed forces the spatially indexed scan regardless of the box count.
	Indexed bool `json:"indexed" yaml:"indexed"`
}

// Apply runs the configured suppression over l.
func (c *NMSConfig) Apply(l *orderedlist.List[ObjectBox]) {
	if c.Indexed || l.Len() >= IndexedNMSMinBoxes {
		IndexedNMS(l, c.IoUThreshold)
		return
	}
	NMS(l, c.IoUThreshold)
}

// NMS performs greedy non-maximum suppression in place.
//
// l must already be sorted by descending probability. Each surviving box, in
// order, removes every later box of the same class whose IoU with it exceeds
// thresh. Running it again with the same threshold changes nothing.
//
// Arguments:
// - l: Detection list, highest probability first.
// - thresh: IoU threshold. Values <= 0 leave the list untouched.
func NMS(l *orderedlist.List[ObjectBox], thresh float32) {
	if l == nil || thresh <= 0 {
		return
	}
	for cur := l.Front(); !cur.IsNil(); cur = l.Next(cur) {
		a, _ := l.Get(cur)
		for h := l.Next(cur); !h.IsNil(); {
			b, _ := l.Get(h)
			next := l.Next(h)
			if a.ClassID == b.ClassID && IoU(a, b) > thresh {
				_, _ = l.Remove(h)
			}
			h = next
		}
	}
}

// IndexedNMS gives the same result as NMS but only tests pairs whose bounds
// touch, found through a flatbush spatial index. It pays off once the
// candidate list is long.
func IndexedNMS(l *orderedlist.List[ObjectBox], thresh float32) {
	if l == nil || thresh <= 0 || l.Len() < 2 {
		return
	}

	handles := make([]orderedlist.Handle, 0, l.Len())
	boxes := make([]ObjectBox, 0, l.Len())
	indexable := true
	l.ForEach(func(h orderedlist.Handle, b ObjectBox) bool {
		handles = append(handles, h)
		boxes = append(boxes, b)
		indexable = indexable && inIndexRange(b)
		return true
	})
	// Boxes the integer index cannot hold go through the full pairwise scan.
	if !indexable {
		NMS(l, thresh)
		return
	}

	// Index bounds are widened to whole units, so the index can only report
	// extra candidates, never miss an overlapping pair.
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(boxes))
	for _, b := range boxes {
		minX, minY, maxX, maxY := indexBounds(b)
		fb.Add(minX, minY, maxX, maxY)
	}
	fb.Finish()

	removed := make([]bool, len(boxes))
	for i, a := range boxes {
		if removed[i] {
			continue
		}
		minX, minY, maxX, maxY := indexBounds(a)
		for _, j := range fb.Search(minX, minY, maxX, maxY) {
			if j <= i || removed[j] {
				continue
			}
			if a.ClassID == boxes[j].ClassID && IoU(a, boxes[j]) > thresh {
				removed[j] = true
			}
		}
	}

	for i, h := range handles {
		if removed[i] {
			_, _ = l.Remove(h)
		}
	}
}

func indexBounds(b ObjectBox) (int32, int32, int32, int32) {
	return int32(math32.Floor(b.X)), int32(math32.Floor(b.Y)),
		int32(math32.Ceil(b.X + b.W)), int32(math32.Ceil(b.Y + b.H))
}

// maxIndexCoord bounds the coordinates the int32 index can hold after rounding.
const maxIndexCoord = 1 << 30

func inIndexRange(b ObjectBox) bool {
	for _, v := range [4]float32{b.X, b.Y, b.X + b.W, b.Y + b.H} {
		if math32.IsNaN(v) || v < -maxIndexCoord || v > maxIndexCoord {
			return false
		}
	}
	return true
}
