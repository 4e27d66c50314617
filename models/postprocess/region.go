package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-nnaccel/common/orderedlist"
)

var (
	// ErrInvalidArgument is returned for unusable layers, sizes and lists.
	ErrInvalidArgument = errors.New("postprocess: invalid argument")
)

// RegionLayer is the output of a region (YOLO v2 style) detection layer.
//
// For each of the N anchors the layer stores Coords+1+Classes planes of
// W x H: the box coordinates, the objectness and one score per class. Output
// holds one such block per batch entry, Outputs floats apart.
type RegionLayer struct {
	W          int       `json:"w" yaml:"w"`
	H          int       `json:"h" yaml:"h"`
	N          int       `json:"n" yaml:"n"`
	Classes    int       `json:"classes" yaml:"classes"`
	Coords     int       `json:"coords" yaml:"coords"`
	Background bool      `json:"background" yaml:"background"`
	Biases     []float32 `json:"biases" yaml:"biases"`
	Output     []float32 `json:"-" yaml:"-"`
	Outputs    int       `json:"outputs" yaml:"outputs"`
}

// OutputSize is the number of floats one batch entry of the layer occupies.
func (l *RegionLayer) OutputSize() int {
	return l.N * l.W * l.H * (l.Coords + l.Classes + 1)
}

// EntryIndex returns the position in Output of entry `entry` for the given
// location, where location is anchor*W*H + cell.
func (l *RegionLayer) EntryIndex(batch, location, entry int) int {
	n := location / (l.W * l.H)
	loc := location % (l.W * l.H)
	return batch*l.Outputs + n*l.W*l.H*(l.Coords+l.Classes+1) + entry*l.W*l.H + loc
}

// Validate checks the layer shape and that Output and Biases are long enough.
func (l *RegionLayer) Validate() error {
	if l == nil {
		return errors.Wrap(ErrInvalidArgument, "nil region layer")
	}
	if l.W < 1 || l.H < 1 || l.N < 1 || l.Classes < 1 || l.Coords < 4 {
		return errors.Wrapf(ErrInvalidArgument, "region layer %dx%d n=%d classes=%d coords=%d",
			l.W, l.H, l.N, l.Classes, l.Coords)
	}
	if len(l.Biases) < 2*l.N {
		return errors.Wrapf(ErrInvalidArgument, "%d biases for %d anchors", len(l.Biases), l.N)
	}
	if len(l.Output) < l.OutputSize() {
		return errors.Wrapf(ErrInvalidArgument, "region output has %d floats, want %d", len(l.Output), l.OutputSize())
	}
	return nil
}

// GetObjectBox decodes the box of anchor n at grid cell (col, row).
//
// The x and y offsets are read as they are, so they must already have been
// through the logistic activation. Width and height scale the anchor prior by
// exp of the raw prediction. The result is a centre based box in units of the
// whole grid.
//
// Arguments:
// - x: Layer output.
// - biases: Anchor priors, (w, h) pairs in grid cells.
// - n: Anchor index.
// - index: Position of the first coordinate in x.
// - col, row: Grid cell.
// - w, h: Grid size.
// - stride: Distance between consecutive coordinates, W*H for region layers.
func GetObjectBox(x, biases []float32, n, index, col, row, w, h, stride int) ObjectBox {
	b := NewObjectBox()
	b.X = (float32(col) + x[index]) / float32(w)
	b.Y = (float32(row) + x[index+stride]) / float32(h)
	b.W = math32.Exp(x[index+2*stride]) * biases[2*n] / float32(w)
	b.H = math32.Exp(x[index+3*stride]) * biases[2*n+1] / float32(h)
	return b
}

// IndexedNMSMinBoxes is the candidate count from which ParseObjectBoxes
// switches from the quadratic NMS scan to IndexedNMS.
const IndexedNMSMinBoxes = 64

// ParseObjectBoxes extracts every detection of the first batch entry of l.
//
// For each grid cell and anchor the best class is chosen from the class
// scores scaled by objectness (objectness is taken as 1 for background
// layers). Boxes whose best score exceeds thresh are corrected with param and
// inserted into list in descending probability order. Once the layer has
// been scanned, non-maximum suppression with threshold nms runs over the
// whole list.
//
// Several decoders may share list; each insertion and the final suppression
// hold the list lock.
//
// Returns:
// - ErrInvalidArgument for a bad layer or a nil list. The list is not touched.
func ParseObjectBoxes(l *RegionLayer, param CorrectParam, thresh, nms float32, list *orderedlist.Safe[ObjectBox]) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if list == nil {
		return errors.Wrap(ErrInvalidArgument, "nil detection list")
	}

	predictions := l.Output
	cells := l.W * l.H
	for i := 0; i < cells; i++ {
		row := i / l.W
		col := i % l.W
		for n := 0; n < l.N; n++ {
			location := n*cells + i
			objIndex := l.EntryIndex(0, location, l.Coords)
			boxIndex := l.EntryIndex(0, location, 0)

			scale := float32(1)
			if !l.Background {
				scale = predictions[objIndex]
			}

			box := GetObjectBox(predictions, l.Biases, n, boxIndex, col, row, l.W, l.H, cells)
			box.Prob = 0
			box.AnchorRow = row
			box.AnchorCol = col
			box.AnchorIndex = n
			for j := 0; j < l.Classes; j++ {
				prob := scale * predictions[l.EntryIndex(0, location, l.Coords+1+j)]
				if prob > box.Prob {
					box.Prob = prob
					box.ClassID = j
				}
			}

			if box.Prob > thresh {
				list.SortedInsert(param.Correct(box))
			}
		}
	}

	suppress := NMSConfig{IoUThreshold: nms}
	list.Do(suppress.Apply)
	return nil
}
