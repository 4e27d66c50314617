package postprocess

import (
	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-nnaccel/images"
)

// Result represents a single detection result.
type Result struct {
	// The bounding box of the result.
	Box images.Rect `json:"box" yaml:"box"`
	// The confidence score of the result.
	Score float32 `json:"score" yaml:"score"`
	// The predicted class index of the result.
	Class int `json:"class" yaml:"class"`
}

// ToResults converts corrected boxes into pixel rectangles clipped to a
// width x height frame. Boxes left with no area after clipping are dropped.
//
// Arguments:
//   - boxes: Boxes in image pixel coordinates, in the order to keep.
//   - width, height: Frame size used for clipping.
//
// Returns:
//   - One Result per visible box, in input order.
func ToResults(boxes []ObjectBox, width, height int) []Result {
	results := make([]Result, 0, len(boxes))
	for _, b := range boxes {
		r := images.Rect{
			X1: int(math32.Round(b.X)),
			Y1: int(math32.Round(b.Y)),
			X2: int(math32.Round(b.X + b.W)),
			Y2: int(math32.Round(b.Y + b.H)),
		}.Clip(width, height)
		if r.Area() == 0 {
			continue
		}
		results = append(results, Result{Box: r, Score: b.Prob, Class: b.ClassID})
	}
	return results
}
