package images

import "github.com/pkg/errors"

var (
	// ErrInvalidArgument is returned for nil buffers, non-positive dimensions,
	// format mismatches and embed boxes that do not fit their canvas.
	ErrInvalidArgument = errors.New("images: invalid argument")
	// ErrAllocation is returned when a buffer cannot be allocated for the
	// requested dimensions.
	ErrAllocation = errors.New("images: allocation failed")
)
