package player

import (
	"errors"
	"fmt"
)

var (
	// ErrBoundary matches every *BoundaryError.
	ErrBoundary = errors.New("versions straddle a breaking boundary")

	// ErrNoResult is returned when the consumer answered without publishing
	// a result to the answer topic.
	ErrNoResult = errors.New("consumer published no result")

	// ErrManifest is returned when no decoding convention of the consumer
	// accepts the question's input manifest.
	ErrManifest = errors.New("input manifest cannot be decoded")
)

// BoundaryError reports a pair known to be incompatible without running it.
type BoundaryError struct {
	Producer string
	Consumer string
	Boundary string
}

func (e *BoundaryError) Error() string {
	return fmt.Sprintf("producer %s and consumer %s are on opposite sides of breaking version %s",
		e.Producer, e.Consumer, e.Boundary)
}

func (e *BoundaryError) Is(target error) bool {
	return target == ErrBoundary
}
