package replay

import "errors"

var (
	// ErrEmptyBuffer is returned when sampling from a buffer with no transitions
	ErrEmptyBuffer = errors.New("replay buffer is empty")
	// ErrInvalidIndex is returned when a priority update refers to a slot outside the populated range
	ErrInvalidIndex = errors.New("invalid buffer index")
	// ErrShapeMismatch is returned when a transition's states do not share a shape
	ErrShapeMismatch = errors.New("state shape mismatch")
)
