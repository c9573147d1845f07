package models

import "errors"

var (
	// ErrDuplicateExample is returned when adding a known (text, label) pair without existOk.
	ErrDuplicateExample = errors.New("duplicate example")
	// ErrNotFound is returned when removing an unknown (text, label) pair.
	ErrNotFound = errors.New("example not found")
	// ErrInvalidArgument covers bad voting modes, pipeline modes, languages, and inputs.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownIntent is returned when a caller-supplied candidate label is not known to the retriever.
	ErrUnknownIntent = errors.New("unknown intent")
)
