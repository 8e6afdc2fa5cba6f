package modeldump

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyArchive is returned for an archive without entries.
	ErrEmptyArchive = errors.New("modeldump: empty archive")
	// ErrMismatchedPrefix is returned when archive entries are not all
	// under one top-level directory.
	ErrMismatchedPrefix = errors.New("modeldump: mismatched prefixes")
	// ErrMissingEntry is returned when an entry the archive must have is absent.
	ErrMissingEntry = errors.New("modeldump: missing entry")
	// ErrInvalidDebugInfo is returned for debug info that does not describe
	// consecutive spans of its source file.
	ErrInvalidDebugInfo = errors.New("modeldump: invalid debug info")
	// ErrCycle is returned when a pickle contains a container that refers
	// to itself.
	ErrCycle = errors.New("modeldump: cycle in pickle data")
	// ErrInvalidStyle is returned for an unknown output style.
	ErrInvalidStyle = errors.New("modeldump: invalid style")
)

// ShapeError is returned when a pickled object does not have one of the
// shapes Normalize knows how to convert.
type ShapeError struct {
	Path   string // location of the object, e.g. $.state.values[3]
	Type   string // module.name of the object
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("modeldump: %s: can't prepare fake object of type %s for JS: %s", e.Path, e.Type, e.Reason)
}

// UnsupportedTypeError is returned for decoded values that have no JSON
// representation, e.g. bytes.
type UnsupportedTypeError struct {
	Path string
	Type string // Python type name
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("modeldump: %s: can't prepare data of type %s for JS", e.Path, e.Type)
}
