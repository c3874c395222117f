package modeldoc

import (
	"errors"
	"fmt"
)

// Validation errors. Each is returned wrapped with the offending values.
var (
	ErrCountMismatch   = errors.New("array length does not match vertex count")
	ErrIndexOutOfRange = errors.New("vertex index out of range")
	ErrUnknownGroup    = errors.New("unknown face group")
	ErrDuplicateGroup  = errors.New("duplicate face group")
	ErrDegenerateFace  = errors.New("degenerate face")
	ErrInvalidCount    = errors.New("invalid vertex count")
	ErrIncomplete      = errors.New("model is incomplete")
	ErrNonFinite       = errors.New("non-finite vertex value")
	ErrInvalidFormat   = errors.New("not a model document")
)

// IOError reports a failed read or write of a model file
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s model %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
