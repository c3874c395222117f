package compiler

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when work is submitted to a closed orchestrator
var ErrClosed = errors.New("compiler orchestrator is closed")

// CompileError reports a failed compile. The asset keeps its previous
// successful compile record.
type CompileError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %s failed: %s", e.Path, e.Reason)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

func newCompileError(path string, err error) *CompileError {
	return &CompileError{Path: path, Reason: err.Error(), Err: err}
}
