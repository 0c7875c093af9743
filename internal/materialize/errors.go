package materialize

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is.
var (
	ErrStructural = errors.New("structural diff violation")
	ErrPathSafety = errors.New("unsafe path")
	ErrWriteDiff  = errors.New("writing diff file")
)

// StructuralViolation rejects a change that is not a single whole-file hunk.
type StructuralViolation struct {
	Side   Side
	Path   string
	Reason string
}

func (e *StructuralViolation) Error() string {
	return fmt.Sprintf("%s: %s (%s side)", e.Reason, e.Path, e.Side)
}

func (e *StructuralViolation) Is(target error) bool { return target == ErrStructural }

// PathSafetyViolation rejects a path that is absolute or leaves the
// destination root.
type PathSafetyViolation struct {
	Side   Side
	Path   string
	Reason string
}

func (e *PathSafetyViolation) Error() string {
	return fmt.Sprintf("%s: %s (%s side)", e.Reason, e.Path, e.Side)
}

func (e *PathSafetyViolation) Is(target error) bool { return target == ErrPathSafety }

// WriteDiffError wraps a filesystem failure while writing one file.
type WriteDiffError struct {
	Side Side
	Path string
	Err  error
}

func (e *WriteDiffError) Error() string {
	return fmt.Sprintf("writing %s (%s side): %v", e.Path, e.Side, e.Err)
}

func (e *WriteDiffError) Unwrap() error { return e.Err }

func (e *WriteDiffError) Is(target error) bool { return target == ErrWriteDiff }
