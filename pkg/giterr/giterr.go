// Package giterr defines the error taxonomy shared by the object store,
// reference store, index, revision walker and merge engine.
//
// Every failure returned by those packages wraps exactly one of the
// sentinel values below, so callers classify errors with errors.Is:
//
//	if errors.Is(err, giterr.ErrNotFound) { ... }
package giterr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a missing object, reference, path or entry.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists reports a non-forced create that collided.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidArgument reports a malformed name, path, mode or spec.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAmbiguousPrefix reports a short id matching several objects.
	ErrAmbiguousPrefix = errors.New("ambiguous object id prefix")
	// ErrCorruption reports an on-disk structure that failed to parse or
	// verify.
	ErrCorruption = errors.New("corrupt data")
	// ErrUnresolvedConflicts reports an attempt to build a tree from an
	// index that still carries conflict stages.
	ErrUnresolvedConflicts = errors.New("unresolved conflicts")
	// ErrTooManyRedirects reports a symbolic reference chain that is too
	// long or cyclic.
	ErrTooManyRedirects = errors.New("too many symbolic reference redirects")
	// ErrMergeConflict is returned when a merge was asked to fail on the
	// first conflict.
	ErrMergeConflict = errors.New("merge conflict")
	// ErrCASMismatch reports that a reference moved underneath an update.
	ErrCASMismatch = errors.New("compare-and-swap mismatch")
	// ErrLocked reports a lock file that could not be acquired in time.
	ErrLocked = errors.New("resource locked")
	// ErrLocalChanges reports staged work an operation would overwrite.
	ErrLocalChanges = errors.New("local changes would be overwritten")
	// ErrLimitExceeded reports a history walk that gave up after its step
	// budget.
	ErrLimitExceeded = errors.New("walk limit exceeded")
)

// Error annotates a taxonomy sentinel with the failing operation and the
// subject (object id, reference name or path) it was applied to.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Op != "" && e.Path != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New returns an *Error for op and path wrapping the sentinel kind.
func New(op, path string, kind error) error {
	return &Error{Op: op, Path: path, Err: kind}
}

// Newf returns an *Error whose message adds detail to the sentinel kind
// while keeping errors.Is(err, kind) true.
func Newf(op, path string, kind error, format string, args ...any) error {
	return &Error{Op: op, Path: path, Err: fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))}
}

// Wrap annotates err with op and path. A nil err yields nil.
func Wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Path: path, Err: err}
}

// IsNotFound reports whether err is classified as ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAlreadyExists reports whether err is classified as ErrAlreadyExists.
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsInvalid reports whether err is classified as ErrInvalidArgument.
func IsInvalid(err error) bool { return errors.Is(err, ErrInvalidArgument) }
