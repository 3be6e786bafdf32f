package device

import (
	"errors"
	"strings"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotConnected) {
//	    // handle connect failure
//	}
var (
	// ErrNotConnected is the class of every connect failure. Aggregates
	// returned from a fan-out match it via errors.Is.
	ErrNotConnected = errors.New("device: not connected")

	// ErrAlreadyParented is returned when attaching a device that is
	// already a child of a different parent.
	ErrAlreadyParented = errors.New("device: already a child of another device")

	// ErrNilChild is returned when attaching or inserting a nil device.
	ErrNilChild = errors.New("device: child must not be nil")

	// ErrEmptyChildName is returned when registering a child without a name.
	ErrEmptyChildName = errors.New("device: child name must not be empty")

	// ErrDuplicateName is returned when a name is already registered.
	ErrDuplicateName = errors.New("device: name already registered")

	// ErrVectorKey is returned when a Vector key is negative.
	ErrVectorKey = errors.New("device: vector keys must be non-negative integers")

	// ErrVectorAttach is returned when Attach is called on a Vector.
	// Vector children are integer-indexed; insert them with Set.
	ErrVectorAttach = errors.New("device: vector children are integer-indexed, insert via Set")

	// ErrNotInitialised is returned when a Base is used before Init.
	ErrNotInitialised = errors.New("device: base not initialised, call Init first")

	// ErrConnectInProgress is returned when a Group connect is started
	// while a previous one on the same group has not finished.
	ErrConnectInProgress = errors.New("device: group connect already in progress")
)

// Failure describes one child that failed during a connect fan-out.
type Failure struct {
	// Name is the child's registration name within its parent.
	Name string

	// Err is the underlying cause. For composite children this is
	// usually a nested *NotConnectedError.
	Err error

	// TimedOut marks children that failed because the enclosing
	// fan-out timeout elapsed rather than from a backend error.
	TimedOut bool
}

// NotConnectedError aggregates every failed child of one connect fan-out.
//
// Failures keep the order children were registered in, carry one entry per
// failing child and none for children that connected. Nested aggregates
// (a composite child that itself had failing children) are rendered
// indented beneath the child's name.
type NotConnectedError struct {
	failures []Failure
}

// newNotConnected builds an aggregate from the collected failures.
// Returns nil when there are none so callers can return it directly.
func newNotConnected(failures []Failure) error {
	if len(failures) == 0 {
		return nil
	}
	return &NotConnectedError{failures: failures}
}

// Failures returns the per-child failures in child registration order.
func (e *NotConnectedError) Failures() []Failure {
	out := make([]Failure, len(e.failures))
	copy(out, e.failures)
	return out
}

// Error renders one line per failing child, indenting nested aggregates
// beneath the child that produced them.
func (e *NotConnectedError) Error() string {
	var b strings.Builder
	b.WriteString("not connected:")
	e.write(&b, 1)
	return b.String()
}

func (e *NotConnectedError) write(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, f := range e.failures {
		b.WriteString("\n")
		b.WriteString(indent)
		b.WriteString(f.Name)
		b.WriteString(":")

		var nested *NotConnectedError
		if errors.As(f.Err, &nested) && nested != e {
			nested.write(b, depth+1)
			continue
		}

		b.WriteString(" ")
		if f.TimedOut {
			b.WriteString("timed out: ")
		}
		b.WriteString(f.Err.Error())
	}
}

// Is reports ErrNotConnected so callers can classify any aggregate with a
// single errors.Is check.
func (e *NotConnectedError) Is(target error) bool {
	return target == ErrNotConnected
}

// Unwrap exposes the underlying causes to errors.Is/errors.As, e.g. to
// detect context.DeadlineExceeded anywhere in the subtree.
func (e *NotConnectedError) Unwrap() []error {
	errs := make([]error, len(e.failures))
	for i, f := range e.failures {
		errs[i] = f.Err
	}
	return errs
}
