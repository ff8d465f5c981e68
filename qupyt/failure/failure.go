// Package failure classifies the errors produced while compiling pulse
// sequences, so that callers can decide per kind whether to retry, warn or
// abort.
package failure

import (
	"errors"
	"fmt"
)

// A Kind identifies one class of compiler failure.
type Kind int

const (
	// Unknown is reported for errors that carry no Kind.
	Unknown Kind = iota
	// Specification errors are caller mistakes in the pulse specification or
	// sweep configuration: unknown channels, overlapping pulses, mismatched
	// list lengths, undefined blocks.
	Specification
	// Timing errors are sample-grid quantization problems. They are only
	// returned when strict timing is requested; otherwise they are logged.
	Timing
	// HardwareLimit errors mean the compiled program would be physically
	// invalid, e.g. short-pulse overflow or out-of-range sample indices.
	HardwareLimit
	// Cache errors concern the persisted baseline or compiled bundles.
	Cache
)

func (k Kind) String() string {
	switch k {
	case Specification:
		return "specification error"
	case Timing:
		return "timing error"
	case HardwareLimit:
		return "hardware limit exceeded"
	case Cache:
		return "cache error"
	}
	return "unknown error"
}

// An Error is a failure of a given Kind raised by operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error of the given kind with a formatted message.
func New(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap returns err annotated with kind and op. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
