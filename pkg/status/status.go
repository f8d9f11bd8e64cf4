// Package status defines the error-kind vocabulary shared by every handler
// and muxer in the packager pipeline, per the error handling design: every
// public operation returns a status that carries a kind and a human-readable
// reason.
package status

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies the cause of a failed operation. Kind values are not Go
// error types; they are carried inside a Status alongside a wrapped reason.
type Kind int

const (
	// OK is not a failure; operations that succeed do not need a Status at
	// all, but Kind's zero value is reserved so an uninitialized Status is
	// never mistaken for a specific failure.
	OK Kind = iota
	InvalidArgument
	FileFailure
	ParserFailure
	EncryptionError
	TrickPlayError
	// EndOfStream is informational, not an error.
	EndOfStream
	Cancelled
	Unimplemented
	Internal
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case InvalidArgument:
		return "invalid-argument"
	case FileFailure:
		return "file-failure"
	case ParserFailure:
		return "parser-failure"
	case EncryptionError:
		return "encryption-error"
	case TrickPlayError:
		return "trick-play-error"
	case EndOfStream:
		return "end-of-stream"
	case Cancelled:
		return "cancelled"
	case Unimplemented:
		return "unimplemented"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// ExitCode maps a Kind to the process exit code described in spec.md §6.
// OK maps to 0; every other kind maps to its 1-based position in the
// kind table so failures are distinguishable from the shell.
func (k Kind) ExitCode() int {
	if k == OK {
		return 0
	}
	return int(k)
}

// Status is the uniform failure carrier returned by every public operation
// in the pipeline. A nil *Status means success.
type Status struct {
	Kind   Kind
	reason error
}

// New builds a Status of the given kind with a formatted reason.
func New(kind Kind, format string, args ...interface{}) *Status {
	return &Status{Kind: kind, reason: fmt.Errorf(format, args...)}
}

// Wrap attaches kind to an existing error, preserving it in the chain so
// errors.Is/errors.As still see through to the original cause.
func Wrap(kind Kind, err error, message string) *Status {
	if err == nil {
		return nil
	}
	return &Status{Kind: kind, reason: pkgerrors.WithMessage(err, message)}
}

func (s *Status) Error() string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", s.Kind, s.reason)
}

func (s *Status) Unwrap() error {
	if s == nil {
		return nil
	}
	return s.reason
}

// Ok reports whether s represents success (a nil Status, or one carrying
// the OK kind).
func Ok(s *Status) bool {
	return s == nil || s.Kind == OK
}

// IsEndOfStream reports whether s is the informational end-of-stream status.
func IsEndOfStream(s *Status) bool {
	return s != nil && s.Kind == EndOfStream
}

// Sentinel causes, in the teacher's style of package-level sentinel errors,
// for conditions callers commonly want to test for with errors.Is
// regardless of which operation produced them.
var (
	ErrNonMonotonicTimestamp = errors.New("sample timestamp is not monotonically increasing")
	ErrMissingKey            = errors.New("key source did not return a key")
	ErrUnknownScheme         = errors.New("unknown protection scheme")
	ErrInvalidIndex          = errors.New("input or output port index not recognized")
	ErrCyclicGraph           = errors.New("handler graph contains a cycle")
	ErrUnconnectedPort       = errors.New("handler port has no consumer")
	ErrUnknownCodec          = errors.New("codec not supported")
	ErrInvalidParam          = errors.New("invalid parameter")
)
