// Package skillerr defines the error categories shared by every skill.
// Each failure surfaced to the user carries exactly one Kind so commands can
// print a single line and exit nonzero without inspecting error strings.
package skillerr

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Kind classifies a failure.
type Kind int

const (
	// KindConfiguration covers missing or invalid credentials and connection parameters.
	KindConfiguration Kind = iota + 1
	// KindNotFound covers an absent deck, note type, table, channel or file.
	KindNotFound
	// KindFormat covers malformed input files and unsupported extensions.
	KindFormat
	// KindSchemaMismatch covers explicit and legacy field mapping violations.
	KindSchemaMismatch
	// KindNoFieldsMapped is returned when the flexible strategy matched nothing.
	KindNoFieldsMapped
	// KindCollaborator covers failures reported by the store or remote service.
	KindCollaborator
	// KindLocked is the collaborator special case of a collection held by another process.
	KindLocked
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindNotFound:
		return "not found"
	case KindFormat:
		return "format"
	case KindSchemaMismatch:
		return "schema mismatch"
	case KindNoFieldsMapped:
		return "no fields mapped"
	case KindCollaborator:
		return "collaborator"
	case KindLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// Error is a categorized failure. Cause is optional.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Configuration returns a KindConfiguration error.
func Configuration(format string, args ...any) error {
	return newError(KindConfiguration, nil, format, args...)
}

// NotFound returns a KindNotFound error.
func NotFound(format string, args ...any) error {
	return newError(KindNotFound, nil, format, args...)
}

// Format returns a KindFormat error.
func Format(format string, args ...any) error {
	return newError(KindFormat, nil, format, args...)
}

// FormatWrap returns a KindFormat error caused by err.
func FormatWrap(err error, format string, args ...any) error {
	return newError(KindFormat, err, format, args...)
}

// SchemaMismatch returns a KindSchemaMismatch error.
func SchemaMismatch(format string, args ...any) error {
	return newError(KindSchemaMismatch, nil, format, args...)
}

// NoFieldsMapped returns a KindNoFieldsMapped error.
func NoFieldsMapped(format string, args ...any) error {
	return newError(KindNoFieldsMapped, nil, format, args...)
}

// Collaborator returns a KindCollaborator error caused by err.
func Collaborator(err error, format string, args ...any) error {
	return newError(KindCollaborator, err, format, args...)
}

// Locked returns a KindLocked error.
func Locked(format string, args ...any) error {
	return newError(KindLocked, nil, format, args...)
}

// KindOf returns the Kind of the first categorized error found in err's chain.
// Aggregated errors report the kind of their first member.
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return 0, false
	}
	var merr *multierror.Error
	if errors.As(err, &merr) && len(merr.Errors) > 0 {
		return KindOf(merr.Errors[0])
	}
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind, true
	}
	return 0, false
}

// Is reports whether err, or any error aggregated in it, has the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			if Is(e, kind) {
				return true
			}
		}
		return false
	}
	var serr *Error
	if errors.As(err, &serr) {
		if serr.Kind == kind {
			return true
		}
		return serr.Cause != nil && Is(serr.Cause, kind)
	}
	return false
}

// OneLine flattens err into a single line suitable for stderr.
func OneLine(err error) string {
	if err == nil {
		return ""
	}
	var merr *multierror.Error
	if errors.As(err, &merr) && len(merr.Errors) > 0 {
		parts := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			parts = append(parts, OneLine(e))
		}
		return fmt.Sprintf("%d error(s): %s", len(parts), strings.Join(parts, "; "))
	}
	return strings.Join(strings.Fields(err.Error()), " ")
}
