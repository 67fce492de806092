// Package trackerr defines the structured error kinds surfaced by the
// codec and session layers (spec §7). The API-facing adapter maps a
// Kind to an HTTP status code via Status(); it never has to sniff error
// strings the way the teacher's handlers sniff bare errors.New values.
package trackerr

import "fmt"

// Kind is one of the error kinds the core can surface to a caller.
type Kind int

const (
	// UnsupportedFormat means the filename suffix was not recognized.
	UnsupportedFormat Kind = iota
	// InvalidFormat means the codec could not parse required structure.
	InvalidFormat
	// NotFound means a session id has no live session.
	NotFound
	// InvalidArgument means a precondition was violated on an input that
	// is structurally valid but semantically wrong.
	InvalidArgument
	// OutOfRange means a segment/point index fell outside track bounds.
	OutOfRange
	// UnsupportedExportFormat means an export was requested in a format
	// with no encoder.
	UnsupportedExportFormat
	// Internal means an invariant breach or unexpected codec error.
	Internal
)

func (k Kind) String() string {
	switch k {
	case UnsupportedFormat:
		return "unsupported_format"
	case InvalidFormat:
		return "invalid_format"
	case NotFound:
		return "not_found"
	case InvalidArgument:
		return "invalid_argument"
	case OutOfRange:
		return "out_of_range"
	case UnsupportedExportFormat:
		return "unsupported_export_format"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Status returns the HTTP status code the API-facing adapter should use
// for this kind, per spec §7.
func (k Kind) Status() int {
	switch k {
	case NotFound:
		return 404
	case Internal:
		return 500
	default:
		return 400
	}
}

// Error is a structured error carrying a Kind and a short human-readable
// description. The adapter is responsible for any further user-visible
// message formatting.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// New constructs a *Error for the given kind and message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf constructs a *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	te, ok := err.(*Error)
	return ok && te.Kind == kind
}
