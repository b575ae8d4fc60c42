package errs

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a failure.
type Kind string

const (
	KindIO                  Kind = "io"
	KindSchema              Kind = "schema"
	KindTool                Kind = "tool"
	KindConflict            Kind = "conflict"
	KindState               Kind = "state"
	KindUnsupportedPlatform Kind = "unsupported_platform"
)

// Error carries a Kind together with the operation and subject that failed.
type Error struct {
	Kind    Kind
	Op      string // e.g. "manifest.parse", "git clone"
	Subject string // product id, path or url
	Err     error
}

func (e *Error) Error() string {
	// Tool errors surface the tool's stderr verbatim.
	if e.Kind == KindTool && e.Err != nil {
		return e.Err.Error()
	}
	switch {
	case e.Op != "" && e.Subject != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Subject, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(k Kind, op, subject string, err error) *Error {
	if err == nil {
		err = errors.New(string(k) + " error")
	}
	return &Error{Kind: k, Op: op, Subject: subject, Err: err}
}

func IO(op, subject string, err error) *Error     { return newErr(KindIO, op, subject, err) }
func Schema(op, subject string, err error) *Error { return newErr(KindSchema, op, subject, err) }
func Conflict(op, subject string, err error) *Error {
	return newErr(KindConflict, op, subject, err)
}
func State(op, subject string, err error) *Error { return newErr(KindState, op, subject, err) }
func UnsupportedPlatform(op, subject string, err error) *Error {
	return newErr(KindUnsupportedPlatform, op, subject, err)
}

// Tool builds a tool failure whose message is stderr as the tool printed it.
func Tool(op, stderr string) *Error {
	return &Error{Kind: KindTool, Op: op, Err: errors.New(stderr)}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool { return err != nil && KindOf(err) == k }
