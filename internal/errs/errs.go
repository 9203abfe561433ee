// Package errs defines the failure kinds surfaced by the concat pipeline.
//
// Every stage boundary wraps its failure in an *Error carrying one of the
// sentinel kinds below. An *Error unwraps to both its kind and its cause, so
// callers can write errors.Is(err, errs.ErrRender) and still reach the
// original error with errors.As.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrConfig     = errors.New("config error")
	ErrRender     = errors.New("render error")
	ErrAudio      = errors.New("audio error")
	ErrTranscode  = errors.New("transcode error")
	ErrFilesystem = errors.New("filesystem error")
)

type Error struct {
	Kind error
	Op   string
	Err  error
}

// New wraps err with kind. A nil err yields an error carrying only the kind
// and op, which is how validation failures are reported.
func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is New with a formatted cause.
func Newf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil && e.Op == "":
		return e.Kind.Error()
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the sentinel kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, k := range []error{ErrConfig, ErrRender, ErrAudio, ErrTranscode, ErrFilesystem} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
