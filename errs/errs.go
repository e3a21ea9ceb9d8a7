// Package errs defines the error kinds shared by stores and handlers.
//
// Stores return *Error values for every failure a caller is expected to
// react to. Anything else is an internal failure.
package errs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	Unauthorized
	Forbidden
	NotFound
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, errs.ErrNotFound)
// works for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Msg == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation   = &Error{Kind: Validation}
	ErrUnauthorized = &Error{Kind: Unauthorized}
	ErrForbidden    = &Error{Kind: Forbidden}
	ErrNotFound     = &Error{Kind: NotFound}
	ErrConflict     = &Error{Kind: Conflict}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) *Error {
	return newf(Validation, format, args...)
}

func Unauthorizedf(format string, args ...any) *Error {
	return newf(Unauthorized, format, args...)
}

func Forbiddenf(format string, args ...any) *Error {
	return newf(Forbidden, format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return newf(NotFound, format, args...)
}

func Conflictf(format string, args ...any) *Error {
	return newf(Conflict, format, args...)
}

// KindOf reports the kind of err, Internal for anything that is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Problems collects validation failures so that a caller sees all of them at once.
type Problems struct {
	merr *multierror.Error
}

func (p *Problems) Add(format string, args ...any) {
	p.merr = multierror.Append(p.merr, fmt.Errorf(format, args...))
}

func (p *Problems) Empty() bool {
	return p.merr.ErrorOrNil() == nil
}

// Err returns nil when nothing was added, otherwise a Validation error
// whose message lists every problem.
func (p *Problems) Err() error {
	if p.Empty() {
		return nil
	}
	p.merr.ErrorFormat = func(es []error) string {
		msgs := make([]string, len(es))
		for i, e := range es {
			msgs[i] = e.Error()
		}
		return strings.Join(msgs, "; ")
	}
	return &Error{Kind: Validation, Msg: p.merr.Error(), Err: p.merr}
}
