package errors

import (
	"errors"
	"fmt"
	"strings"
)

/*
Error aggregates several underlying errors and free-form messages, which is
what the memory manager reports when more than one backend fails at once.
*/
type Error struct {
	Errs []error
	Msgs []any
}

/*
NewError collects any mix of errors and strings into a single Error. Nil
errors are dropped, and when nothing remains NewError returns nil so callers
can return its result directly.
*/
func NewError(errs ...any) error {
	err := &Error{}

	for _, msg := range errs {
		switch v := msg.(type) {
		case error:
			if v != nil {
				err.Errs = append(err.Errs, v)
			}
		case string:
			err.Msgs = append(err.Msgs, v)
		}
	}

	if len(err.Errs) == 0 {
		return nil
	}

	return err
}

func (err *Error) Error() string {
	builder := &strings.Builder{}

	for _, msg := range err.Msgs {
		builder.WriteString(fmt.Sprintf("%v: ", msg))
	}

	for i, e := range err.Errs {
		if i > 0 {
			builder.WriteString("; ")
		}
		builder.WriteString(e.Error())
	}

	return builder.String()
}

/*
Unwrap exposes the collected errors to errors.Is and errors.As.
*/
func (err *Error) Unwrap() []error {
	return err.Errs
}

// Is, As and Join are re-exported so callers only need this package.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
	New  = errors.New
)
