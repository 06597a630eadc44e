package parse

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrMissingVariable is returned when a query does not project a required variable
var ErrMissingVariable = errors.New("query results lack a required variable")

// InputError reports user input that cannot be decomposed into commands.
// Line is the 1-based input line, Row the 1-based query result row; at most one is set.
type InputError struct {
	Line int
	Row  int
	Err  error
}

func (e *InputError) Error() string {
	switch {
	case e.Line > 0:
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	case e.Row > 0:
		return fmt.Sprintf("result row %d: %v", e.Row, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *InputError) Unwrap() error {
	return e.Err
}
