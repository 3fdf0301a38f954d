package pivot

import (
	"errors"
	"fmt"
)

// Sentinel errors. Validation failures wrap one of the first two so callers
// can branch with errors.Is while still reporting the detailed message.
var (
	ErrInvalidRows      = errors.New("invalid data rows")
	ErrInvalidHierarchy = errors.New("invalid pivot hierarchy")
	ErrNilQuery         = errors.New("query labels cannot be nil")
	ErrNotPivoted       = errors.New("no pivot tree has been built")
	ErrUnknownFunction  = errors.New("unknown aggregation function")
)

// ValidationError describes why a set of data rows or a hierarchy was rejected.
type ValidationError struct {
	kind error
	// Row is the index of the offending row, or -1 when the error is not tied to a row.
	Row int
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func (e *ValidationError) Unwrap() error {
	return e.kind
}

func rowsError(row int, format string, args ...interface{}) error {
	return &ValidationError{kind: ErrInvalidRows, Row: row, Msg: fmt.Sprintf(format, args...)}
}

func hierarchyError(format string, args ...interface{}) error {
	return &ValidationError{kind: ErrInvalidHierarchy, Row: -1, Msg: fmt.Sprintf(format, args...)}
}
