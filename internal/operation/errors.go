package operation

import (
	"errors"
	"fmt"
)

// OperationError reports a statement the database rejected while an
// operation was running.
type OperationError struct {
	Op        Kind
	Table     string
	Statement string
	Err       error
}

func (e *OperationError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("failed to %s table %s: %v", e.Op, e.Table, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// IsOperationError returns true if err is or wraps an OperationError.
func IsOperationError(err error) bool {
	var e *OperationError
	return errors.As(err, &e)
}
