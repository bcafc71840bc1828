package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched by the typed errors below through errors.Is.
var (
	ErrSchema           = errors.New("schema error")
	ErrUnknownTable     = errors.New("unknown table")
	ErrCyclicDependency = errors.New("cyclic foreign key dependency")
)

// SchemaError reports a malformed or missing schema, or a table that lacks
// what an operation needs (for example a primary key).
type SchemaError struct {
	Table  string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	msg := "schema error"
	if e.Table != "" {
		msg = fmt.Sprintf("schema error in table %s", e.Table)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ErrSchema).
func (e *SchemaError) Is(err error) bool { return err == ErrSchema }

// UnknownTableError reports a table name that the schema does not declare.
type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("unknown table: %s", e.Table)
}

func (e *UnknownTableError) Is(err error) bool { return err == ErrUnknownTable }

// CyclicDependencyError reports tables whose foreign keys form a cycle.
type CyclicDependencyError struct {
	Tables []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected involving tables: %s", strings.Join(e.Tables, ", "))
}

func (e *CyclicDependencyError) Is(err error) bool { return err == ErrCyclicDependency }

// IsSchemaError returns true if err is or wraps a SchemaError.
func IsSchemaError(err error) bool {
	var e *SchemaError
	return errors.As(err, &e)
}

// IsUnknownTable returns true if err is or wraps an UnknownTableError.
func IsUnknownTable(err error) bool {
	var e *UnknownTableError
	return errors.As(err, &e)
}

// IsCyclicDependency returns true if err is or wraps a CyclicDependencyError.
func IsCyclicDependency(err error) bool {
	var e *CyclicDependencyError
	return errors.As(err, &e)
}
