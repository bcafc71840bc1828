package fixture

import "errors"

// ErrNotInitialized is matched by NotInitializedError through errors.Is.
var ErrNotInitialized = errors.New("fixture not initialized")

// NotInitializedError reports a data or operation call made before a schema
// was read successfully.
type NotInitializedError struct {
	Call string
}

func (e *NotInitializedError) Error() string {
	return e.Call + ": a schema must be read before use"
}

func (e *NotInitializedError) Is(err error) bool { return err == ErrNotInitialized }

// IsNotInitialized returns true if err is or wraps a NotInitializedError.
func IsNotInitialized(err error) bool {
	var e *NotInitializedError
	return errors.As(err, &e)
}
