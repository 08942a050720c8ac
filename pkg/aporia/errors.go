package aporia

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingProjectID is returned when a client is built without a project
	ErrMissingProjectID = errors.New("aporia: project ID is required")

	// ErrMissingAPIKey is returned when a client is built without an API key
	ErrMissingAPIKey = errors.New("aporia: API key is required")
)

// TransportError reports a non-success HTTP status from the validate endpoint
type TransportError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("aporia: validation request failed: %d %s", e.StatusCode, e.Status)
}

// SchemaError reports a validate response that does not have the expected shape
type SchemaError struct {
	Field  string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return "aporia: invalid validation response: " + e.Reason
	}
	return fmt.Sprintf("aporia: invalid validation response: %s %s", e.Field, e.Reason)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err wraps a *TransportError
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsSchemaError reports whether err wraps a *SchemaError
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
