package catalog

import (
	"errors"
	"fmt"
)

// ErrNoMatch is returned when no search candidate produced a usable match.
var ErrNoMatch = errors.New("no catalog match")

// ParseError means a response body was not valid JSON or lacked the expected shape.
type ParseError struct {
	Endpoint string // "search" or "detail"
	URL      string
	Cause    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s response from %s: %v", e.Endpoint, e.URL, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// MappingError means a product detail could not be turned into a record.
type MappingError struct {
	ID    string
	Cause error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("failed to map catalog entry %s: %v", e.ID, e.Cause)
}

func (e *MappingError) Unwrap() error {
	return e.Cause
}
