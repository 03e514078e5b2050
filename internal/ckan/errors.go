package ckan

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned when the requested catalog object does not exist.
// Use errors.Is() to check for it.
var ErrNotFound = errors.New("not found")

// ValidationError carries the catalog's field-level validation messages.
type ValidationError struct {
	Action string
	Fields map[string][]string
}

// Summary renders the messages as "field: message" pairs.
func (e *ValidationError) Summary() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], ", ")))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation error: %s", e.Action, e.Summary())
}

// APIError is any other unsuccessful action call.
type APIError struct {
	Action     string
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: %s (%d): %s", e.Action, e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Action, e.StatusCode, e.Message)
}

// ErrorSummary returns the human-readable summary of a catalog error.
func ErrorSummary(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Summary()
	}
	return err.Error()
}
