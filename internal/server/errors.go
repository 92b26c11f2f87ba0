// Package server provides the web front end for the accessibility auditor.
package server

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrServiceUnavailable indicates the auditor could not be constructed
type ErrServiceUnavailable struct {
	Message string
}

func (e *ErrServiceUnavailable) Error() string {
	return e.Message
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validation *ErrValidation
	if errors.As(err, &validation) {
		return http.StatusBadRequest
	}
	// ErrServiceUnavailable stays a 500, which existing form clients expect.
	return http.StatusInternalServerError
}

// publicMessage returns the text shown to clients for err.
func publicMessage(err error) string {
	var validation *ErrValidation
	var unavailable *ErrServiceUnavailable
	switch {
	case errors.As(err, &validation):
		return validation.Message
	case errors.As(err, &unavailable):
		return unavailable.Message
	default:
		return "An internal error occurred during the audit."
	}
}
