/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the standard Go error interface
and includes a business code, a stable wire key, a user-friendly message, and an HTTP status
code for unified error reporting over both WebSocket events and HTTP responses.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"callrelay/internal/pkg/logx"
)

// CustomError is the custom error structure used throughout the application.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Key is the stable string identifier sent to clients (e.g. "NAME_TAKEN").
	Key string

	// Message is the user-friendly error description.
	Message string

	// Status is the standard HTTP status code corresponding to this error.
	Status int
}

// Error implements the standard Go error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("Error Code %d (%s): %s", e.Code, e.Key, e.Message)
}

// Is reports whether target is a CustomError with the same code, so errors.Is works on codes.
func (e *CustomError) Is(target error) bool {
	var t *CustomError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError constructs and returns a new *CustomError instance based on a predefined error code.
// The optional details parameter supplies printf-style arguments for the message template.
// If an unknown code is provided, it defaults to returning ErrServer.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		serverErr := errorMap[ErrServer]
		return &serverErr
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	if code == ErrServer && len(details) > 0 {
		if originalErr, ok := details[0].(error); ok {
			logx.Error(
				originalErr,
				"Handling ErrServer with underlying error",
			)
		}
	} else if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			logx.Warn(
				"Details provided for error, but message template has no formatting placeholders. Details ignored.",
				"code", code,
			)
		}
	}

	return &customErr
}

// HasCode reports whether err is a *CustomError carrying the given code.
func HasCode(err error, code int) bool {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Code == code
	}
	return false
}
