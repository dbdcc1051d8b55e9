/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
event error payloads, HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the wire key, user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:     {Code: ErrInvalidParams, Key: "INVALID_PARAMS", Message: "Invalid request parameters."},
	ErrMalformedPayload:  {Code: ErrMalformedPayload, Key: "MALFORMED_PAYLOAD", Message: "Invalid %s data."},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Key: "RATE_LIMITED", Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrUnknownEvent:      {Code: ErrUnknownEvent, Key: "UNKNOWN_EVENT", Message: "Unsupported event %q."},

	// 2xxx: Presence and Registration Errors
	ErrInvalidName:   {Code: ErrInvalidName, Key: "INVALID_USERNAME", Message: "Invalid username format. Use 3-20 alphanumeric characters."},
	ErrNameTaken:     {Code: ErrNameTaken, Key: "NAME_TAKEN", Message: "Username is already taken."},
	ErrMissingName:   {Code: ErrMissingName, Key: "MISSING_USERNAME", Message: "Username is required."},
	ErrUserNotFound:  {Code: ErrUserNotFound, Key: "USER_NOT_FOUND", Message: "User not found."},
	ErrNotRegistered: {Code: ErrNotRegistered, Key: "NOT_REGISTERED", Message: "Register a username first."},

	// 3xxx: Call Errors
	ErrTargetNotFound: {Code: ErrTargetNotFound, Key: "TARGET_NOT_FOUND", Message: "User not found."},
	ErrTargetBusy:     {Code: ErrTargetBusy, Key: "TARGET_BUSY", Message: "User is busy."},
	ErrStaleAccept:    {Code: ErrStaleAccept, Key: "STALE_ACCEPT", Message: "The call is no longer available."},
	ErrCallerBusy:     {Code: ErrCallerBusy, Key: "CALLER_BUSY", Message: "You are already in a call."},
	ErrSelfCall:       {Code: ErrSelfCall, Key: "SELF_CALL", Message: "You cannot call yourself."},

	// 5xxx: Internal System Errors
	ErrServer: {Code: ErrServer, Key: "SERVER_ERROR", Message: "Server error.", Status: http.StatusInternalServerError},
}
