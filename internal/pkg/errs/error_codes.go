/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrMalformedPayload indicates that an inbound event is not valid JSON or lacks a required field.
	ErrMalformedPayload = 1002

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrUnknownEvent indicates that the client sent an event name the server does not handle.
	ErrUnknownEvent = 1008
)

// 2xxx: Presence and Registration Errors
const (
	// ErrInvalidName indicates that the proposed display name is not 3-20 ASCII letters or digits.
	ErrInvalidName = 2101

	// ErrNameTaken indicates that the display name is already held by another connection.
	ErrNameTaken = 2102

	// ErrMissingName indicates that a registration event carried no name at all.
	ErrMissingName = 2103

	// ErrUserNotFound indicates that a named user is not currently registered.
	ErrUserNotFound = 2104

	// ErrNotRegistered indicates that the originating connection has not registered a name yet.
	ErrNotRegistered = 2105
)

// 3xxx: Call Errors
const (
	// ErrTargetNotFound indicates that the user being called is not registered.
	ErrTargetNotFound = 3001

	// ErrTargetBusy indicates that the user being called is not idle.
	ErrTargetBusy = 3002

	// ErrStaleAccept indicates that the call being accepted is no longer ringing.
	ErrStaleAccept = 3003

	// ErrCallerBusy indicates that the caller is already ringing or in a call.
	ErrCallerBusy = 3004

	// ErrSelfCall indicates that a user tried to call themselves.
	ErrSelfCall = 3005
)

// 5xxx: Internal System Errors
const (
	// ErrServer represents an unexpected internal failure while handling an event.
	ErrServer = 5000
)
