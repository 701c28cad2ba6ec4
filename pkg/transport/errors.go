package transport

import "github.com/nickmkk/Platibus/pkg/errors"

// Failure classes returned by wire delivery and subscription requests.
// These map onto the error taxonomy's transient/semantic/authorization/
// client-error kinds; callers branch on Code, not on Go type, so a single
// *errors.AppError suffices.
const (
	CodeNameResolutionFailed = "TRANSPORT_NAME_RESOLUTION_FAILED"
	CodeConnectionRefused    = "TRANSPORT_CONNECTION_REFUSED"
	CodeAccessDenied         = "TRANSPORT_ACCESS_DENIED"
	CodeResourceNotFound     = "TRANSPORT_RESOURCE_NOT_FOUND"
	CodeMessageNotAcked      = "TRANSPORT_MESSAGE_NOT_ACKNOWLEDGED"
	CodeInvalidRequest       = "TRANSPORT_INVALID_REQUEST"
	CodeTransportFailure     = "TRANSPORT_FAILURE"
	CodeEndpointNotFound     = "TRANSPORT_ENDPOINT_NOT_FOUND"
)

func ErrNameResolutionFailed(cause error) *errors.AppError {
	return errors.New(CodeNameResolutionFailed, "name resolution failed", cause)
}

func ErrConnectionRefused(cause error) *errors.AppError {
	return errors.New(CodeConnectionRefused, "connection refused", cause)
}

func ErrAccessDenied(cause error) *errors.AppError {
	return errors.New(CodeAccessDenied, "access denied", cause)
}

func ErrResourceNotFound(cause error) *errors.AppError {
	return errors.New(CodeResourceNotFound, "resource not found", cause)
}

func ErrMessageNotAcked(cause error) *errors.AppError {
	return errors.New(CodeMessageNotAcked, "message not acknowledged", cause)
}

func ErrInvalidRequest(cause error) *errors.AppError {
	return errors.New(CodeInvalidRequest, "invalid request", cause)
}

func ErrTransportFailure(cause error) *errors.AppError {
	return errors.New(CodeTransportFailure, "transport failure", cause)
}

func ErrEndpointNotFound(cause error) *errors.AppError {
	return errors.New(CodeEndpointNotFound, "endpoint not found", cause)
}

// isFatalForSubscribe reports whether code should terminate a subscribe
// loop rather than retry, per §4.4's pseudocode.
func isFatalForSubscribe(code string) bool {
	return code == CodeEndpointNotFound || code == CodeInvalidRequest
}
