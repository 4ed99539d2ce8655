package errors

import "net/http"

// Vault error codes.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeFieldRequired       = "FIELD_REQUIRED"
	CodeIntegrityFailed     = "INTEGRITY_CHECK_FAILED"
	CodeImportFailed        = "IMPORT_FAILED"
	CodeCredentialNotFound  = "CREDENTIAL_NOT_FOUND"
	CodeInvalidAuthMethod   = "INVALID_AUTH_METHOD"
	CodeCredentialUnavail   = "CREDENTIAL_UNAVAILABLE"
	CodePersistenceDegraded = "PERSISTENCE_DEGRADED"
)

// Automation error codes.
const (
	CodeUnknownSystem     = "UNKNOWN_SYSTEM"
	CodeUnsupportedAction = "UNSUPPORTED_ACTION"
	CodeInvalidPayload    = "INVALID_PAYLOAD"
	CodeInvalidPriority   = "INVALID_PRIORITY"
	CodeSessionNotFound   = "SESSION_NOT_FOUND"
	CodeSessionBusy       = "SESSION_BUSY"
	CodePortalRejected    = "PORTAL_REJECTED"
	CodeExecutorFailure   = "EXECUTOR_FAILURE"
)

var codeKinds = map[string]error{
	CodeValidationFailed:   ErrValidation,
	CodeInvalidPayload:     ErrValidation,
	CodeInvalidPriority:    ErrValidation,
	CodeInvalidAuthMethod:  ErrValidation,
	CodeIntegrityFailed:    ErrIntegrity,
	CodeImportFailed:       ErrImport,
	CodeCredentialNotFound: ErrNotFound,
	CodeSessionNotFound:    ErrNotFound,
	CodeUnknownSystem:      ErrUnknownSystem,
	CodeUnsupportedAction:  ErrUnsupportedAction,
	CodeSessionBusy:        ErrInvalidState,
}

// ErrUnknownSystemf reports a task aimed at a system with no registered executor.
func ErrUnknownSystemf(system string) *AppError {
	return &AppError{
		Code:       CodeUnknownSystem,
		Message:    "no portal executor registered for system " + system,
		HTTPStatus: http.StatusBadRequest,
		Params:     map[string]interface{}{"system": system},
	}
}

// ErrUnsupportedActionf reports an action the system's executor does not implement.
func ErrUnsupportedActionf(system, action string) *AppError {
	return &AppError{
		Code:       CodeUnsupportedAction,
		Message:    "action " + action + " is not supported for system " + system,
		HTTPStatus: http.StatusBadRequest,
		Params:     map[string]interface{}{"system": system, "action": action},
	}
}

// ErrSessionNotFoundf reports an unknown session id.
func ErrSessionNotFoundf(sessionID string) *AppError {
	return &AppError{
		Code:       CodeSessionNotFound,
		Message:    "session not found",
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]interface{}{"session_id": sessionID},
	}
}

// ErrCredentialNotFoundf reports an absent or expired credential.
func ErrCredentialNotFoundf(id string) *AppError {
	return &AppError{
		Code:       CodeCredentialNotFound,
		Message:    "credential not found",
		HTTPStatus: http.StatusNotFound,
		Params:     map[string]interface{}{"credential_id": id},
	}
}
