// Package errors provides the error taxonomy shared by the vault, the
// automation engine and the admin API.
//
// Every failure that crosses a package boundary is an *AppError carrying a
// stable code. Callers branch on the coarse kind with errors.Is:
//
//	if errors.Is(err, apperrors.ErrNotFound) { ... }
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kinds. An *AppError matches one of these through errors.Is according to
// its Code; see codeKinds.
var (
	ErrValidation        = errors.New("validation failed")
	ErrIntegrity         = errors.New("integrity check failed")
	ErrImport            = errors.New("import failed")
	ErrNotFound          = errors.New("not found")
	ErrUnknownSystem     = errors.New("unknown system")
	ErrUnsupportedAction = errors.New("unsupported action")
	ErrInvalidState      = errors.New("invalid state")
)

// AppError is a coded failure. HTTPStatus and Err stay out of the JSON body.
type AppError struct {
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Params      map[string]interface{} `json:"params,omitempty"`
	FieldErrors []FieldError           `json:"field_errors,omitempty"`

	HTTPStatus int   `json:"-"`
	Err        error `json:"-"`
}

// FieldError names one invalid or missing input field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *AppError) Error() string {
	msg := e.Code + ": " + e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Err }

// Is reports whether target is the kind registered for e.Code.
func (e *AppError) Is(target error) bool {
	kind, ok := codeKinds[e.Code]
	return ok && kind == target
}

// Status returns HTTPStatus, or 500 when none was set.
func (e *AppError) Status() int {
	if e.HTTPStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTPStatus
}

// WithParams sets Params and returns e.
func (e *AppError) WithParams(params map[string]interface{}) *AppError {
	if e != nil && len(params) > 0 {
		e.Params = params
	}
	return e
}

// WithFieldErrors sets FieldErrors and returns e.
func (e *AppError) WithFieldErrors(fieldErrors []FieldError) *AppError {
	if e != nil && len(fieldErrors) > 0 {
		e.FieldErrors = fieldErrors
	}
	return e
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(err error, code, message string, httpStatus int) *AppError {
	e := New(code, message, httpStatus)
	e.Err = err
	return e
}

func NotFound(code, message string) *AppError {
	return New(code, message, http.StatusNotFound)
}

func BadRequest(code, message string) *AppError {
	return New(code, message, http.StatusBadRequest)
}

func Conflict(code, message string) *AppError {
	return New(code, message, http.StatusConflict)
}

func Internal(code, message string) *AppError {
	return New(code, message, http.StatusInternalServerError)
}

// Validation is a 400 VALIDATION_FAILED error.
func Validation(message string) *AppError {
	return BadRequest(CodeValidationFailed, message)
}

// MissingFields reports every absent required field in one error.
func MissingFields(fields ...string) *AppError {
	fe := make([]FieldError, len(fields))
	for i, f := range fields {
		fe[i] = FieldError{Field: f, Code: CodeFieldRequired}
	}
	return Validation("missing required fields: " + strings.Join(fields, ", ")).WithFieldErrors(fe)
}

// Integrity wraps a sealed value that failed to decode or authenticate.
func Integrity(err error) *AppError {
	return Wrap(err, CodeIntegrityFailed, "sealed value failed authentication", http.StatusUnprocessableEntity)
}

// Import wraps a rejected vault import.
func Import(message string, err error) *AppError {
	return Wrap(err, CodeImportFailed, message, http.StatusUnprocessableEntity)
}

// IsAppError unwraps err to its *AppError, if any.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}
