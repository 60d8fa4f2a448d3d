// Package errors defines the coded error type shared by the evaluator, its
// sinks and the HTTP surface.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Error codes.
const (
	// Fatal before a pass starts: unknown dataset kind or split, bad K list,
	// unresolvable vocabulary name.
	CodeConfiguration = "CONFIGURATION_ERROR"
	// Fatal during a pass: the model failed or returned malformed scores.
	CodeInferenceFailure = "INFERENCE_FAILURE"
	// A sample or event broke a structural rule.
	CodeValidation = "VALIDATION_ERROR"
	// A report or artifact could not be written.
	CodePersistence = "PERSISTENCE_ERROR"

	CodeInvalidRequest = "INVALID_REQUEST"
	CodeConflict       = "CONFLICT"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInternal       = "INTERNAL_ERROR"
	CodeUnavailable    = "SERVICE_UNAVAILABLE"
	CodeTimeout        = "TIMEOUT"
)

var httpStatus = map[string]int{
	CodeConfiguration:    http.StatusBadRequest,
	CodeValidation:       http.StatusBadRequest,
	CodeInvalidRequest:   http.StatusBadRequest,
	CodeConflict:         http.StatusConflict,
	CodeInferenceFailure: http.StatusUnprocessableEntity,
	CodeRateLimited:      http.StatusTooManyRequests,
	CodeUnavailable:      http.StatusServiceUnavailable,
	CodeTimeout:          http.StatusGatewayTimeout,
}

// AppError carries a code, a client-safe message and optional details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the code to a response status. Unlisted codes are 500.
func (e *AppError) HTTPStatus() int {
	if status, ok := httpStatus[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WithDetail sets one detail and returns e.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithScan records the scan the error happened on.
func (e *AppError) WithScan(scanID string) *AppError {
	return e.WithDetail("scan_id", scanID)
}

func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func ConfigurationError(message string) *AppError {
	return New(CodeConfiguration, message)
}

// InferenceFailure wraps an error raised by, or a defect in the output of,
// the model collaborator. err may be nil.
func InferenceFailure(message string, err error) *AppError {
	return Wrap(CodeInferenceFailure, message, err)
}

func PersistenceError(message string, err error) *AppError {
	return Wrap(CodePersistence, message, err)
}

func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

func InvalidRequestError(message string) *AppError {
	return New(CodeInvalidRequest, message)
}

func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// RateLimitedError tells the client to retry after the given seconds.
func RateLimitedError(retryAfter int) *AppError {
	return New(CodeRateLimited, "rate limit exceeded").WithDetail("retry_after", strconv.Itoa(retryAfter))
}

// CodeOf returns the code of the first AppError in err's chain, or "" when
// there is none.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether the first AppError in err's chain has code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

func IsConfiguration(err error) bool {
	return HasCode(err, CodeConfiguration)
}

func IsInferenceFailure(err error) bool {
	return HasCode(err, CodeInferenceFailure)
}

func IsValidation(err error) bool {
	return HasCode(err, CodeValidation)
}

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes resp with status.
func WriteJSON(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteError writes err as an ErrorResponse. Errors that are not AppErrors
// are reported as internal without their text, and so are the wrapped
// causes of AppErrors.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		WriteJSON(w, appErr.HTTPStatus(), ErrorResponse{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		})
		return
	}
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Code:    CodeInternal,
		Message: "internal server error",
	})
}
