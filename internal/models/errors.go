package models

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error codes used across the API. Every error response carries one of
// these as a machine-stable reason string.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInvalidState      = "INVALID_STATE"
	CodeReference         = "REFERENCE_ERROR"
	CodeUnsupportedAction = "UNSUPPORTED_ACTION"
	CodeAccessDenied      = "ACCESS_DENIED"
	CodeInternal          = "INTERNAL_ERROR"
)

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

// NewMissingFieldsError aggregates every missing or invalid field into a
// single validation error so the client sees the full list at once.
func NewMissingFieldsError(fields []string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: "Some required data is missing: " + joinFields(fields),
	}
}

func joinFields(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ", "
		}
		out += f
	}
	return out
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

// NewInvalidStateError marks a status transition attempted on a request
// that has already been decided.
func NewInvalidStateError(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidState,
		Message: message,
	}
}

// NewReferenceError marks a referenced entity that no longer resolves.
func NewReferenceError(message string) *AppError {
	return &AppError{
		Code:    CodeReference,
		Message: message,
	}
}

func NewUnsupportedActionError(action string) *AppError {
	return &AppError{
		Code:    CodeUnsupportedAction,
		Message: fmt.Sprintf("Unsupported action %q, expected approve or reject", action),
	}
}

// NewAccessDeniedError covers the anonymous download gate: unknown,
// expired or mismatched access codes all look identical to the caller.
func NewAccessDeniedError() *AppError {
	return &AppError{
		Code:    CodeAccessDenied,
		Message: "Access to resource is denied",
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// StatusForError maps an application error to its HTTP status. Unknown
// errors are treated as internal.
func StatusForError(err error) int {
	appErr, ok := err.(*AppError)
	if !ok {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case CodeValidation, CodeReference, CodeUnsupportedAction, CodeAccessDenied:
		return fiber.StatusBadRequest
	case CodeUnauthorized, CodeInvalidState:
		// Decided requests reject further transitions with 403, matching
		// the authorization-shaped handling of the admin action path.
		return fiber.StatusForbidden
	case CodeNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	if appErr, ok := err.(*AppError); ok {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}

// RespondWithAppError writes the error using the status derived from its code.
func RespondWithAppError(c *fiber.Ctx, err error) error {
	return RespondWithError(c, StatusForError(err), err)
}
