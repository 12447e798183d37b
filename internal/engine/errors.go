package engine

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnknownNode is returned when a node id or path does not name a live node.
	ErrUnknownNode = errors.New("unknown node")
	// ErrUnknownAction is returned when an event binding names no registered action.
	ErrUnknownAction = errors.New("unknown action")
	// ErrValidationFailed is returned by the validate action when failOnError
	// is set and the form has errors. It stops the remaining actions.
	ErrValidationFailed = errors.New("validation failed")
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(kind, key string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s %s not found", kind, key),
	}
}

func UnknownFormError(key string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_FORM",
		Status:  404,
		Message: fmt.Sprintf("Unknown form: %s", key),
	}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func InvalidDefinitionError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "INVALID_DEFINITION",
		Status:  422,
		Message: "Invalid form definition",
		Details: details,
	}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

func ConflictError(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: 409, Message: msg}
}

// ErrorHandler is the fiber error handler: AppErrors keep their status and
// body, anything else becomes an INTERNAL_ERROR.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	if fiberErr != nil && code != fiber.StatusInternalServerError {
		return c.Status(code).JSON(ErrorResponse{Error: &AppError{Code: "HTTP_ERROR", Message: fiberErr.Message}})
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	logrus.WithError(err).WithField("path", c.Path()).Error("request failed")
	return c.Status(code).JSON(ErrorResponse{
		Error: &AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
