// Package response defines the JSON envelope shared by every API endpoint.
package response

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Response is the envelope returned by every endpoint: a success flag plus
// optional payload, user-facing error and message.
type Response struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Message string            `json:"message,omitempty"`
	Details []validationError `json:"details,omitempty"`
}

var EmptyRequestBodyResponse = Response{
	Error:   "Empty request body",
	Message: "Request body is empty. Please provide the necessary data.",
}

var BadRequestResponse = Response{
	Error:   "Bad request",
	Message: "The request body could not be parsed.",
}

var NotFoundResponse = Response{
	Error:   "Short URL not found",
	Message: "The requested short URL does not exist or has been deactivated.",
}

// ServerErrorResponse deliberately carries no detail; storage and
// unexpected failures are logged server-side only.
var ServerErrorResponse = Response{
	Error:   "Internal server error",
	Message: "An internal server error occurred. Please try again later.",
}

func SuccessResponse(msg string, data ...any) Response {
	resp := Response{
		Success: true,
		Message: msg,
	}

	if len(data) > 0 {
		resp.Data = data[0]
	}

	return resp
}

func ErrorResponse(msg string) Response {
	return Response{
		Error: msg,
	}
}

func ValidationErrorResponse(err error) Response {
	return Response{
		Error:   "Validation error",
		Message: "The request contains invalid fields.",
		Details: getValidationErrors(err),
	}
}

type validationError struct {
	Field string `json:"field"`
	Value any    `json:"value"`
	Issue string `json:"issue"`
}

func getValidationErrors(err error) []validationError {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return nil
	}

	errs := make([]validationError, 0, len(validationErrs))
	for _, err := range validationErrs {
		issue := "Invalid value."

		switch err.Tag() {
		case "required":
			issue = "This field is required."
		case "url":
			issue = "Invalid url."
		case "min", "max":
			issue = fmt.Sprintf("Must respect the %s=%s constraint.", err.Tag(), err.Param())
		}

		errs = append(errs, validationError{
			Field: err.Field(),
			Value: err.Value(),
			Issue: issue,
		})
	}

	return errs
}
