package errors

import (
	"context"
	"errors"
	"net/http"
)

// BadRequestWithDetails creates a 400 Bad Request error with details
func BadRequestWithDetails(code string, message string, details any) *AppError {
	return NewBadRequestError(code, message).WithDetails(details)
}

// FromError converts any error to an AppError. AppErrors anywhere in the
// chain are returned as they are. Oversized bodies become 413 and expired
// request deadlines 504; everything else is a 500 that keeps the cause.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return NewPayloadTooLargeError("PAYLOAD_TOO_LARGE", "Request body exceeds the configured limit").
			WithDetails(map[string]int64{"limit_bytes": tooLarge.Limit}).WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewGatewayTimeoutError("UPSTREAM_TIMEOUT", "The operation did not finish in time").WithCause(err)
	}

	return NewInternalServerError("INTERNAL_ERROR", "An unexpected error occurred: "+err.Error()).WithCause(err)
}

// GetStatusCode is the status FromError would use for err.
func GetStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return FromError(err).StatusCode
}

// GetErrorCode is the code FromError would use for err.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	return FromError(err).Code
}
