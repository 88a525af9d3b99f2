package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storygen/backend/internal/service"
	apperrors "storygen/backend/pkg/errors"
)

// toAppError maps the service taxonomy onto transport errors.
func toAppError(err error) *apperrors.AppError {
	var collab *service.CollaboratorError
	switch {
	case errors.Is(err, service.ErrNotFound):
		return apperrors.NewNotFoundError("SESSION_NOT_FOUND", err.Error()).WithCause(err)
	case errors.Is(err, service.ErrUpstreamUnavailable):
		return apperrors.NewServiceUnavailableError("CAPABILITY_UNAVAILABLE", err.Error()).WithCause(err)
	case errors.Is(err, service.ErrPreconditionFailed):
		return apperrors.NewBadRequestError("PRECONDITION_FAILED", err.Error()).WithCause(err)
	case errors.Is(err, service.ErrRevisionConflict):
		return apperrors.NewConflictError("REVISION_CONFLICT", err.Error()).WithCause(err)
	case errors.Is(err, service.ErrEncodingFault):
		return apperrors.NewInternalServerError("ENCODING_FAULT", err.Error()).WithCause(err)
	case errors.As(err, &collab):
		appErr := apperrors.NewInternalServerError("COLLABORATOR_FAILURE", collab.Error()).WithCause(err)
		return appErr.WithDetails(gin.H{"collaborator": collab.Collaborator})
	}
	return apperrors.FromError(err)
}

// invalidRequest reports a body or query that could not be bound. Bodies
// cut off by the size limit keep their 413.
func invalidRequest(err error) *apperrors.AppError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.FromError(err)
	}
	return apperrors.NewBadRequestError("INVALID_REQUEST", err.Error()).WithCause(err)
}
