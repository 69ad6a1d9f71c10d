package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/scheduler"
	"github.com/beautyops/backend/internal/interfaces/http/dto"
	"github.com/beautyops/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Accepted sends a 202 response for queued work
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponse(code, message, middleware.GetRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleError converts sync, store and scheduler errors to HTTP responses.
// Unknown errors become a generic 500 so internals never leak.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	code, message := errorCode(err)
	h.ErrorWithCode(c, code, message)
}

// errorCode maps err to an error code and the message shown to the caller
func errorCode(err error) (string, string) {
	var authErr *integration.AuthenticationError
	switch {
	case errors.As(err, &authErr):
		if authErr.Message != "" {
			return dto.ErrCodeUpstreamAuth, authErr.Message
		}
		return dto.ErrCodeUpstreamAuth, err.Error()
	case errors.Is(err, integration.ErrAuthentication):
		return dto.ErrCodeUpstreamAuth, err.Error()
	case errors.Is(err, integration.ErrInvalidChannel):
		return dto.ErrCodeChannelInvalid, err.Error()
	case errors.Is(err, integration.ErrChannelNotConfigured):
		return dto.ErrCodeChannelNotConfigured, err.Error()
	case errors.Is(err, integration.ErrInvalidDateRange):
		return dto.ErrCodeInvalidRange, err.Error()
	case errors.Is(err, integration.ErrMissingCredential):
		return dto.ErrCodeValidation, err.Error()
	case errors.Is(err, integration.ErrSyncInProgress):
		return dto.ErrCodeSyncInProgress, err.Error()
	case errors.Is(err, integration.ErrSyncCancelled):
		return dto.ErrCodeSyncCancelled, err.Error()
	case errors.Is(err, integration.ErrSigning):
		return dto.ErrCodeSigning, err.Error()
	case errors.Is(err, integration.ErrProxy):
		return dto.ErrCodeProxy, err.Error()
	case errors.Is(err, integration.ErrFetch), errors.Is(err, integration.ErrDetailBatch):
		return dto.ErrCodeUpstream, err.Error()
	case errors.Is(err, integration.ErrOrderNotFound),
		errors.Is(err, integration.ErrSyncRunNotFound),
		errors.Is(err, scheduler.ErrJobNotFound):
		return dto.ErrCodeNotFound, err.Error()
	case errors.Is(err, scheduler.ErrSchedulerNotRunning),
		errors.Is(err, scheduler.ErrJobQueueFull):
		return dto.ErrCodeSchedulerUnavailable, err.Error()
	default:
		return dto.ErrCodeInternal, "An unexpected error occurred"
	}
}
