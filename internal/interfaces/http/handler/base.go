package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reviewsync/backend/internal/domain/ingestion"
	"github.com/reviewsync/backend/internal/interfaces/http/dto"
)

// RequestIDKey is the context key for request ID
const RequestIDKey = "request_id"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Accepted sends a 202 accepted response
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
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

// ValidationError sends a 400 response carrying per-field validation details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	c.JSON(http.StatusBadRequest,
		dto.NewValidationErrorResponse("Request validation failed", getRequestID(c), details))
}

// domainErrorCode maps ingestion sentinel errors to API error codes.
func domainErrorCode(err error) string {
	switch {
	case errors.Is(err, ingestion.ErrSellerNotFound),
		errors.Is(err, ingestion.ErrJobNotFound):
		return dto.ErrCodeNotFound
	case errors.Is(err, ingestion.ErrSellerNotActive):
		return dto.ErrCodeSellerNotActive
	case errors.Is(err, ingestion.ErrAuthExpired),
		errors.Is(err, ingestion.ErrAuthRevoked):
		return dto.ErrCodeReauthorizeRequired
	case errors.Is(err, ingestion.ErrJobAlreadyTerminal):
		return dto.ErrCodeJobTerminal
	case errors.Is(err, ingestion.ErrJobInvalidTransition):
		return dto.ErrCodeInvalidState
	case errors.Is(err, ingestion.ErrJobNoItems):
		return dto.ErrCodeValidation
	case errors.Is(err, ingestion.ErrUnknownPlatform):
		return dto.ErrCodeUnknownPlatform
	case errors.Is(err, ingestion.ErrTransientFetch),
		errors.Is(err, ingestion.ErrPermanentFetch):
		return dto.ErrCodeUpstreamUnavailable
	default:
		return dto.ErrCodeInternal
	}
}

// HandleDomainError converts domain errors to HTTP responses
func (h *BaseHandler) HandleDomainError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	code := domainErrorCode(err)
	message := err.Error()
	if code == dto.ErrCodeInternal {
		// Internal details stay out of the response body
		message = "an unexpected error occurred"
	}
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}
