package handler

import (
	"errors"
	"net/http"

	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

// respondError maps workflow errors onto HTTP status codes:
// 400 validation/duplicate, 404 not found, 409 already terminal or already
// decided, 500 everything else.
func respondError(c *gin.Context, err error) {
	var dup *service.DuplicateRequestError
	var notPending *service.NotPendingError
	var badStrategy *service.InvalidStrategyError

	switch {
	case errors.As(err, &dup):
		c.JSON(http.StatusBadRequest, gin.H{
			"status":          "error",
			"status_code":     http.StatusBadRequest,
			"error":           dup.Error(),
			"existing_code":   dup.ExistingCode,
			"existing_status": dup.ExistingStatus,
		})
	case errors.Is(err, service.ErrRequestNotFound), errors.Is(err, service.ErrPolicyNotFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
	case errors.As(err, &notPending), errors.Is(err, service.ErrAlreadyDecided), errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	case errors.Is(err, service.ErrNotEligible), errors.Is(err, service.ErrOverrideNotAllowed):
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, err.Error()))
	case errors.Is(err, service.ErrPolicyInactive), errors.As(err, &badStrategy):
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
	}
}

// actorID extracts the authenticated user id set by the auth middleware.
func actorID(c *gin.Context) string {
	userID, _ := c.Get("userID")
	id, _ := userID.(string)
	return id
}
