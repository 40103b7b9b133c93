package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/observability"
)

// respondError maps tagged errors to HTTP responses. Parse errors are the
// caller's fault; not-found means an unknown approval request; everything
// else is internal.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
	case apperrors.KindOf(err) == apperrors.KindParse:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperrors.KindOf(err) == apperrors.KindUnavailable:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
	default:
		observability.Logger(c.Request.Context()).Error("Unexpected handler error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
