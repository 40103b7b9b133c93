package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
)

// maxCallbackBytes caps approval callback bodies.
const maxCallbackBytes = 64 << 10

// handleApprovalCallback applies a provider decision to a pending request.
func (s *Server) handleApprovalCallback(c *gin.Context) {
	if s.approvals == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "approvals are not enabled"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBytes))
	if err != nil {
		respondError(c, apperrors.New(apperrors.KindTransport, "api.approval", err))
		return
	}

	req, err := s.approvals.HandleCallback(c.Request.Context(), payload)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "processed",
		"request_id":      req.RequestID,
		"approval_status": string(req.Status),
	})
}
