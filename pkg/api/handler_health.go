package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brunovlucena/homelab-sub000/pkg/version"
)

// handleHealth is the liveness probe: the pod is up, plus a dispatcher load
// snapshot for operators.
func (s *Server) handleHealth(c *gin.Context) {
	snap := s.dispatcher.Health()
	status := "healthy"
	if snap.Draining {
		status = "draining"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"agent":      s.cfg.AgentID,
		"version":    version.Full(),
		"dispatcher": snap,
	})
}

// handleReady is the readiness probe: every backing store must answer a
// ping within the budget.
func (s *Server) handleReady(c *gin.Context) {
	components := make(map[string]string, len(s.pingers))
	ready := true

	for name, pinger := range s.pingers {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		err := pinger.Ping(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			ready = false
			continue
		}
		components[name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}

// handleMetrics serves the Prometheus scrape endpoint off the process
// registry.
func (s *Server) handleMetrics() gin.HandlerFunc {
	h := promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
