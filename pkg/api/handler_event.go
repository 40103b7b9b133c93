package api

import (
	"errors"
	"net/http"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/gin-gonic/gin"

	"github.com/brunovlucena/homelab-sub000/pkg/alert"
	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/events"
	"github.com/brunovlucena/homelab-sub000/pkg/memory"
	"github.com/brunovlucena/homelab-sub000/pkg/observability"
)

// handleEvent is the CloudEvent sink. Alert-fired events start a workflow;
// alert-resolved events close the learning loop; everything else is
// acknowledged and ignored.
func (s *Server) handleEvent(c *gin.Context) {
	ev, truncated, err := events.FromHTTPRequest(c.Request)
	if err != nil {
		observability.Logger(c.Request.Context()).Warn("Rejected unparseable event",
			"error", err, "payload", truncated)
		s.countEvent("unknown", "parse_error")
		respondError(c, err)
		return
	}

	correlationID := observability.CorrelationID(c.Request.Context())
	if correlationID == "" {
		correlationID = observability.CorrelationIDFrom(c.Request.Header, ev.ID())
		c.Writer.Header().Set(observability.HeaderCorrelationID, correlationID)
	}
	ctx := observability.Bind(c.Request.Context(), correlationID, ev.ID(), "")
	log := observability.Logger(ctx)

	switch ev.Type() {
	case events.TypeAlertFired:
		if err := s.dispatcher.Dispatch(ctx, ev, correlationID); err != nil {
			if errors.Is(err, apperrors.ErrDuplicateInFlight) {
				// The first arrival owns the workflow; this one is done.
				log.Info("Duplicate alert event while workflow in flight")
				s.countEvent(ev.Type(), "duplicate")
				s.respondProcessed(c, ev.ID(), correlationID)
				return
			}
			s.countEvent(ev.Type(), "rejected")
			respondError(c, err)
			return
		}
		s.countEvent(ev.Type(), "accepted")

	case events.TypeAlertResolved:
		s.handleResolved(c, ev, correlationID)
		return

	default:
		log.Info("Ignoring unhandled event type", "type", ev.Type())
		s.countEvent(ev.Type(), "ignored")
	}

	s.respondProcessed(c, ev.ID(), correlationID)
}

// handleResolved persists the resolution and patches the matching example
// outcome. Resolved alerts never start workflows.
func (s *Server) handleResolved(c *gin.Context, ev *event.Event, correlationID string) {
	ctx := c.Request.Context()
	payload, err := events.Data(ev)
	if err != nil {
		s.countEvent(ev.Type(), "parse_error")
		respondError(c, err)
		return
	}

	a := alert.FromPayload(payload)
	a.Status = alert.StatusResolved
	log := observability.Logger(observability.Bind(ctx, correlationID, ev.ID(), a.Alertname))

	if s.outcomes != nil {
		if err := s.outcomes.MarkOutcome(ctx, a, true); err != nil {
			log.Warn("Failed to patch example outcome on resolution", "error", err)
		}
	}
	if s.store != nil {
		entry, err := memory.NewEntry("alert_resolved:"+a.Fingerprint, memory.TypeShortTerm, s.cfg.AgentID, map[string]any{
			"alertname":   a.Alertname,
			"fingerprint": a.Fingerprint,
			"labels":      a.Labels,
			"event_id":    ev.ID(),
		})
		if err == nil {
			err = s.store.SaveEntry(ctx, entry)
		}
		if err != nil {
			log.Warn("Failed to persist alert resolution", "error", err)
		}
	}

	log.Info("Alert resolved", "fingerprint", a.Fingerprint)
	s.countEvent(ev.Type(), "accepted")
	s.respondProcessed(c, ev.ID(), correlationID)
}

func (s *Server) respondProcessed(c *gin.Context, eventID, correlationID string) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "processed",
		"event_id":       eventID,
		"correlation_id": correlationID,
	})
}

func (s *Server) countEvent(eventType, status string) {
	if s.metrics != nil {
		s.metrics.EventsReceived.WithLabelValues(eventType, status).Inc()
	}
}
