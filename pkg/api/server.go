// Package api is the gin ingress: the CloudEvent sink, the approval
// callback, health and readiness probes, and the Prometheus scrape endpoint.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/brunovlucena/homelab-sub000/pkg/alert"
	"github.com/brunovlucena/homelab-sub000/pkg/approval"
	"github.com/brunovlucena/homelab-sub000/pkg/config"
	"github.com/brunovlucena/homelab-sub000/pkg/memory"
	"github.com/brunovlucena/homelab-sub000/pkg/observability"
	"github.com/brunovlucena/homelab-sub000/pkg/workflow"
)

// readyTimeout bounds each readiness ping.
const readyTimeout = 5 * time.Second

// Dispatcher accepts alert events for asynchronous processing.
// *workflow.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev *event.Event, correlationID string) error
	Health() workflow.Health
}

// Approvals answers provider callbacks. *approval.Manager implements it.
type Approvals interface {
	HandleCallback(ctx context.Context, payload []byte) (*approval.Request, error)
}

// Outcomes patches example outcomes on alert resolution. *examples.Index
// implements it.
type Outcomes interface {
	MarkOutcome(ctx context.Context, a *alert.Alert, success bool) error
}

// Store persists resolved-alert records. The memory manager implements it.
type Store interface {
	SaveEntry(ctx context.Context, entry *memory.Entry) error
}

// Pinger is a readiness check on one backing component.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

// Ping calls the wrapped function.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// ServerParams wires a Server. Approvals, Outcomes, Store, and Pingers may
// be nil when the corresponding component is disabled; Gatherer defaults to
// the process registry.
type ServerParams struct {
	Config     *config.ServerConfig
	Dispatcher Dispatcher
	Approvals  Approvals
	Outcomes   Outcomes
	Store      Store
	Metrics    *observability.Metrics
	Gatherer   prometheus.Gatherer
	Pingers    map[string]Pinger
}

// Server is the HTTP ingress.
type Server struct {
	cfg        *config.ServerConfig
	dispatcher Dispatcher
	approvals  Approvals
	outcomes   Outcomes
	store      Store
	metrics    *observability.Metrics
	gatherer   prometheus.Gatherer
	pingers    map[string]Pinger
}

// NewServer creates the ingress server.
func NewServer(p ServerParams) *Server {
	if p.Gatherer == nil {
		p.Gatherer = observability.Registry
	}
	return &Server{
		cfg:        p.Config,
		dispatcher: p.Dispatcher,
		approvals:  p.Approvals,
		outcomes:   p.Outcomes,
		store:      p.Store,
		metrics:    p.Metrics,
		gatherer:   p.Gatherer,
		pingers:    p.Pingers,
	}
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders(), correlation())

	r.POST("/", s.handleEvent)
	r.POST("/approval/callback", s.handleApprovalCallback)
	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/metrics", s.handleMetrics())

	return r
}

// HTTPServer wraps the router in an http.Server bound to the configured port.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              ":" + s.cfg.HTTPPort,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
