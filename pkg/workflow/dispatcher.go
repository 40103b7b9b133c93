package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/config"
	"github.com/brunovlucena/homelab-sub000/pkg/observability"
)

// Dispatcher bounds workflow concurrency and deduplicates in-flight
// correlation IDs. Events are accepted synchronously and executed
// asynchronously so the ingress can answer immediately.
type Dispatcher struct {
	cfg    *config.WorkflowConfig
	engine *Engine

	sem chan struct{}

	mu       sync.Mutex
	inflight map[string]struct{}
	draining bool

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the engine.
func NewDispatcher(cfg *config.WorkflowConfig, engine *Engine) *Dispatcher {
	capacity := cfg.MaxConcurrent
	if capacity <= 0 {
		capacity = 1
	}
	return &Dispatcher{
		cfg:      cfg,
		engine:   engine,
		sem:      make(chan struct{}, capacity),
		inflight: make(map[string]struct{}),
	}
}

// Dispatch accepts an event for asynchronous processing. A second event
// with the same correlation ID while the first is still running returns
// ErrDuplicateInFlight; the caller treats that as already processed.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *event.Event, correlationID string) error {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return apperrors.Newf(apperrors.KindUnavailable, "workflow.dispatch", "dispatcher is draining")
	}
	if _, dup := d.inflight[correlationID]; dup {
		d.mu.Unlock()
		return fmt.Errorf("correlation %s: %w", correlationID, apperrors.ErrDuplicateInFlight)
	}
	d.inflight[correlationID] = struct{}{}
	d.mu.Unlock()

	// Detach from the request context: the HTTP response returns before the
	// workflow finishes, but trace and logger bindings carry over.
	runCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.release(correlationID)

		d.sem <- struct{}{}
		defer func() { <-d.sem }()

		// The active-remediations gauge moves with the remediation trace
		// opened by the engine, not here.
		if _, err := d.engine.Run(runCtx, ev, correlationID); err != nil {
			observability.Logger(runCtx).Error("Workflow run failed before reaching the state machine",
				"correlation_id", correlationID, "error", err)
		}
	}()
	return nil
}

// Drain stops accepting new work and waits up to the graceful shutdown
// timeout for active workflows. Workflows still running after the deadline
// stay checkpointed and are recovered as orphans on the next start.
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()

	deadline := d.cfg.GracefulShutdownTimeout
	if deadline <= 0 {
		deadline = 30 * time.Second
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(deadline):
		return apperrors.Newf(apperrors.KindWorkflow, "workflow.drain",
			"graceful shutdown timed out after %s with %d workflows active", deadline, d.active())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health is the dispatcher's health snapshot.
type Health struct {
	Active   int  `json:"active_workflows"`
	Capacity int  `json:"capacity"`
	Draining bool `json:"draining"`
}

// Health reports the current dispatcher load.
func (d *Dispatcher) Health() Health {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Health{
		Active:   len(d.inflight),
		Capacity: cap(d.sem),
		Draining: d.draining,
	}
}

func (d *Dispatcher) active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

func (d *Dispatcher) release(correlationID string) {
	d.mu.Lock()
	delete(d.inflight, correlationID)
	d.mu.Unlock()
}
