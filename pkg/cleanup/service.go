// Package cleanup enforces memory retention: expired fast-tier entries are
// swept out of every store that does not expire them natively.
package cleanup

import (
	"context"
	"time"

	"github.com/brunovlucena/homelab-sub000/pkg/config"
	"github.com/brunovlucena/homelab-sub000/pkg/observability"
)

// Sweeper deletes entries past their expiry. The SQLite and in-memory
// stores implement it; Redis expires keys natively and needs no sweep.
type Sweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Service periodically sweeps expired entries from the registered stores.
// Sweeps are idempotent and safe to run from multiple pods.
type Service struct {
	cfg      *config.MemoryConfig
	sweepers map[string]Sweeper

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a retention service over named sweepers. The name only
// appears in logs.
func NewService(cfg *config.MemoryConfig, sweepers map[string]Sweeper) *Service {
	return &Service{
		cfg:      cfg,
		sweepers: sweepers,
	}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	observability.Logger(ctx).Info("Retention service started",
		"stores", len(s.sweepers),
		"interval", s.cfg.RetentionInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.SweepAll(ctx, time.Now().UTC())

	ticker := time.NewTicker(s.cfg.RetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.SweepAll(ctx, now.UTC())
		}
	}
}

// SweepAll runs one retention pass over every store.
func (s *Service) SweepAll(ctx context.Context, now time.Time) {
	log := observability.Logger(ctx)
	for name, sweeper := range s.sweepers {
		count, err := sweeper.DeleteExpired(ctx, now)
		if err != nil {
			log.Error("Retention sweep failed", "store", name, "error", err)
			continue
		}
		if count > 0 {
			log.Info("Retention sweep removed expired entries", "store", name, "count", count)
		}
	}
}
