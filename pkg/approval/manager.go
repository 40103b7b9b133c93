package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/config"
	"github.com/brunovlucena/homelab-sub000/pkg/memory"
	"github.com/brunovlucena/homelab-sub000/pkg/observability"
)

// sendTimeout bounds each provider delivery attempt.
const sendTimeout = 10 * time.Second

// entryID is the memory key for a persisted request.
func entryID(requestID string) string { return "approval:" + requestID }

// Store is the persistence surface the manager needs. The memory manager
// implements it; a nil store keeps requests in memory only.
type Store interface {
	SaveEntry(ctx context.Context, entry *memory.Entry) error
	GetEntry(ctx context.Context, id string, t memory.Type) (*memory.Entry, error)
}

// Manager owns approval requests: creation, provider fan-out, callback
// decisions, quorum, and the timeout sweep. The in-memory map is the source
// of truth; the store is write-through so a restarted pod can still answer
// callbacks for requests created before the restart.
type Manager struct {
	cfg       *config.ApprovalConfig
	providers map[string]Provider
	store     Store
	agentID   string
	metrics   *observability.Metrics

	mu       sync.Mutex
	requests map[string]*Request
	waiters  map[string][]chan struct{}

	stop chan struct{}
	done chan struct{}
}

// NewManager creates an approval manager with the given providers.
func NewManager(cfg *config.ApprovalConfig, store Store, agentID string, metrics *observability.Metrics, providers ...Provider) *Manager {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Manager{
		cfg:       cfg,
		providers: byName,
		store:     store,
		agentID:   agentID,
		metrics:   metrics,
		requests:  make(map[string]*Request),
		waiters:   make(map[string][]chan struct{}),
	}
}

// RequestApproval stores the request as pending and fans it out to every
// provider. A provider whose send fails is marked rejected (fail-closed);
// with require_all that rejects the whole request immediately.
func (m *Manager) RequestApproval(ctx context.Context, req *Request) (*Request, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.ExpiresAt = now.Add(m.cfg.Timeout)
	req.RequireAll = m.cfg.RequireAll
	if req.TimeoutAction == "" {
		req.TimeoutAction = m.cfg.TimeoutAction
	}
	req.Status = StatusPending

	if len(req.Providers) == 0 {
		for name := range m.providers {
			req.Providers = append(req.Providers, name)
		}
	}
	if len(req.Providers) == 0 {
		return nil, apperrors.Newf(apperrors.KindWorkflow, "approval.request",
			"no approval providers configured")
	}
	req.ProviderStatus = make(map[string]Status, len(req.Providers))
	for _, name := range req.Providers {
		req.ProviderStatus[name] = StatusPending
	}

	m.mu.Lock()
	m.requests[req.RequestID] = req
	m.mu.Unlock()
	m.persist(ctx, req)

	if m.metrics != nil {
		m.metrics.ApprovalRequests.WithLabelValues(string(StatusPending)).Inc()
	}
	observability.Logger(ctx).Info("Approval requested",
		"request_id", req.RequestID,
		"lambda_function", req.LambdaFunction,
		"providers", req.Providers,
		"require_all", req.RequireAll)

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range req.Providers {
		provider, ok := m.providers[name]
		g.Go(func() error {
			if !ok {
				m.markProvider(gctx, req.RequestID, name, StatusRejected, "", fmt.Errorf("unknown provider %q", name))
				return nil
			}
			sctx, cancel := context.WithTimeout(gctx, sendTimeout)
			defer cancel()
			if err := provider.Send(sctx, req); err != nil {
				m.markProvider(gctx, req.RequestID, name, StatusRejected, "", err)
			}
			return nil
		})
	}
	g.Wait()

	return req, nil
}

// HandleCallback applies a provider decision. Unknown requests return
// ErrNotFound so the ingress answers 404; decisions on terminal requests
// are ignored idempotently.
func (m *Manager) HandleCallback(ctx context.Context, payload []byte) (*Request, error) {
	resp, err := ParseResponse(payload)
	if err != nil {
		return nil, err
	}

	req, err := m.lookup(ctx, resp.RequestID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if req.Status.Terminal() {
		m.mu.Unlock()
		observability.Logger(ctx).Info("Decision on settled approval ignored",
			"request_id", req.RequestID, "status", req.Status)
		return req, nil
	}
	if _, known := req.ProviderStatus[resp.Provider]; !known {
		m.mu.Unlock()
		return nil, apperrors.Newf(apperrors.KindParse, "approval.callback",
			"provider %q not part of request %s", resp.Provider, req.RequestID)
	}

	status := StatusApproved
	if resp.Decision == DecisionReject {
		status = StatusRejected
	}
	req.ProviderStatus[resp.Provider] = status
	if m.metrics != nil {
		m.metrics.ApprovalDecisions.WithLabelValues(resp.Provider, string(resp.Decision)).Inc()
	}

	actor := resp.UserName
	if actor == "" {
		actor = resp.UserID
	}
	m.settleLocked(req, actor)
	m.mu.Unlock()

	m.persist(ctx, req)
	observability.Logger(ctx).Info("Approval decision recorded",
		"request_id", req.RequestID,
		"provider", resp.Provider,
		"decision", resp.Decision,
		"status", req.Status)
	return req, nil
}

// Await blocks until the request settles or the context expires. The
// returned request reflects the final state.
func (m *Manager) Await(ctx context.Context, requestID string) (*Request, error) {
	m.mu.Lock()
	req, ok := m.requests[requestID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("approval request %s: %w", requestID, apperrors.ErrNotFound)
	}
	if req.Status.Terminal() {
		m.mu.Unlock()
		return req, nil
	}
	ch := make(chan struct{})
	m.waiters[requestID] = append(m.waiters[requestID], ch)
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return req, ctx.Err()
	case <-ch:
		return req, nil
	}
}

// Cancel marks a pending request cancelled, releasing any waiters.
func (m *Manager) Cancel(ctx context.Context, requestID string) {
	m.mu.Lock()
	req, ok := m.requests[requestID]
	if ok && !req.Status.Terminal() {
		m.finalizeLocked(req, StatusCancelled, "")
	}
	m.mu.Unlock()
	if ok {
		m.persist(ctx, req)
	}
}

// Get returns the current state of a request.
func (m *Manager) Get(ctx context.Context, requestID string) (*Request, error) {
	return m.lookup(ctx, requestID)
}

// Start launches the timeout sweep.
func (m *Manager) Start() {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case now := <-ticker.C:
				m.SweepExpired(context.Background(), now.UTC())
			}
		}
	}()
}

// Stop halts the sweep and waits for it to exit.
func (m *Manager) Stop() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
}

// SweepExpired transitions overdue pending requests to timeout and applies
// the timeout action: approve and reject settle the request accordingly; a
// pending action leaves it in timeout and the owning workflow aborts.
func (m *Manager) SweepExpired(ctx context.Context, now time.Time) {
	var expired []*Request

	m.mu.Lock()
	for _, req := range m.requests {
		if req.Status != StatusPending || req.ExpiresAt.After(now) {
			continue
		}
		switch req.TimeoutAction {
		case config.TimeoutActionApprove:
			m.finalizeLocked(req, StatusApproved, "timeout_action")
		case config.TimeoutActionReject:
			m.finalizeLocked(req, StatusRejected, "timeout_action")
		default:
			m.finalizeLocked(req, StatusTimeout, "")
		}
		expired = append(expired, req)
	}
	m.mu.Unlock()

	for _, req := range expired {
		observability.Logger(ctx).Warn("Approval request timed out",
			"request_id", req.RequestID,
			"timeout_action", req.TimeoutAction,
			"status", req.Status)
		m.persist(ctx, req)
	}
}

// settleLocked applies quorum and finalizes when it resolves. Caller holds
// the lock.
func (m *Manager) settleLocked(req *Request, actor string) {
	if status := req.Quorum(); status.Terminal() {
		m.finalizeLocked(req, status, actor)
	}
}

// finalizeLocked records the terminal status and wakes waiters. Caller
// holds the lock.
func (m *Manager) finalizeLocked(req *Request, status Status, actor string) {
	req.Status = status
	now := time.Now().UTC()
	req.DecidedAt = &now
	if actor != "" {
		req.DecidedBy = actor
	}
	if m.metrics != nil {
		m.metrics.ApprovalRequests.WithLabelValues(string(status)).Inc()
	}
	for _, ch := range m.waiters[req.RequestID] {
		close(ch)
	}
	delete(m.waiters, req.RequestID)
}

// markProvider records a fail-closed rejection from a send failure.
func (m *Manager) markProvider(ctx context.Context, requestID, provider string, status Status, actor string, cause error) {
	observability.Logger(ctx).Warn("Approval provider send failed, marking rejected",
		"request_id", requestID, "provider", provider, "error", cause)

	m.mu.Lock()
	req, ok := m.requests[requestID]
	if ok && !req.Status.Terminal() {
		req.ProviderStatus[provider] = status
		m.settleLocked(req, actor)
	}
	m.mu.Unlock()

	if ok {
		if m.metrics != nil {
			m.metrics.ApprovalDecisions.WithLabelValues(provider, "send_failed").Inc()
		}
		m.persist(ctx, req)
	}
}

// lookup finds a request in memory, falling back to the store for requests
// created before a restart.
func (m *Manager) lookup(ctx context.Context, requestID string) (*Request, error) {
	m.mu.Lock()
	req, ok := m.requests[requestID]
	m.mu.Unlock()
	if ok {
		return req, nil
	}
	if m.store == nil {
		return nil, fmt.Errorf("approval request %s: %w", requestID, apperrors.ErrNotFound)
	}

	entry, err := m.store.GetEntry(ctx, entryID(requestID), memory.TypeWorking)
	if err != nil {
		return nil, fmt.Errorf("approval request %s: %w", requestID, apperrors.ErrNotFound)
	}
	restored := &Request{}
	if err := entry.Decode(restored); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, raced := m.requests[requestID]; raced {
		restored = existing
	} else {
		m.requests[requestID] = restored
	}
	m.mu.Unlock()
	return restored, nil
}

// persist writes the request through to the store when one is configured.
func (m *Manager) persist(ctx context.Context, req *Request) {
	if m.store == nil {
		return
	}
	entry, err := memory.NewEntry(entryID(req.RequestID), memory.TypeWorking, m.agentID, req)
	if err == nil {
		err = m.store.SaveEntry(ctx, entry)
	}
	if err != nil {
		observability.Logger(ctx).Warn("Failed to persist approval request",
			"request_id", req.RequestID, "error", err)
	}
}
