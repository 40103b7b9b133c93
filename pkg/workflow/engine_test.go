package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunovlucena/homelab-sub000/pkg/alert"
	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
	"github.com/brunovlucena/homelab-sub000/pkg/approval"
	"github.com/brunovlucena/homelab-sub000/pkg/config"
	"github.com/brunovlucena/homelab-sub000/pkg/events"
	"github.com/brunovlucena/homelab-sub000/pkg/lambda"
	"github.com/brunovlucena/homelab-sub000/pkg/memory"
	"github.com/brunovlucena/homelab-sub000/pkg/memory/domain"
	"github.com/brunovlucena/homelab-sub000/pkg/observability"
	"github.com/brunovlucena/homelab-sub000/pkg/selector"
	"github.com/brunovlucena/homelab-sub000/pkg/slack"
	"github.com/brunovlucena/homelab-sub000/pkg/ticket"
)

type mapStore struct {
	mu      sync.Mutex
	entries map[string]*memory.Entry
	schemas map[string]*memory.DomainMemorySchema
}

func newMapStore() *mapStore {
	return &mapStore{
		entries: make(map[string]*memory.Entry),
		schemas: make(map[string]*memory.DomainMemorySchema),
	}
}

func (s *mapStore) SaveSchema(_ context.Context, schema *memory.DomainMemorySchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[schema.SchemaID] = schema
	return nil
}

func (s *mapStore) SaveEntry(_ context.Context, entry *memory.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry
	return nil
}

func (s *mapStore) GetEntry(_ context.Context, id string, _ memory.Type) (*memory.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("entry %s: %w", id, apperrors.ErrNotFound)
	}
	return entry, nil
}

func (s *mapStore) QueryEntries(_ context.Context, q memory.Query) ([]*memory.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*memory.Entry
	for _, entry := range s.entries {
		if q.Type != "" && entry.Type != q.Type {
			continue
		}
		fields := make(map[string]any)
		_ = json.Unmarshal(entry.Data, &fields)
		matched := true
		for k, want := range q.Filters {
			if got, _ := fields[k].(string); got != want {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *mapStore) state(t *testing.T, correlationID string) *State {
	t.Helper()
	s.mu.Lock()
	entry, ok := s.entries[stateID(correlationID)]
	s.mu.Unlock()
	require.True(t, ok, "no checkpoint for %s", correlationID)
	st := &State{}
	require.NoError(t, entry.Decode(st))
	return st
}

type fakeSelector struct {
	sel   *selector.Selection
	err   error
	calls int
}

func (f *fakeSelector) Select(_ context.Context, _ *alert.Alert) (*selector.Selection, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.sel, nil
}

// fakeInvoker replays scripted outcomes, one per call.
type fakeInvoker struct {
	mu         sync.Mutex
	results    []*lambda.Result
	errs       []error
	calls      int
	lastFn     string
	lastParams map[string]any
	lastCorr   string
	block      chan struct{}
}

func (f *fakeInvoker) Invoke(ctx context.Context, fn string, params map[string]any, corr string) (*lambda.Result, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.lastFn, f.lastParams, f.lastCorr = fn, params, corr
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return &lambda.Result{Status: lambda.StatusSuccess, Message: "done", CorrelationID: corr}, nil
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeApprovals struct {
	mu        sync.Mutex
	requested *approval.Request
	final     approval.Status
	decidedBy string
	err       error
}

func (f *fakeApprovals) RequestApproval(_ context.Context, req *approval.Request) (*approval.Request, error) {
	if f.err != nil {
		return nil, f.err
	}
	req.RequestID = "req-test"
	req.Status = approval.StatusPending
	req.CreatedAt = time.Now().UTC().Add(-30 * time.Second)
	f.mu.Lock()
	f.requested = req
	f.mu.Unlock()
	return req, nil
}

func (f *fakeApprovals) Await(_ context.Context, _ string) (*approval.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested.Status = f.final
	f.requested.DecidedBy = f.decidedBy
	return f.requested, nil
}

type fakeOutcomes struct {
	mu     sync.Mutex
	marked []bool
}

func (f *fakeOutcomes) MarkOutcome(_ context.Context, _ *alert.Alert, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, success)
	return nil
}

type fakeRecorder struct {
	mu            sync.Mutex
	completions   []memory.TaskCompletion
	errorPatterns []memory.ErrorPattern
}

func (f *fakeRecorder) RecordTaskCompletion(_ context.Context, _, taskID, summary string, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, memory.TaskCompletion{TaskID: taskID, Summary: summary, Success: success})
	return nil
}

func (f *fakeRecorder) RecordErrorPattern(_ context.Context, _, errorType, description, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorPatterns = append(f.errorPatterns, memory.ErrorPattern{ErrorType: errorType, Description: description})
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	failures []slack.FailureMessageInput
}

func (f *fakeNotifier) NotifyTerminalFailure(_ context.Context, in slack.FailureMessageInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, in)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.failures)
}

type fakeFiler struct {
	mu      sync.Mutex
	tickets []ticket.Ticket
}

func (f *fakeFiler) File(_ context.Context, t ticket.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets = append(f.tickets, t)
	return nil
}

type harness struct {
	engine    *Engine
	store     *mapStore
	selector  *fakeSelector
	invoker   *fakeInvoker
	approvals *fakeApprovals
	outcomes  *fakeOutcomes
	recorder  *fakeRecorder
	notifier  *fakeNotifier
	filer     *fakeFiler
	cfg       *config.WorkflowConfig
	metrics   *observability.Metrics
}

func newHarness(t *testing.T, mode config.OperationMode) *harness {
	t.Helper()
	h := &harness{
		store: newMapStore(),
		selector: &fakeSelector{sel: &selector.Selection{
			LambdaFunction: "pod-restart",
			Parameters:     map[string]any{"name": "api", "namespace": "prod", "type": "pod"},
			Confidence:     1.0,
			Method:         selector.MethodStaticAnnotation,
		}},
		invoker:   &fakeInvoker{},
		approvals: &fakeApprovals{final: approval.StatusApproved},
		outcomes:  &fakeOutcomes{},
		recorder:  &fakeRecorder{},
		notifier:  &fakeNotifier{},
		filer:     &fakeFiler{},
		cfg: &config.WorkflowConfig{
			OperationMode:           mode,
			MaxRetries:              3,
			Timeout:                 10 * time.Second,
			MaxConcurrent:           2,
			GracefulShutdownTimeout: time.Second,
		},
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
	h.engine = NewEngine(EngineParams{
		Config:    h.cfg,
		Store:     h.store,
		Selector:  h.selector,
		Approvals: h.approvals,
		Invoker:   h.invoker,
		Outcomes:  h.outcomes,
		Tickets:   h.filer,
		Notifier:  h.notifier,
		Memory:    h.recorder,
		Metrics:   h.metrics,
		OwnerPod:  "agent-sre-0",
		Domain:    "sre",
	}, WithRetryBase(time.Millisecond))
	return h
}

func firedEvent(t *testing.T, payload map[string]any) *event.Event {
	t.Helper()
	e := cloudevents.NewEvent()
	e.SetSpecVersion(events.SpecVersion)
	e.SetID("evt-1")
	e.SetType(events.TypeAlertFired)
	e.SetSource("alertmanager")
	require.NoError(t, e.SetData(cloudevents.ApplicationJSON, payload))
	return &e
}

func crashLoopPayload() map[string]any {
	return map[string]any{
		"alertname": "PodCrashLooping",
		"labels":    map[string]any{"namespace": "prod", "pod": "api-0"},
		"annotations": map[string]any{
			"summary": "api-0 is crash looping",
		},
	}
}

func TestEngine_Run_AgenticHappyPath(t *testing.T) {
	h := newHarness(t, config.OperationModeAgentic)

	state, err := h.engine.Run(context.Background(), firedEvent(t, crashLoopPayload()), "corr-1")
	require.NoError(t, err)

	assert.True(t, state.Terminal())
	assert.True(t, state.Success)
	assert.Empty(t, state.Error)
	assert.Equal(t, "PodCrashLooping", state.Alertname)
	assert.Equal(t, "pod-restart", state.LambdaFunction)
	assert.True(t, state.LambdaExecuted)
	assert.Equal(t, 0, state.RetryCount)
	assert.Equal(t, "corr-1", h.invoker.lastCorr)

	// Outcome closed the learning loop and the checkpoint is queryable.
	assert.Equal(t, []bool{true}, h.outcomes.marked)
	require.Len(t, h.recorder.completions, 1)
	assert.True(t, h.recorder.completions[0].Success)

	saved := h.store.state(t, "corr-1")
	assert.Equal(t, StepComplete, saved.Step)
	assert.Equal(t, recordKind, saved.RecordKind)
	assert.Equal(t, 0, h.notifier.count())
}

func TestEngine_Run_RetriesTransientFailure(t *testing.T) {
	h := newHarness(t, config.OperationModeAgentic)
	h.invoker.results = []*lambda.Result{
		{Status: lambda.StatusError, Message: "connection reset"},
		{Status: lambda.StatusSuccess, Message: "restarted"},
	}

	state, err := h.engine.Run(context.Background(), firedEvent(t, crashLoopPayload()), "corr-2")
	require.NoError(t, err)

	assert.True(t, state.Success)
	assert.Equal(t, 1, state.RetryCount)
	assert.Equal(t, 2, h.invoker.callCount())
	assert.Equal(t, []bool{true}, h.outcomes.marked)
}

func TestEngine_Run_RetryBudgetExhausted(t *testing.T) {
	h := newHarness(t, config.OperationModeAgentic)
	h.cfg.MaxRetries = 1
	h.engine = NewEngine(EngineParams{
		Config: h.cfg, Store: h.store, Selector: h.selector, Invoker: h.invoker,
		Outcomes: h.outcomes, Tickets: h.filer, Notifier: h.notifier, Memory: h.recorder,
		Metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}, WithRetryBase(time.Millisecond))
	h.invoker.results = []*lambda.Result{
		{Status: lambda.StatusError, Message: "still broken"},
		{Status: lambda.StatusError, Message: "still broken"},
	}

	state, err := h.engine.Run(context.Background(), firedEvent(t, crashLoopPayload()), "corr-3")
	require.NoError(t, err)

	assert.True(t, state.Failed())
	assert.False(t, state.Success)
	assert.Contains(t, state.Error, "failed after 1 retries")
	assert.Equal(t, 2, h.invoker.callCount())
	assert.Equal(t, 1, h.notifier.count())
	require.Len(t, h.recorder.errorPatterns, 1)
	assert.Equal(t, string(apperrors.KindTransport), h.recorder.errorPatterns[0].ErrorType)
	assert.Empty(t, h.filer.tickets, "transient failures do not file tickets")
}

func TestEngine_Run_UnreachableLambdaFilesTicket(t *testing.T) {
	h := newHarness(t, config.OperationModeAgentic)
	h.invoker.errs = []error{
		apperrors.Unavailable("lambda.probe", errors.New("health probe failed")),
	}

	state, err := h.engine.Run(context.Background(), firedEvent(t, crashLoopPayload()), "corr-4")
	require.NoError(t, err)

	assert.True(t, state.Failed())
	assert.Equal(t, 1, h.invoker.callCount(), "unreachable lambdas are not retried")
	require.Len(t, h.filer.tickets, 1)
	assert.True(t, h.filer.tickets[0].CannotFix)
	assert.Equal(t, "pod-restart", h.filer.tickets[0].LambdaFunction)
	assert.Equal(t, 1, h.notifier.count())
}

func TestEngine_Run_SelectionFailureIsTerminal(t *testing.T) {
	h := newHarness(t, config.OperationModeAgentic)
	h.selector.err = fmt.Errorf("selecting remediation for PodCrashLooping: %w", apperrors.ErrSelectionFailed)

	state, err := h.engine.Run(context.Background(), firedEvent(t, crashLoopPayload()), "corr-5")
	require.NoError(t, err)

	assert.True(t, state.Failed())
	assert.Equal(t, apperrors.ErrSelectionFailed.Error(), state.Error)
	assert.Equal(t, 0, h.invoker.callCount())
	assert.Equal(t, 1, h.notifier.count())
}

func TestEngine_Run_SupervisedApproved(t *testing.T) {
	h := newHarness(t, config.OperationModeSupervised)
	h.approvals.final = approval.StatusApproved
	h.approvals.decidedBy = "bruno"

	state, err := h.engine.Run(context.Background(), firedEvent(t, crashLoopPayload()), "corr-6")
	require.NoError(t, err)

	assert.True(t, state.Success)
	assert.Equal(t, string(approval.StatusApproved), state.ApprovalStatus)
	assert.Equal(t, "req-test", state.ApprovalRequestID)
	assert.Equal(t, 1, h.invoker.callCount())

	require.NotNil(t, h.approvals.requested)
	assert.Equal(t, "pod-restart", h.approvals.requested.LambdaFunction)
	assert.Equal(t, "corr-6", h.approvals.requested.CorrelationID)
}

func TestEngine_Run_SupervisedRejected(t *testing.T) {
	h := newHarness(t, config.OperationModeSupervised)
	h.approvals.final = approval.StatusRejected
	h.approvals.decidedBy = "bruno"

	state, err := h.engine.Run(context.Background(), firedEvent(t, crashLoopPayload()), "corr-7")
	require.NoError(t, err)

	assert.True(t, state.Failed())
	assert.Contains(t, state.Error, "approval rejected by bruno")
	assert.Equal(t, 0, h.invoker.callCount())
	assert.Equal(t, 1, h.notifier.count())
}

func TestEngine_Run_SupervisedTimeout(t *testing.T) {
	h := newHarness(t, config.OperationModeSupervised)
	h.approvals.final = approval.StatusTimeout

	state, err := h.engine.Run(context.Background(), firedEvent(t, crashLoopPayload()), "corr-8")
	require.NoError(t, err)

	assert.True(t, state.Failed())
	assert.Contains(t, state.Error, "timed out")
	assert.Equal(t, 0, h.invoker.callCount())
}

func TestEngine_Run_ResumeSkipsExecutedLambda(t *testing.T) {
	h := newHarness(t, config.OperationModeAgentic)

	checkpoint := &State{
		RecordKind:       recordKind,
		CorrelationID:    "corr-9",
		Alertname:        "PodCrashLooping",
		Labels:           map[string]string{"namespace": "prod"},
		LambdaFunction:   "pod-restart",
		LambdaParameters: map[string]any{"name": "api"},
		LambdaExecuted:   true,
		RemediationResult: &lambda.Result{
			Status: lambda.StatusSuccess, Message: "restarted",
		},
		OperationMode: config.OperationModeAgentic,
		MaxRetries:    3,
		Step:          StepExecute,
		StartedAt:     time.Now().UTC().Add(-time.Minute),
	}
	entry, err := memory.NewEntry(stateID("corr-9"), memory.TypeWorking, "agent-sre-0", checkpoint)
	require.NoError(t, err)
	require.NoError(t, h.store.SaveEntry(context.Background(), entry))

	state, err := h.engine.Run(context.Background(), firedEvent(t, crashLoopPayload()), "corr-9")
	require.NoError(t, err)

	assert.True(t, state.Success)
	assert.Equal(t, 0, h.invoker.callCount(), "resumed workflow must not re-invoke")
	assert.Equal(t, 0, h.selector.calls, "selection is preserved from the checkpoint")
}

func TestEngine_Run_CompletedCheckpointIsIdempotent(t *testing.T) {
	h := newHarness(t, config.OperationModeAgentic)

	checkpoint := &State{
		RecordKind:    recordKind,
		CorrelationID: "corr-10",
		Alertname:     "PodCrashLooping",
		Success:       true,
		Step:          StepComplete,
	}
	entry, err := memory.NewEntry(stateID("corr-10"), memory.TypeWorking, "agent-sre-0", checkpoint)
	require.NoError(t, err)
	require.NoError(t, h.store.SaveEntry(context.Background(), entry))

	state, err := h.engine.Run(context.Background(), firedEvent(t, crashLoopPayload()), "corr-10")
	require.NoError(t, err)

	assert.True(t, state.Success)
	assert.Equal(t, 0, h.selector.calls)
	assert.Equal(t, 0, h.invoker.callCount())
}

func TestEngine_Run_BudgetExhaustedFailsWithTimeout(t *testing.T) {
	h := newHarness(t, config.OperationModeAgentic)
	h.cfg.Timeout = time.Nanosecond

	state, err := h.engine.Run(context.Background(), firedEvent(t, crashLoopPayload()), "corr-11")
	require.NoError(t, err)

	assert.True(t, state.Failed())
	assert.Equal(t, apperrors.ErrWorkflowTimeout.Error(), state.Error)
	assert.Equal(t, 1, h.notifier.count())
}

func TestEngine_Run_TaskSchemaLifecycle(t *testing.T) {
	h := newHarness(t, config.OperationModeAgentic)
	factory := domain.NewFactory(h.store, "agent-sre", "sre", "sre")
	h.engine = NewEngine(EngineParams{
		Config: h.cfg, Store: h.store, Selector: h.selector, Invoker: h.invoker,
		Outcomes: h.outcomes, Tickets: h.filer, Notifier: h.notifier, Memory: h.recorder,
		Tasks:   factory,
		Metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}, WithRetryBase(time.Millisecond))

	state, err := h.engine.Run(context.Background(), firedEvent(t, crashLoopPayload()), "corr-task")
	require.NoError(t, err)
	require.True(t, state.Success)

	require.Len(t, h.store.schemas, 1)
	for _, schema := range h.store.schemas {
		assert.Equal(t, "corr-task", schema.SessionID)
		for _, goal := range schema.Goals {
			assert.True(t, goal.Status.Terminal(), "goal %q not terminal", goal.Description)
		}
		assert.Equal(t, schema.Progress.StepsTotal, schema.Progress.StepsCompleted)

		var summaries int
		for _, artifact := range schema.Artifacts {
			if artifact.Name == "completion_summary" {
				summaries++
			}
		}
		assert.Equal(t, 1, summaries)
	}
}

func TestEngine_Run_TaskSchemaFailureRecord(t *testing.T) {
	h := newHarness(t, config.OperationModeAgentic)
	factory := domain.NewFactory(h.store, "agent-sre", "sre", "sre")
	h.selector.err = fmt.Errorf("selecting remediation: %w", apperrors.ErrSelectionFailed)
	h.engine = NewEngine(EngineParams{
		Config: h.cfg, Store: h.store, Selector: h.selector, Invoker: h.invoker,
		Tickets: h.filer, Notifier: h.notifier,
		Tasks:   factory,
		Metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}, WithRetryBase(time.Millisecond))

	state, err := h.engine.Run(context.Background(), firedEvent(t, crashLoopPayload()), "corr-taskfail")
	require.NoError(t, err)
	require.True(t, state.Failed())

	require.Len(t, h.store.schemas, 1)
	for _, schema := range h.store.schemas {
		assert.Equal(t, "failed", schema.State.CurrentStep)
		assert.NotEmpty(t, schema.State.LastError)

		var failures int
		for _, artifact := range schema.Artifacts {
			if artifact.Name == "failure_record" {
				failures++
			}
		}
		assert.Equal(t, 1, failures)
	}
}

func TestTrustVerifier(t *testing.T) {
	v := TrustVerifier{}

	got, err := v.Verify(context.Background(), &State{
		RemediationResult: &lambda.Result{Status: lambda.StatusSuccess},
	})
	require.NoError(t, err)
	assert.True(t, got.Verified)

	got, err = v.Verify(context.Background(), &State{
		RemediationResult: &lambda.Result{Status: lambda.StatusError},
	})
	require.NoError(t, err)
	assert.False(t, got.Verified)

	got, err = v.Verify(context.Background(), &State{})
	require.NoError(t, err)
	assert.False(t, got.Verified)
}
