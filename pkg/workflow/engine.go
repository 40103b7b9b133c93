package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudevents/sdk-go/v2/event"

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

// Selector picks the remediation. *selector.Selector implements it.
type Selector interface {
	Select(ctx context.Context, a *alert.Alert) (*selector.Selection, error)
}

// Invoker executes lambda functions. *lambda.Invoker implements it.
type Invoker interface {
	Invoke(ctx context.Context, function string, parameters map[string]any, correlationID string) (*lambda.Result, error)
}

// Approvals gates supervised execution. *approval.Manager implements it.
type Approvals interface {
	RequestApproval(ctx context.Context, req *approval.Request) (*approval.Request, error)
	Await(ctx context.Context, requestID string) (*approval.Request, error)
}

// Verifier checks whether the remediation actually worked.
type Verifier interface {
	Verify(ctx context.Context, state *State) (*VerificationResult, error)
}

// TrustVerifier is the minimal verification contract: trust the lambda's
// reported status. A metrics-polling verifier can replace it.
type TrustVerifier struct{}

// Verify trusts the remediation result.
func (TrustVerifier) Verify(_ context.Context, state *State) (*VerificationResult, error) {
	verified := state.RemediationResult != nil && state.RemediationResult.Succeeded()
	return &VerificationResult{Verified: verified, AlertResolved: verified}, nil
}

// Outcomes closes the learning loop. *examples.Index implements it.
type Outcomes interface {
	MarkOutcome(ctx context.Context, a *alert.Alert, success bool) error
}

// Store checkpoints workflow state. The memory manager implements it.
type Store interface {
	SaveEntry(ctx context.Context, entry *memory.Entry) error
	GetEntry(ctx context.Context, id string, t memory.Type) (*memory.Entry, error)
	QueryEntries(ctx context.Context, q memory.Query) ([]*memory.Entry, error)
}

// Recorder feeds task outcomes into domain memory. The memory manager
// implements it.
type Recorder interface {
	RecordTaskCompletion(ctx context.Context, domain, taskID, summary string, success bool) error
	RecordErrorPattern(ctx context.Context, domain, errorType, description, mitigation string) error
}

// FailureNotifier delivers terminal failure notices. *slack.Notifier
// implements it.
type FailureNotifier interface {
	NotifyTerminalFailure(ctx context.Context, in slack.FailureMessageInput)
}

// EngineParams wires an Engine. Store, Approvals, Outcomes, Memory, and
// Notifier may be nil; Tickets defaults to the logging no-op filer and
// Verifier to TrustVerifier.
type EngineParams struct {
	Config    *config.WorkflowConfig
	Store     Store
	Selector  Selector
	Approvals Approvals
	Invoker   Invoker
	Verifier  Verifier
	Outcomes  Outcomes
	Tickets   ticket.Filer
	Notifier  FailureNotifier
	Memory    Recorder
	Tasks     *domain.Factory
	Metrics   *observability.Metrics
	OwnerPod  string
	Domain    string
}

// Engine executes one workflow per call. It owns no cross-workflow state;
// concurrency control lives in the Dispatcher.
type Engine struct {
	cfg       *config.WorkflowConfig
	store     Store
	selector  Selector
	approvals Approvals
	invoker   Invoker
	verifier  Verifier
	outcomes  Outcomes
	tickets   ticket.Filer
	notifier  FailureNotifier
	memory    Recorder
	tasks     *domain.Factory
	metrics   *observability.Metrics
	ownerPod  string
	domain    string
	retryBase time.Duration
}

// EngineOption tweaks engine internals.
type EngineOption func(*Engine)

// WithRetryBase overrides the retry backoff base, used by tests.
func WithRetryBase(d time.Duration) EngineOption {
	return func(e *Engine) { e.retryBase = d }
}

// NewEngine creates a workflow engine.
func NewEngine(p EngineParams, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:       p.Config,
		store:     p.Store,
		selector:  p.Selector,
		approvals: p.Approvals,
		invoker:   p.Invoker,
		verifier:  p.Verifier,
		outcomes:  p.Outcomes,
		tickets:   p.Tickets,
		notifier:  p.Notifier,
		memory:    p.Memory,
		tasks:     p.Tasks,
		metrics:   p.Metrics,
		ownerPod:  p.OwnerPod,
		domain:    p.Domain,
		retryBase: time.Second,
	}
	if e.verifier == nil {
		e.verifier = TrustVerifier{}
	}
	if e.tickets == nil {
		e.tickets = ticket.NopFiler{}
	}
	if e.domain == "" {
		e.domain = "sre"
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the workflow for one alert event under the overall budget.
// A previously checkpointed run with the same correlation ID is resumed
// idempotently: a completed run is returned as-is, and an already-executed
// lambda is never invoked again.
func (e *Engine) Run(ctx context.Context, ev *event.Event, correlationID string) (*State, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	log := observability.Logger(ctx)

	state, _ := e.loadCheckpoint(ctx, correlationID)
	if state != nil && state.Terminal() {
		log.Info("Workflow already complete, returning checkpointed state",
			"step", state.Step, "success", state.Success)
		return state, nil
	}
	if state == nil {
		payload, err := events.Data(ev)
		if err != nil {
			return nil, err
		}
		state = &State{
			RecordKind:    recordKind,
			OwnerPod:      e.ownerPod,
			EventData:     payload,
			EventType:     ev.Type(),
			EventID:       ev.ID(),
			CorrelationID: correlationID,
			OperationMode: e.cfg.OperationMode,
			MaxRetries:    e.cfg.MaxRetries,
			Step:          StepReceive,
			StartedAt:     time.Now().UTC(),
		}
	} else {
		log.Info("Resuming checkpointed workflow",
			"step", state.Step, "lambda_executed", state.LambdaExecuted)
	}

	var trace *observability.RemediationTrace
	if e.metrics != nil {
		ctx, trace = e.metrics.TraceRemediation(ctx, state.Alertname, state.LambdaFunction, correlationID)
	}

	var schema *memory.DomainMemorySchema

	for !state.Terminal() {
		if err := ctx.Err(); err != nil {
			state.Error = apperrors.ErrWorkflowTimeout.Error()
			e.completeFailure(context.WithoutCancel(ctx), state, schema, trace)
			return state, nil
		}

		step := state.Step
		var err error
		switch step {
		case StepReceive:
			state.Step = StepExtract
		case StepExtract:
			err = e.extract(ctx, state)
		case StepSelect:
			err = e.selectFunction(ctx, state, trace)
		case StepRequestApproval:
			err = e.requestApproval(ctx, state)
		case StepWaitApproval:
			err = e.waitForApproval(ctx, state)
		case StepExecute:
			err = e.execute(ctx, state)
		case StepVerify:
			err = e.verify(ctx, state)
		default:
			err = apperrors.Newf(apperrors.KindWorkflow, "workflow.run", "unknown step %q", step)
		}

		if err != nil {
			e.countStep(step, "error")
			state.Error = err.Error()
			e.handleTerminalError(context.WithoutCancel(ctx), state, err)
			e.completeFailure(context.WithoutCancel(ctx), state, schema, trace)
			return state, nil
		}
		e.countStep(step, "ok")
		if step == StepExtract {
			schema = e.initTask(ctx, state)
		}
		e.checkpoint(ctx, state)
	}

	e.completeSuccess(context.WithoutCancel(ctx), state, schema, trace)
	return state, nil
}

// initTask opens the per-alert task schema via the domain factory.
func (e *Engine) initTask(ctx context.Context, state *State) *memory.DomainMemorySchema {
	if e.tasks == nil {
		return nil
	}
	schema, err := e.tasks.Initialize(ctx, domain.InitRequest{
		Request:   fmt.Sprintf("remediate alert %s", state.Alertname),
		SessionID: state.CorrelationID,
		Context: map[string]any{
			"alertname":      state.Alertname,
			"correlation_id": state.CorrelationID,
		},
	})
	if err != nil {
		observability.Logger(ctx).Warn("Failed to open task schema", "error", err)
		return nil
	}
	return schema
}

// extract normalizes the event payload into the alert fields.
func (e *Engine) extract(ctx context.Context, state *State) error {
	a := alert.FromPayload(state.EventData)
	state.Alertname = a.Alertname
	state.Labels = a.Labels
	state.Annotations = a.Annotations

	observability.Logger(ctx).Info("Alert extracted",
		"alertname", state.Alertname, "labels", len(state.Labels))
	state.Step = StepSelect
	return nil
}

// selectFunction runs the selector pipeline and routes by operation mode.
func (e *Engine) selectFunction(ctx context.Context, state *State, trace *observability.RemediationTrace) error {
	if state.LambdaFunction == "" {
		sel, err := e.selector.Select(ctx, state.Alert())
		if err != nil {
			if errors.Is(err, apperrors.ErrSelectionFailed) {
				return apperrors.ErrSelectionFailed
			}
			return err
		}
		state.LambdaFunction = sel.LambdaFunction
		state.LambdaParameters = sel.Parameters
		state.Confidence = sel.Confidence
		state.Method = sel.Method
		state.Reasoning = sel.Reasoning
		trace.SetLambdaFunction(sel.LambdaFunction)
	}

	if state.OperationMode == config.OperationModeSupervised && e.approvals != nil {
		state.Step = StepRequestApproval
	} else {
		state.Step = StepExecute
	}
	return nil
}

// requestApproval opens the approval gate.
func (e *Engine) requestApproval(ctx context.Context, state *State) error {
	req, err := e.approvals.RequestApproval(ctx, &approval.Request{
		CorrelationID:  state.CorrelationID,
		Alertname:      state.Alertname,
		LambdaFunction: state.LambdaFunction,
		Parameters:     state.LambdaParameters,
		Confidence:     state.Confidence,
		Method:         state.Method,
	})
	if err != nil {
		return err
	}
	state.ApprovalRequestID = req.RequestID
	state.ApprovalStatus = string(req.Status)
	state.Step = StepWaitApproval
	return nil
}

// waitForApproval blocks until the gate settles, then routes on the
// decision. Anything but approval is terminal.
func (e *Engine) waitForApproval(ctx context.Context, state *State) error {
	req, err := e.approvals.Await(ctx, state.ApprovalRequestID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperrors.ErrWorkflowTimeout
		}
		return err
	}
	state.ApprovalStatus = string(req.Status)

	switch req.Status {
	case approval.StatusApproved:
		state.Step = StepExecute
		return nil
	case approval.StatusRejected:
		return apperrors.Newf(apperrors.KindAuthorization, "workflow.approval",
			"approval rejected by %s", orUnknown(req.DecidedBy))
	case approval.StatusTimeout:
		return apperrors.Newf(apperrors.KindAuthorization, "workflow.approval",
			"approval timed out after %s", time.Since(req.CreatedAt).Round(time.Second))
	default:
		return apperrors.Newf(apperrors.KindAuthorization, "workflow.approval",
			"approval %s", req.Status)
	}
}

// execute invokes the lambda with retry on transient error results. An
// already-executed resume skips straight to verification.
func (e *Engine) execute(ctx context.Context, state *State) error {
	if state.LambdaExecuted && state.RemediationResult != nil {
		state.Step = StepVerify
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.retryBase
	policy.Multiplier = 2
	policy.RandomizationFactor = 0.2
	policy.MaxElapsedTime = 0

	for {
		result, err := e.invoker.Invoke(ctx, state.LambdaFunction, state.LambdaParameters, state.CorrelationID)
		if err != nil {
			// Probe failures are cannot-fix: terminal, no retry.
			return err
		}

		state.RemediationResult = result
		state.LambdaExecuted = true
		if result.Succeeded() {
			state.Step = StepVerify
			return nil
		}

		if state.RetryCount >= state.MaxRetries {
			return apperrors.Newf(apperrors.KindTransport, "workflow.execute",
				"lambda %s failed after %d retries: %s",
				state.LambdaFunction, state.RetryCount, result.Message)
		}
		state.RetryCount++
		e.checkpoint(ctx, state)

		observability.Logger(ctx).Warn("Lambda invocation failed, retrying",
			"lambda_function", state.LambdaFunction,
			"retry_count", state.RetryCount,
			"message", result.Message)

		select {
		case <-ctx.Done():
			return apperrors.ErrWorkflowTimeout
		case <-time.After(policy.NextBackOff()):
		}
	}
}

// verify applies the verifier and closes the learning loop.
func (e *Engine) verify(ctx context.Context, state *State) error {
	v, err := e.verifier.Verify(ctx, state)
	if err != nil {
		return err
	}
	state.VerificationResult = v
	state.Success = v.Verified

	if e.outcomes != nil {
		if err := e.outcomes.MarkOutcome(ctx, state.Alert(), state.Success); err != nil {
			observability.Logger(ctx).Warn("Failed to patch example outcome", "error", err)
		}
	}
	state.Step = StepComplete
	return nil
}

// completeSuccess finalizes a successful run.
func (e *Engine) completeSuccess(ctx context.Context, state *State, schema *memory.DomainMemorySchema, trace *observability.RemediationTrace) {
	state.Step = StepComplete
	e.checkpoint(ctx, state)
	trace.End("success")

	observability.Logger(ctx).Info("Remediation workflow complete",
		"lambda_function", state.LambdaFunction,
		"method", state.Method,
		"confidence", state.Confidence,
		"retry_count", state.RetryCount,
		"success", state.Success)

	summary := fmt.Sprintf("%s remediated by %s (%s)", state.Alertname, state.LambdaFunction, state.Method)
	if e.memory != nil {
		if err := e.memory.RecordTaskCompletion(ctx, e.domain, state.CorrelationID, summary, state.Success); err != nil {
			observability.Logger(ctx).Warn("Failed to record task completion", "error", err)
		}
	}
	if schema == nil {
		schema = e.initTask(ctx, state)
	}
	if schema != nil {
		schema.AddDecision(
			fmt.Sprintf("selected %s", state.LambdaFunction),
			fmt.Sprintf("method=%s confidence=%.2f", state.Method, state.Confidence))
		var learnings []string
		if state.Reasoning != "" {
			learnings = append(learnings, state.Reasoning)
		}
		if err := e.tasks.Complete(ctx, schema, summary, state.Success, learnings); err != nil {
			observability.Logger(ctx).Warn("Failed to complete task schema", "error", err)
		}
	}
}

// completeFailure finalizes a terminal failure: checkpoint, ERROR log,
// error-status metric, and external notification, then HTTP 200 upstream,
// because the event has been processed even though the remediation failed.
func (e *Engine) completeFailure(ctx context.Context, state *State, schema *memory.DomainMemorySchema, trace *observability.RemediationTrace) {
	state.Step = StepComplete
	state.Success = false
	e.checkpoint(ctx, state)
	trace.End("error")

	observability.Logger(ctx).Error("Remediation workflow failed",
		"alertname", state.Alertname,
		"lambda_function", state.LambdaFunction,
		"step_error", state.Error,
		"retry_count", state.RetryCount)

	if e.notifier != nil {
		e.notifier.NotifyTerminalFailure(ctx, slack.FailureMessageInput{
			CorrelationID:  state.CorrelationID,
			Alertname:      state.Alertname,
			LambdaFunction: state.LambdaFunction,
			Error:          state.Error,
		})
	}
	summary := fmt.Sprintf("%s remediation failed: %s", state.Alertname, state.Error)
	if e.memory != nil {
		if err := e.memory.RecordTaskCompletion(ctx, e.domain, state.CorrelationID, summary, false); err != nil {
			observability.Logger(ctx).Warn("Failed to record task completion", "error", err)
		}
	}
	if schema == nil {
		schema = e.initTask(ctx, state)
	}
	if schema != nil {
		if err := e.tasks.Fail(ctx, schema, errors.New(state.Error), false); err != nil {
			observability.Logger(ctx).Warn("Failed to record task failure", "error", err)
		}
	}
}

// handleTerminalError files tickets and error patterns for the failure
// classes that warrant them.
func (e *Engine) handleTerminalError(ctx context.Context, state *State, err error) {
	if apperrors.IsCannotFix(err) {
		if ferr := e.tickets.File(ctx, ticket.Ticket{
			CorrelationID:  state.CorrelationID,
			Alertname:      state.Alertname,
			LambdaFunction: state.LambdaFunction,
			Error:          err.Error(),
			CannotFix:      true,
		}); ferr != nil {
			observability.Logger(ctx).Warn("Failed to file failure ticket", "error", ferr)
		}
	}

	if e.memory != nil && apperrors.KindOf(err) != "" {
		if rerr := e.memory.RecordErrorPattern(ctx, e.domain, string(apperrors.KindOf(err)),
			fmt.Sprintf("%s: %s", state.Alertname, err.Error()), ""); rerr != nil {
			observability.Logger(ctx).Warn("Failed to record error pattern", "error", rerr)
		}
	}
}

// checkpoint persists the state record keyed by correlation ID.
func (e *Engine) checkpoint(ctx context.Context, state *State) {
	if e.store == nil {
		return
	}
	state.UpdatedAt = time.Now().UTC()
	entry, err := memory.NewEntry(stateID(state.CorrelationID), memory.TypeWorking, e.ownerPod, state)
	if err == nil {
		err = e.store.SaveEntry(ctx, entry)
	}
	if err != nil {
		observability.Logger(ctx).Warn("Failed to checkpoint workflow state",
			"step", state.Step, "error", err)
	}
}

// loadCheckpoint returns a previously persisted state, if any.
func (e *Engine) loadCheckpoint(ctx context.Context, correlationID string) (*State, bool) {
	if e.store == nil {
		return nil, false
	}
	entry, err := e.store.GetEntry(ctx, stateID(correlationID), memory.TypeWorking)
	if err != nil {
		return nil, false
	}
	state := &State{}
	if err := entry.Decode(state); err != nil {
		observability.Logger(ctx).Warn("Discarding undecodable workflow checkpoint", "error", err)
		return nil, false
	}
	return state, true
}

func (e *Engine) countStep(step Step, status string) {
	if e.metrics != nil {
		e.metrics.WorkflowSteps.WithLabelValues(string(step), status).Inc()
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
