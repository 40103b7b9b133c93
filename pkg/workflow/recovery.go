package workflow

import (
	"context"
	"time"

	"github.com/brunovlucena/homelab-sub000/pkg/memory"
	"github.com/brunovlucena/homelab-sub000/pkg/observability"
	"github.com/brunovlucena/homelab-sub000/pkg/slack"
)

// RecoverOrphans scans checkpointed workflow state at startup and marks
// every non-terminal record as failed. A checkpoint that is still mid-flight
// when a pod starts means its owner died without finishing; the lambda may
// or may not have run, so the safe move is to fail the workflow, notify, and
// let the operator re-fire the alert. Returns the number of orphans marked.
func (e *Engine) RecoverOrphans(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	log := observability.Logger(ctx)

	entries, err := e.store.QueryEntries(ctx, memory.Query{
		Type:    memory.TypeWorking,
		Filters: map[string]string{"record_kind": recordKind},
	})
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, entry := range entries {
		state := &State{}
		if err := entry.Decode(state); err != nil {
			log.Warn("Skipping undecodable workflow checkpoint", "entry_id", entry.ID, "error", err)
			continue
		}
		if state.Terminal() {
			continue
		}

		log.Warn("Marking orphaned workflow as failed",
			"correlation_id", state.CorrelationID,
			"alertname", state.Alertname,
			"step", state.Step,
			"owner_pod", state.OwnerPod,
			"lambda_executed", state.LambdaExecuted)

		state.Error = "orphaned_by_restart"
		state.Step = StepComplete
		state.Success = false
		state.UpdatedAt = time.Now().UTC()

		saved, err := memory.NewEntry(stateID(state.CorrelationID), memory.TypeWorking, e.ownerPod, state)
		if err == nil {
			err = e.store.SaveEntry(ctx, saved)
		}
		if err != nil {
			log.Warn("Failed to persist orphan state", "correlation_id", state.CorrelationID, "error", err)
			continue
		}

		if e.notifier != nil {
			e.notifier.NotifyTerminalFailure(ctx, slack.FailureMessageInput{
				CorrelationID:  state.CorrelationID,
				Alertname:      state.Alertname,
				LambdaFunction: state.LambdaFunction,
				Error:          "workflow orphaned by pod restart",
			})
		}
		marked++
	}

	if marked > 0 {
		log.Info("Orphan recovery complete", "orphans_marked", marked, "checkpoints_scanned", len(entries))
	}
	return marked, nil
}
