package examples

import (
	"context"
	"time"

	"github.com/brunovlucena/homelab-sub000/pkg/alert"
	"github.com/brunovlucena/homelab-sub000/pkg/observability"
)

// Index feeds remediation outcomes into both retrieval stores and closes
// the learning loop once verification lands.
type Index struct {
	DB      *ExampleDB
	Vectors *VectorStore
}

// NewIndex wires the two stores together.
func NewIndex(db *ExampleDB, vectors *VectorStore) *Index {
	return &Index{DB: db, Vectors: vectors}
}

// IndexAlert records a selection into both stores. Success is nil at
// selection time and patched by MarkOutcome after verification.
func (ix *Index) IndexAlert(ctx context.Context, a *alert.Alert, lambdaFunction string, parameters map[string]any, success *bool, reasoning string) error {
	example := RemediationExample{
		Alertname:      a.Alertname,
		Labels:         a.Labels,
		LambdaFunction: lambdaFunction,
		Parameters:     parameters,
		Success:        success,
		Timestamp:      time.Now().UTC(),
		Reasoning:      reasoning,
	}

	if err := ix.DB.AddExample(example); err != nil {
		return err
	}
	if err := ix.Vectors.Add(ctx, example); err != nil {
		// The example DB already holds the record; embedding loss only
		// weakens retrieval.
		observability.Logger(ctx).Warn("Failed to index alert embedding",
			"alertname", a.Alertname, "error", err)
	}
	return nil
}

// MarkOutcome patches the pending selection for the alert in both stores.
func (ix *Index) MarkOutcome(ctx context.Context, a *alert.Alert, success bool) error {
	patched, err := ix.DB.MarkOutcome(a.Alertname, a.Labels, success)
	if err != nil {
		return err
	}
	ix.Vectors.MarkOutcome(a.Alertname, a.Labels, success)
	if !patched {
		observability.Logger(ctx).Debug("No pending example to patch",
			"alertname", a.Alertname, "success", success)
	}
	return nil
}
