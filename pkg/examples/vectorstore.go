package examples

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/brunovlucena/homelab-sub000/pkg/alert"
)

// MaxEmbeddings bounds the vector store; least-recently-added entries are
// evicted first.
const MaxEmbeddings = 5000

// AlertEmbedding is an example augmented with its embedding vector.
type AlertEmbedding struct {
	RemediationExample
	Embedding []float32 `json:"embedding"`
}

// VectorStore is the in-memory bounded embedding index used for
// retrieval-augmented selection.
type VectorStore struct {
	embedder Embedder

	mu      sync.RWMutex
	entries []AlertEmbedding
}

// NewVectorStore creates a store over the given embedder; nil falls back
// to the deterministic hash embedder.
func NewVectorStore(embedder Embedder) *VectorStore {
	if embedder == nil {
		embedder = HashEmbedder{}
	}
	return &VectorStore{embedder: embedder}
}

// Len returns the number of stored embeddings.
func (vs *VectorStore) Len() int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return len(vs.entries)
}

// embedText renders the query text handed to the embedder.
func embedText(alertname string, labels map[string]string) string {
	return alertname + "\n" + alert.CanonicalLabels(labels)
}

// Add embeds the example and stores it, evicting the oldest entry beyond
// the bound.
func (vs *VectorStore) Add(ctx context.Context, example RemediationExample) error {
	vec, err := vs.embedder.Embed(ctx, embedText(example.Alertname, example.Labels))
	if err != nil {
		return fmt.Errorf("failed to embed example %s: %w", example.Alertname, err)
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()

	vs.entries = append(vs.entries, AlertEmbedding{RemediationExample: example, Embedding: vec})
	if len(vs.entries) > MaxEmbeddings {
		vs.entries = vs.entries[len(vs.entries)-MaxEmbeddings:]
	}
	return nil
}

// MarkOutcome patches the success flag of the most recent pending entry
// matching the alert identity.
func (vs *VectorStore) MarkOutcome(alertname string, labels map[string]string, success bool) bool {
	id := (&RemediationExample{Alertname: alertname, Labels: labels}).ID()

	vs.mu.Lock()
	defer vs.mu.Unlock()

	for i := len(vs.entries) - 1; i >= 0; i-- {
		e := &vs.entries[i]
		if e.Success == nil && e.ID() == id {
			e.Success = &success
			return true
		}
	}
	return false
}

// SimilaritySearch returns the top-k stored examples whose embedding cosine
// similarity to the query meets the threshold, best first, newest on tie.
func (vs *VectorStore) SimilaritySearch(ctx context.Context, q SimilarQuery) ([]ScoredExample, error) {
	if q.TopK <= 0 {
		q.TopK = 3
	}

	queryVec, err := vs.embedder.Embed(ctx, embedText(q.Alertname, q.Labels))
	if err != nil {
		return nil, fmt.Errorf("failed to embed query %s: %w", q.Alertname, err)
	}

	vs.mu.RLock()
	defer vs.mu.RUnlock()

	scored := make([]ScoredExample, 0, len(vs.entries))
	for _, e := range vs.entries {
		if q.OnlySuccessful && !e.Succeeded() {
			continue
		}
		s := CosineSimilarity(queryVec, e.Embedding)
		if s < q.MinSimilarity {
			continue
		}
		scored = append(scored, ScoredExample{Example: e.RemediationExample, Similarity: s})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Example.Timestamp.After(scored[j].Example.Timestamp)
	})
	if len(scored) > q.TopK {
		scored = scored[:q.TopK]
	}
	return scored, nil
}
