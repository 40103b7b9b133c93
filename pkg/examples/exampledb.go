package examples

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// MaxExamples bounds the database; the oldest entries by timestamp are
// evicted first.
const MaxExamples = 1000

// Scoring weights: exact alertname match dominates, label overlap refines.
const (
	alertnameWeight = 0.6
	labelWeight     = 0.4

	// keyBonus is added per matching key from the bonus set before
	// normalization; those keys identify the remediation target.
	keyBonus = 0.5
)

// bonusKeys are the labels that most strongly identify a comparable incident.
var bonusKeys = map[string]bool{"alertname": true, "namespace": true, "kind": true}

// ExampleDB is the JSON-file-backed example store. All writes overwrite a
// single file; a file-scoped mutex serializes them.
type ExampleDB struct {
	path string

	mu       sync.RWMutex
	examples []RemediationExample
}

// fileFormat is the on-disk layout of the example database.
type fileFormat struct {
	Examples  []RemediationExample `json:"examples"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// NewExampleDB opens (or initializes) the database at path.
func NewExampleDB(path string) (*ExampleDB, error) {
	db := &ExampleDB{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return db, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read example db %s: %w", path, err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode example db %s: %w", path, err)
	}
	db.examples = f.Examples
	return db, nil
}

// Len returns the number of stored examples.
func (db *ExampleDB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.examples)
}

// AddExample appends an example, evicts the oldest beyond MaxExamples, and
// persists atomically.
func (db *ExampleDB) AddExample(example RemediationExample) error {
	if example.Timestamp.IsZero() {
		example.Timestamp = time.Now().UTC()
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.examples = append(db.examples, example)
	if len(db.examples) > MaxExamples {
		sort.SliceStable(db.examples, func(i, j int) bool {
			return db.examples[i].Timestamp.Before(db.examples[j].Timestamp)
		})
		db.examples = db.examples[len(db.examples)-MaxExamples:]
	}

	return db.persistLocked()
}

// MarkOutcome patches the success flag of the most recent pending example
// matching the alert identity. Returns false when no pending example exists.
func (db *ExampleDB) MarkOutcome(alertname string, labels map[string]string, success bool) (bool, error) {
	id := (&RemediationExample{Alertname: alertname, Labels: labels}).ID()

	db.mu.Lock()
	defer db.mu.Unlock()

	for i := len(db.examples) - 1; i >= 0; i-- {
		e := &db.examples[i]
		if e.Success == nil && e.ID() == id {
			e.Success = &success
			return true, db.persistLocked()
		}
	}
	return false, nil
}

// SimilarQuery selects comparable past examples.
type SimilarQuery struct {
	Alertname      string
	Labels         map[string]string
	TopK           int
	MinSimilarity  float64
	OnlySuccessful bool
}

// FindSimilarExamples scores every stored example against the query and
// returns the top-k at or above the similarity threshold, best first.
func (db *ExampleDB) FindSimilarExamples(q SimilarQuery) []ScoredExample {
	if q.TopK <= 0 {
		q.TopK = 5
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	scored := make([]ScoredExample, 0, len(db.examples))
	for _, e := range db.examples {
		if q.OnlySuccessful && !e.Succeeded() {
			continue
		}
		s := Similarity(q.Alertname, q.Labels, e.Alertname, e.Labels)
		if s < q.MinSimilarity {
			continue
		}
		scored = append(scored, ScoredExample{Example: e, Similarity: s})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		// Newest on tie.
		return scored[i].Example.Timestamp.After(scored[j].Example.Timestamp)
	})
	if len(scored) > q.TopK {
		scored = scored[:q.TopK]
	}
	return scored
}

// Similarity scores two alert identities: alertname equality dominates,
// label overlap refines, with a bonus for matches on the target-identifying
// keys (alertname, namespace, kind).
func Similarity(alertname string, labels map[string]string, otherName string, otherLabels map[string]string) float64 {
	score := 0.0
	if alertname == otherName {
		score += alertnameWeight
	}
	score += labelWeight * labelOverlap(labels, otherLabels)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func labelOverlap(a, b map[string]string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	distinct := make(map[string]bool, len(a)+len(b))
	for k := range a {
		distinct[k] = true
	}
	for k := range b {
		distinct[k] = true
	}

	matches := 0.0
	for k, v := range a {
		if b[k] != v {
			continue
		}
		matches++
		if bonusKeys[k] {
			matches += keyBonus
		}
	}

	overlap := matches / float64(len(distinct))
	if overlap > 1.0 {
		overlap = 1.0
	}
	return overlap
}

// persistLocked writes the file atomically: temp file in the same
// directory, then rename. Callers hold db.mu.
func (db *ExampleDB) persistLocked() error {
	data, err := json.MarshalIndent(fileFormat{
		Examples:  db.examples,
		UpdatedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode example db: %w", err)
	}

	dir := filepath.Dir(db.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create example db dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".examples-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp example db: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write example db: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close example db: %w", err)
	}
	if err := os.Rename(tmp.Name(), db.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace example db: %w", err)
	}
	return nil
}
