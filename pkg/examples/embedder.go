package examples

import (
	"context"
	"crypto/sha256"
	"math"
)

// Embedder turns an alert description into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// HashDimension is the fallback embedding width.
const HashDimension = 128

// HashEmbedder is the deterministic fallback when no semantic embedding
// model is configured: a 128-dim hash-bit vector over the input tokens.
// Non-semantic: identical inputs collide perfectly, similar inputs do not
// score as near; it only gives the vector store stable, comparable keys.
type HashEmbedder struct{}

// Embed hashes the text into sign bits and L2-normalizes the result.
func (HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))

	vec := make([]float32, HashDimension)
	// Expand the 256-bit digest into 128 signed components, two bits each.
	for i := 0; i < HashDimension; i++ {
		byteIdx := (i * 2) / 8
		shift := uint((i * 2) % 8)
		bits := (sum[byteIdx] >> shift) & 0b11
		vec[i] = float32(bits) - 1.5
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// Dimension returns the fallback embedding width.
func (HashEmbedder) Dimension() int { return HashDimension }

// CosineSimilarity computes the cosine of two vectors; zero when the
// dimensions differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
