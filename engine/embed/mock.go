package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Mock is a deterministic in-process embedder for tests and offline runs.
// Vectors are derived from a hash of the text, so identical text always
// produces an identical unit-length vector, and different texts almost
// always differ.
type Mock struct {
	Dim int
	// Fn overrides vector generation when set.
	Fn func(text string) []float32
}

// NewMock creates a Mock with the given dimension.
func NewMock(dim int) *Mock { return &Mock{Dim: dim} }

// Dimension implements Embedder.
func (m *Mock) Dimension() int { return m.Dim }

// Embed implements Embedder.
func (m *Mock) Embed(_ context.Context, text string) ([]float32, error) {
	if err := CheckText(text); err != nil {
		return nil, err
	}
	if m.Fn != nil {
		return m.Fn(text), nil
	}
	return hashVector(text, m.Dim), nil
}

// EmbedBatch implements Embedder.
func (m *Mock) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// hashVector expands a sha256 digest into a unit vector of length dim.
func hashVector(text string, dim int) []float32 {
	seed := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)
	var norm float64
	buf := seed[:]
	for i := 0; i < dim; i++ {
		if len(buf) < 8 {
			next := sha256.Sum256(buf)
			buf = next[:]
		}
		bits := binary.LittleEndian.Uint64(buf[:8])
		buf = buf[8:]
		// Map to [-1, 1).
		v := float64(bits)/float64(math.MaxUint64)*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec
}
