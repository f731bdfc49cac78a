// Package embed defines the embedding contract used by ingestion and
// retrieval, plus a memoizing cache and a deterministic test embedder.
// Implementations map text to a fixed-dimension vector and must be
// deterministic for a given model version.
package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
)

// MaxTextLength is the character ceiling accepted by Embed. Callers must
// truncate or skip longer inputs; silently embedding a prefix would detach
// the vector from the stored chunk text.
const MaxTextLength = 8192

// Embedder maps text to fixed-dimension vectors.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch is semantically equivalent to mapping Embed over texts but
	// free to batch internally for throughput. Output order matches input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the constant output vector length.
	Dimension() int
}

// CheckText rejects input the contract forbids: empty after normalization,
// or longer than the model ceiling. Returning an error here is mandatory; an
// implementation must never fall back to a zero vector.
func CheckText(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("%w: empty text", domain.ErrEmbedding)
	}
	if len(trimmed) > MaxTextLength {
		return fmt.Errorf("%w: text length %d exceeds limit %d", domain.ErrEmbedding, len(trimmed), MaxTextLength)
	}
	return nil
}
