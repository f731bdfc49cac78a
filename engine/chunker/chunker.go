// Package chunker splits filing section text into overlapping fixed-size
// windows and extracts standard filing sections from raw text. Everything in
// this package is a pure function of its inputs.
package chunker

import (
	"fmt"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 1000
	// DefaultOverlap is the character overlap between consecutive chunks.
	DefaultOverlap = 200
)

// Windower carves section text into overlapping windows.
type Windower struct {
	size    int
	overlap int
}

// New creates a Windower. overlap must satisfy 0 <= overlap < size.
func New(size, overlap int) (*Windower, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunker: overlap %d must be in [0, %d)", overlap, size)
	}
	return &Windower{size: size, overlap: overlap}, nil
}

// Size returns the configured window length.
func (w *Windower) Size() int { return w.size }

// Overlap returns the configured overlap length.
func (w *Windower) Overlap() int { return w.overlap }

// Chunk slides a window of size characters across text, advancing by
// size-overlap each step. Every chunk inherits meta unchanged. Empty input
// produces an empty slice. When the text remaining past a window is shorter
// than the overlap, it is merged into that window instead of becoming a
// degenerate trailing chunk. Chunk IDs are 0-based within this call; the
// ingestion layer renumbers them per document.
func (w *Windower) Chunk(text string, meta domain.ChunkMeta) []domain.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := w.size - w.overlap
	var chunks []domain.Chunk

	for start := 0; start < len(runes); start += step {
		end := start + w.size
		if end > len(runes) {
			end = len(runes)
		}
		if len(runes)-end < w.overlap {
			end = len(runes)
		}
		chunks = append(chunks, domain.Chunk{
			ID:    len(chunks),
			Start: start,
			Text:  string(runes[start:end]),
			Meta:  meta,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}
