package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/embed"
	"github.com/sohailshk/SEC-Filings-QA-Agent/pkg/fn"
)

// Searcher is the nearest-neighbour index the orchestrator queries. The
// local flat index and the corpus manager both satisfy it.
type Searcher interface {
	Search(vec []float32, k int) ([]domain.Hit, error)
}

// Options tunes the retrieve pipeline.
type Options struct {
	// Oversample multiplies k before the vector search when metadata
	// filters are present, so post-filtering still has enough survivors.
	Oversample int
	// MinOversample is the floor on the oversampled candidate count.
	MinOversample int
	// EmbedTimeout bounds each embedding attempt, not the whole retry loop.
	EmbedTimeout time.Duration
	// Retry governs the embedding retry loop. Only transient failures are
	// retried regardless of what RetryIf is set to here.
	Retry fn.RetryOpts
}

// DefaultOptions are the production retrieval settings.
var DefaultOptions = Options{
	Oversample:    4,
	MinOversample: 20,
	EmbedTimeout:  15 * time.Second,
	Retry: fn.RetryOpts{
		MaxAttempts: 3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Jitter:      true,
	},
}

// Orchestrator turns a natural-language query into ranked, filtered,
// confidence-scored chunks.
type Orchestrator struct {
	embedder embed.Embedder
	searcher Searcher
	opts     Options
	log      *slog.Logger
}

// New creates an orchestrator. A zero Options field falls back to its
// DefaultOptions value.
func New(embedder embed.Embedder, searcher Searcher, opts Options, log *slog.Logger) *Orchestrator {
	if opts.Oversample <= 0 {
		opts.Oversample = DefaultOptions.Oversample
	}
	if opts.MinOversample <= 0 {
		opts.MinOversample = DefaultOptions.MinOversample
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = DefaultOptions.EmbedTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultOptions.Retry
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{embedder: embedder, searcher: searcher, opts: opts, log: log}
}

// Retrieve validates the query, embeds it, searches, filters, and scores.
// The query text is rejected before any embedding work happens, so a blank
// query never costs a model call.
func (o *Orchestrator) Retrieve(ctx context.Context, q domain.Query) (domain.RetrievalResult, error) {
	if err := domain.ValidateQuery(q); err != nil {
		return domain.RetrievalResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.RetrievalResult{}, err
	}

	vec, err := o.embedQuery(ctx, q.Text)
	if err != nil {
		return domain.RetrievalResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.RetrievalResult{}, err
	}

	filter := FromQuery(q)
	candidates := q.K
	if filter != nil {
		candidates = q.K * o.opts.Oversample
		if candidates < o.opts.MinOversample {
			candidates = o.opts.MinOversample
		}
	}

	hits, err := o.searcher.Search(vec, candidates)
	if err != nil {
		return domain.RetrievalResult{}, err
	}

	scored := make([]domain.Scored, 0, q.K)
	for _, h := range hits {
		if filter != nil && !filter.Match(h.Chunk.Meta) {
			continue
		}
		scored = append(scored, domain.Scored{
			Chunk:      h.Chunk,
			Distance:   h.Distance,
			Confidence: confidence(h.Distance),
		})
		if len(scored) == q.K {
			break
		}
	}

	if filter != nil {
		o.log.Debug("retrieval filtered",
			"filter", filter.String(),
			"candidates", len(hits),
			"kept", len(scored))
	}
	return domain.RetrievalResult{Hits: scored}, nil
}

func (o *Orchestrator) embedQuery(ctx context.Context, text string) ([]float32, error) {
	opts := o.opts.Retry
	opts.RetryIf = domain.IsTransient

	result := fn.Retry(ctx, opts, func(ctx context.Context) fn.Result[[]float32] {
		attemptCtx, cancel := context.WithTimeout(ctx, o.opts.EmbedTimeout)
		defer cancel()
		return fn.FromPair(o.embedder.Embed(attemptCtx, text))
	})
	vec, err := result.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	return vec, nil
}

// confidence maps a distance onto (0, 1]: identical vectors score 1 and the
// score decays monotonically with distance.
func confidence(distance float32) float32 {
	if distance < 0 {
		distance = 0
	}
	c := 1 / (1 + distance)
	if c > 1 {
		c = 1
	}
	return c
}
