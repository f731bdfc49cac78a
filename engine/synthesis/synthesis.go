// Package synthesis turns ranked retrieval results into cited natural
// language answers via a text generation backend.
package synthesis

import (
	"context"
	"log/slog"
	"time"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
	"github.com/sohailshk/SEC-Filings-QA-Agent/pkg/resilience"
)

// Generator is the text generation backend.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// NoEvidenceAnswer is returned without a model call when retrieval produced
// nothing to ground an answer on.
const NoEvidenceAnswer = "I could not find relevant information in the indexed filings to answer this question."

// Options tunes prompt construction.
type Options struct {
	// PerChunkChars caps each chunk's contribution to the prompt.
	PerChunkChars int
	// ContextBudget caps the whole rendered context block.
	ContextBudget int
	// SystemPrompt overrides DefaultSystemPrompt when non-empty.
	SystemPrompt string
}

// DefaultOptions are the production synthesis settings.
var DefaultOptions = Options{
	PerChunkChars: 2000,
	ContextBudget: 12000,
}

// Synthesizer builds budgeted prompts and calls the generator behind a
// circuit breaker.
type Synthesizer struct {
	gen     Generator
	breaker *resilience.Breaker
	opts    Options
	log     *slog.Logger
}

// New creates a synthesizer. A nil breaker disables circuit breaking.
func New(gen Generator, breaker *resilience.Breaker, opts Options, log *slog.Logger) *Synthesizer {
	if opts.PerChunkChars <= 0 {
		opts.PerChunkChars = DefaultOptions.PerChunkChars
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = DefaultOptions.ContextBudget
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if log == nil {
		log = slog.Default()
	}
	return &Synthesizer{gen: gen, breaker: breaker, opts: opts, log: log}
}

// Synthesize answers the question from the retrieved chunks. The answer's
// Sources list exactly the chunks whose text made it into the prompt, so a
// caller can verify every citation. Generation failure surfaces as a
// SynthesisError still carrying the retrieval result; retrieval work is
// never silently discarded.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, retrieved domain.RetrievalResult) (domain.Answer, error) {
	started := time.Now()

	if len(retrieved.Hits) == 0 {
		return domain.Answer{
			Text:    NoEvidenceAnswer,
			Sources: []domain.Scored{},
			Model:   s.gen.Model(),
			Elapsed: time.Since(started),
		}, nil
	}

	pc := buildContext(retrieved.Hits, s.opts.PerChunkChars, s.opts.ContextBudget)
	if len(pc.included) < len(retrieved.Hits) {
		s.log.Debug("context truncated",
			"retrieved", len(retrieved.Hits),
			"included", len(pc.included))
	}
	prompt := buildPrompt(s.opts.SystemPrompt, question, pc)

	text, err := s.generate(ctx, prompt)
	if err != nil {
		return domain.Answer{}, &domain.SynthesisError{Retrieved: retrieved, Cause: err}
	}

	return domain.Answer{
		Text:    text,
		Sources: pc.included,
		Model:   s.gen.Model(),
		Elapsed: time.Since(started),
	}, nil
}

func (s *Synthesizer) generate(ctx context.Context, prompt string) (string, error) {
	if s.breaker == nil {
		return s.gen.Generate(ctx, prompt)
	}
	var text string
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		text, err = s.gen.Generate(ctx, prompt)
		return err
	})
	return text, err
}
