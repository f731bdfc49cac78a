// Package qa is the question answering facade: it chains retrieval and
// synthesis into the single answer operation the API serves.
package qa

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/retrieval"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/synthesis"
)

// DefaultK is the result count when the caller does not ask for one.
const DefaultK = 5

// Service answers questions over the indexed corpus.
type Service struct {
	retriever   *retrieval.Orchestrator
	synthesizer *synthesis.Synthesizer
	log         *slog.Logger

	mu       sync.Mutex
	inflight map[string]*inflightRequest
}

type inflightRequest struct {
	cancel context.CancelCauseFunc
}

// New creates a Service.
func New(retriever *retrieval.Orchestrator, synthesizer *synthesis.Synthesizer, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		retriever:   retriever,
		synthesizer: synthesizer,
		log:         log,
		inflight:    make(map[string]*inflightRequest),
	}
}

// AnswerQuestion retrieves evidence for the query and synthesizes a cited
// answer. A second call with the same caller key cancels the first one's
// work with ErrSuperseded; only the latest question per caller runs to
// completion. An empty caller key disables supersession.
func (s *Service) AnswerQuestion(ctx context.Context, caller string, q domain.Query) (domain.Answer, error) {
	if q.K <= 0 {
		q.K = DefaultK
	}
	if q.K > domain.MaxK {
		q.K = domain.MaxK
	}

	if caller != "" {
		var req *inflightRequest
		ctx, req = s.supersede(ctx, caller)
		defer s.release(caller, req)
	}

	retrieved, err := s.retriever.Retrieve(ctx, q)
	if err != nil {
		return domain.Answer{}, s.resolveCancel(ctx, err)
	}

	answer, err := s.synthesizer.Synthesize(ctx, q.Text, retrieved)
	if err != nil {
		return domain.Answer{}, s.resolveCancel(ctx, err)
	}

	s.log.Info("question answered",
		"caller", caller,
		"k", q.K,
		"sources", len(answer.Sources),
		"elapsed", answer.Elapsed)
	return answer, nil
}

// supersede cancels the caller's previous in-flight request and registers
// this one.
func (s *Service) supersede(ctx context.Context, caller string) (context.Context, *inflightRequest) {
	ctx, cancel := context.WithCancelCause(ctx)
	req := &inflightRequest{cancel: cancel}

	s.mu.Lock()
	if prev, ok := s.inflight[caller]; ok {
		prev.cancel(domain.ErrSuperseded)
	}
	s.inflight[caller] = req
	s.mu.Unlock()
	return ctx, req
}

// release drops the caller's registration, but only if it still belongs to
// this request. A newer request may already have replaced it.
func (s *Service) release(caller string, req *inflightRequest) {
	s.mu.Lock()
	if s.inflight[caller] == req {
		delete(s.inflight, caller)
	}
	s.mu.Unlock()
	req.cancel(nil)
}

// resolveCancel maps a cancellation caused by supersession back to the
// typed sentinel so callers can tell it from an ordinary hang up.
func (s *Service) resolveCancel(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause == domain.ErrSuperseded {
		return domain.ErrSuperseded
	}
	return err
}
