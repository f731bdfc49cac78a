// Package corpus owns the filing corpus: it runs the ingestion pipeline
// from validated documents to indexed vectors and serves searches from the
// active index. The active index is swapped atomically, so readers never
// observe a half-built one.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/catalog"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/chunker"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/embed"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/index"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/semantic"
	"github.com/sohailshk/SEC-Filings-QA-Agent/pkg/fn"
)

const (
	// EmbedBatchSize is the max chunks per embedding request.
	EmbedBatchSize = 100
	// EmbedWorkers bounds concurrent embedding requests per section.
	EmbedWorkers = 4
)

// Deps holds the external dependencies for the corpus manager. Catalog and
// Vectors are optional; without them the manager runs local-only and skips
// deduplication and the remote mirror.
type Deps struct {
	Embedder embed.Embedder
	Catalog  *catalog.Store
	Vectors  *semantic.VectorStore
	Logger   *slog.Logger
}

// Options tunes chunking and indexing.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Metric       index.Metric
	// TolerateEmptyIndex makes searches on a fresh corpus return empty
	// results instead of an error.
	TolerateEmptyIndex bool
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	DocID           string        `json:"doc_id"`
	Duplicate       bool          `json:"duplicate,omitempty"`
	Sections        int           `json:"sections"`
	ChunksIndexed   int           `json:"chunks_indexed"`
	SkippedSections []string      `json:"skipped_sections,omitempty"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Stats merges index and catalog statistics.
type Stats struct {
	index.Stats
	Filings map[string]int64 `json:"filings_by_type,omitempty"`
}

// Manager coordinates ingestion and search over the filing corpus.
type Manager struct {
	windower *chunker.Windower
	deps     Deps
	opts     Options
	idx      atomic.Pointer[index.Flat]
	log      *slog.Logger
}

// New creates a Manager with an empty active index sized to the embedder.
func New(deps Deps, opts Options) (*Manager, error) {
	if deps.Embedder == nil {
		return nil, errors.New("corpus: embedder is required")
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunker.DefaultChunkSize
		if opts.ChunkOverlap == 0 {
			opts.ChunkOverlap = chunker.DefaultOverlap
		}
	}
	w, err := chunker.New(opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	idx, err := index.New(index.Config{
		Dim:           deps.Embedder.Dimension(),
		Metric:        opts.Metric,
		TolerateEmpty: opts.TolerateEmptyIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	m := &Manager{windower: w, deps: deps, opts: opts, log: log}
	m.idx.Store(idx)
	return m, nil
}

// Search serves nearest-neighbour queries from the active index.
func (m *Manager) Search(vec []float32, k int) ([]domain.Hit, error) {
	return m.idx.Load().Search(vec, k)
}

// Size returns the number of indexed chunks.
func (m *Manager) Size() int { return m.idx.Load().Size() }

// --- Ingestion pipeline ---

type sectionWork struct {
	doc     domain.Document
	section domain.Section
	baseID  int
}

type chunkedSection struct {
	sectionWork
	chunks []domain.Chunk
}

type embeddedSection struct {
	chunkedSection
	vectors [][]float32
}

// chunkStage cleans a section's text and carves it into chunks carrying the
// filing's metadata.
func (m *Manager) chunkStage() fn.Stage[sectionWork, chunkedSection] {
	return func(_ context.Context, w sectionWork) fn.Result[chunkedSection] {
		text := chunker.CleanText(w.section.Text)
		if text == "" {
			return fn.Errf[chunkedSection]("section %q is empty after cleaning", w.section.Name)
		}
		meta := domain.ChunkMeta{
			Ticker:      w.doc.Ticker,
			CompanyName: w.doc.CompanyName,
			FilingType:  w.doc.FilingType,
			FilingDate:  w.doc.FilingDate,
			Accession:   w.doc.Accession,
			Section:     w.section.Name,
		}
		chunks := m.windower.Chunk(text, meta)
		for i := range chunks {
			chunks[i].ID += w.baseID
			chunks[i].DocID = w.doc.ID()
		}
		return fn.Ok(chunkedSection{sectionWork: w, chunks: chunks})
	}
}

// embedStage embeds a section's chunks in bounded batches. Transient
// backend failures are retried before the section is given up on.
func (m *Manager) embedStage() fn.Stage[chunkedSection, embeddedSection] {
	retry := fn.RetryOpts{
		MaxAttempts: 3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Jitter:      true,
		RetryIf:     domain.IsTransient,
	}
	return func(ctx context.Context, cs chunkedSection) fn.Result[embeddedSection] {
		var batches [][]string
		for start := 0; start < len(cs.chunks); start += EmbedBatchSize {
			end := start + EmbedBatchSize
			if end > len(cs.chunks) {
				end = len(cs.chunks)
			}
			texts := make([]string, 0, end-start)
			for _, c := range cs.chunks[start:end] {
				texts = append(texts, c.Text)
			}
			batches = append(batches, texts)
		}

		results := fn.ParMapResult(batches, EmbedWorkers, func(texts []string) fn.Result[[][]float32] {
			return fn.Retry(ctx, retry, func(ctx context.Context) fn.Result[[][]float32] {
				return fn.FromPair(m.deps.Embedder.EmbedBatch(ctx, texts))
			})
		})

		vectors := make([][]float32, 0, len(cs.chunks))
		for _, batch := range results {
			vecs, err := batch.Unwrap()
			if err != nil {
				return fn.Err[embeddedSection](fmt.Errorf("embed section %q: %w", cs.section.Name, err))
			}
			vectors = append(vectors, vecs...)
		}
		return fn.Ok(embeddedSection{chunkedSection: cs, vectors: vectors})
	}
}

// storeStage inserts embedded chunks into the active index and mirrors them
// to the remote vector store when one is configured. A remote failure is
// logged but does not fail the section; the local index stays authoritative.
func (m *Manager) storeStage() fn.Stage[embeddedSection, int] {
	return func(ctx context.Context, es embeddedSection) fn.Result[int] {
		idx := m.idx.Load()
		for i, c := range es.chunks {
			if err := idx.Insert(es.vectors[i], c); err != nil {
				return fn.Err[int](fmt.Errorf("index section %q: %w", es.section.Name, err))
			}
		}

		if m.deps.Vectors != nil {
			records := make([]semantic.VectorRecord, len(es.chunks))
			for i, c := range es.chunks {
				records[i] = semantic.RecordFromChunk(c, es.vectors[i])
			}
			if err := m.deps.Vectors.Upsert(ctx, records); err != nil {
				m.log.Warn("remote vector mirror failed",
					"doc_id", es.doc.ID(),
					"section", es.section.Name,
					"error", err)
			}
		}
		return fn.Ok(len(es.chunks))
	}
}

func (m *Manager) sectionPipeline() fn.Stage[sectionWork, int] {
	chunk := fn.TracedStage("corpus.chunk", m.chunkStage())
	embedS := fn.TracedStage("corpus.embed", m.embedStage())
	store := fn.TracedStage("corpus.store", m.storeStage())
	return fn.Then(fn.Then(chunk, embedS), store)
}

// Ingest runs a validated document through the section pipeline. A section
// that fails is skipped and reported; the document fails only when every
// section does. Duplicate filings are detected via the catalog and skipped
// wholesale. A document submitted as one unnamed block of full filing text
// is sectionized by item headings first.
func (m *Manager) Ingest(ctx context.Context, doc domain.Document) (IngestReport, error) {
	started := time.Now()

	if len(doc.Sections) == 1 && doc.Sections[0].Name == "" {
		if extracted := chunker.ExtractSections(chunker.CleanText(doc.Sections[0].Text)); extracted != nil {
			doc.Sections = extracted
		}
	}
	report := IngestReport{DocID: doc.ID(), Sections: len(doc.Sections)}

	if err := domain.ValidateDocument(doc); err != nil {
		return report, err
	}

	if m.deps.Catalog != nil {
		exists, err := m.deps.Catalog.FilingExists(ctx, doc.Accession)
		if err != nil {
			m.log.Warn("dedup check failed, ingesting anyway", "accession", doc.Accession, "error", err)
		} else if exists {
			report.Duplicate = true
			report.Elapsed = time.Since(started)
			m.log.Info("skipping duplicate filing", "doc_id", doc.ID())
			return report, nil
		}
	}

	pipeline := m.sectionPipeline()
	baseID := 0
	var lastErr error
	for _, section := range doc.Sections {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result := pipeline(ctx, sectionWork{doc: doc, section: section, baseID: baseID})
		n, err := result.Unwrap()
		if err != nil {
			lastErr = err
			report.SkippedSections = append(report.SkippedSections, section.Name)
			m.log.Warn("section skipped",
				"doc_id", doc.ID(),
				"section", section.Name,
				"error", err)
			continue
		}
		baseID += n
		report.ChunksIndexed += n
	}

	if report.ChunksIndexed == 0 {
		report.Elapsed = time.Since(started)
		return report, fmt.Errorf("corpus: ingest %s: no section survived: %w", doc.ID(), lastErr)
	}

	if m.deps.Catalog != nil {
		if err := m.deps.Catalog.SaveFiling(ctx, doc.Filing); err != nil {
			m.log.Warn("catalog save failed", "doc_id", doc.ID(), "error", err)
		}
	}

	report.Elapsed = time.Since(started)
	m.log.Info("filing ingested",
		"doc_id", doc.ID(),
		"chunks", report.ChunksIndexed,
		"skipped_sections", len(report.SkippedSections),
		"elapsed", report.Elapsed)
	return report, nil
}

// --- Index lifecycle ---

// SaveIndex persists the active index.
func (m *Manager) SaveIndex(path string) error {
	return m.idx.Load().Save(path)
}

// LoadIndex restores a persisted index and makes it the active one. The
// loaded index adopts the manager's empty-index behavior. A dimension
// mismatch against the configured embedder is a structural fault:
// serving queries from such an index would rank garbage, so the current
// index is left in place.
func (m *Manager) LoadIndex(path string) error {
	loaded, err := index.Load(path)
	if err != nil {
		return err
	}
	if loaded.Dimension() != m.deps.Embedder.Dimension() {
		return &domain.StructuralError{Detail: fmt.Sprintf(
			"persisted index dimension %d does not match embedder dimension %d",
			loaded.Dimension(), m.deps.Embedder.Dimension())}
	}
	loaded.SetTolerateEmpty(m.opts.TolerateEmptyIndex)
	m.idx.Store(loaded)
	m.log.Info("index loaded", "path", path, "vectors", loaded.Size())
	return nil
}

// Rebuild constructs a fresh index by streaming the current entries through
// build and swaps it in atomically once complete. Searches keep hitting the
// old index until the swap.
func (m *Manager) Rebuild(ctx context.Context, build func(ctx context.Context, fresh *index.Flat) error) error {
	fresh, err := index.New(index.Config{
		Dim:           m.deps.Embedder.Dimension(),
		Metric:        m.opts.Metric,
		TolerateEmpty: m.opts.TolerateEmptyIndex,
	})
	if err != nil {
		return fmt.Errorf("corpus: rebuild: %w", err)
	}
	if err := build(ctx, fresh); err != nil {
		return fmt.Errorf("corpus: rebuild: %w", err)
	}
	m.idx.Store(fresh)
	m.log.Info("index rebuilt and swapped", "vectors", fresh.Size())
	return nil
}

// Stats reports the corpus state, merging catalog counts when available.
func (m *Manager) Stats(ctx context.Context) Stats {
	s := Stats{Stats: m.idx.Load().Stats()}
	if m.deps.Catalog != nil {
		filings, err := m.deps.Catalog.CountByFilingType(ctx)
		if err != nil {
			m.log.Warn("catalog stats failed", "error", err)
		} else {
			s.Filings = filings
		}
	}
	return s
}
