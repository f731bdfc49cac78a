// Package index implements a flat in-process vector index with exact
// k-nearest-neighbour search and single-file persistence. It is the sole
// owner of index entries: entries are appended at ingestion time, never
// mutated, and removed only by rebuilding the index from scratch.
package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
)

// Metric identifies the distance function. It is fixed at index creation and
// recorded in the persisted form; mixing metrics across rebuild or load
// silently corrupts ranking, so Load refuses an unknown metric.
type Metric string

const (
	MetricSquaredL2 Metric = "squared_l2"
	MetricCosine    Metric = "cosine"
)

func validMetric(m Metric) bool {
	return m == MetricSquaredL2 || m == MetricCosine
}

// Entry is one stored (vector, chunk) pair.
type Entry struct {
	Vector []float32
	Chunk  domain.Chunk
}

// Config configures a new index.
type Config struct {
	Dim    int
	Metric Metric
	// TolerateEmpty makes Search on an empty index return an empty result
	// instead of ErrEmptyIndex.
	TolerateEmpty bool
}

// Flat is a brute-force index over a contiguous entry slice. Reads take the
// shared lock, so concurrent searches interleave freely; Insert takes the
// exclusive lock, so a search never observes a partially appended entry.
type Flat struct {
	mu            sync.RWMutex
	dim           int
	metric        Metric
	tolerateEmpty bool
	entries       []Entry
}

// New creates an empty index.
func New(cfg Config) (*Flat, error) {
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("index: dimension must be positive, got %d", cfg.Dim)
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricSquaredL2
	}
	if !validMetric(cfg.Metric) {
		return nil, fmt.Errorf("index: unknown metric %q", cfg.Metric)
	}
	return &Flat{dim: cfg.Dim, metric: cfg.Metric, tolerateEmpty: cfg.TolerateEmpty}, nil
}

// Dimension returns the fixed vector dimension.
func (f *Flat) Dimension() int { return f.dim }

// SetTolerateEmpty overrides the empty-index search behavior. Owners that
// load a persisted index use it to keep the loaded copy consistent with
// their own configuration.
func (f *Flat) SetTolerateEmpty(tolerate bool) {
	f.mu.Lock()
	f.tolerateEmpty = tolerate
	f.mu.Unlock()
}

// Metric returns the distance metric fixed at creation.
func (f *Flat) Metric() Metric { return f.metric }

// Size returns the number of entries.
func (f *Flat) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Insert appends an entry. It never overwrites by identity; duplicate chunk
// IDs are an ingestion-layer concern.
func (f *Flat) Insert(vec []float32, chunk domain.Chunk) error {
	if len(vec) != f.dim {
		return &domain.StructuralError{
			Detail: fmt.Sprintf("insert vector dimension %d, index dimension %d", len(vec), f.dim),
		}
	}
	stored := make([]float32, len(vec))
	copy(stored, vec)

	f.mu.Lock()
	f.entries = append(f.entries, Entry{Vector: stored, Chunk: chunk})
	f.mu.Unlock()
	return nil
}

// Search returns up to k entries ordered by ascending distance from vec.
// Ties break toward the most recent filing date, then the smaller chunk ID.
// An empty index fails with ErrEmptyIndex unless TolerateEmpty was set.
func (f *Flat) Search(vec []float32, k int) ([]domain.Hit, error) {
	if len(vec) != f.dim {
		return nil, &domain.StructuralError{
			Detail: fmt.Sprintf("query vector dimension %d, index dimension %d", len(vec), f.dim),
		}
	}
	if k <= 0 {
		return nil, nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.entries) == 0 {
		if f.tolerateEmpty {
			return nil, nil
		}
		return nil, domain.ErrEmptyIndex
	}

	hits := make([]domain.Hit, len(f.entries))
	for i, e := range f.entries {
		hits[i] = domain.Hit{Chunk: e.Chunk, Distance: f.distance(vec, e.Vector)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return lessHit(hits[i], hits[j]) })

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func lessHit(a, b domain.Hit) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	ad, bd := a.Chunk.Meta.FilingDate, b.Chunk.Meta.FilingDate
	if !ad.Equal(bd) {
		return ad.After(bd)
	}
	return a.Chunk.ID < b.Chunk.ID
}

func (f *Flat) distance(a, b []float32) float32 {
	switch f.metric {
	case MetricCosine:
		return cosineDistance(a, b)
	default:
		return squaredL2(a, b)
	}
}

// Stats summarizes index contents for the monitoring surface. Read-only.
type Stats struct {
	TotalVectors int            `json:"total_vectors"`
	Dimension    int            `json:"dimension"`
	Metric       Metric         `json:"metric"`
	ByFilingType map[string]int `json:"entry_count_by_filing_type"`
}

// Stats returns a snapshot of index statistics.
func (f *Flat) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	byType := make(map[string]int)
	for _, e := range f.entries {
		byType[e.Chunk.Meta.FilingType]++
	}
	return Stats{
		TotalVectors: len(f.entries),
		Dimension:    f.dim,
		Metric:       f.metric,
		ByFilingType: byType,
	}
}
