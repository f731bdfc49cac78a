package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
)

func mustNew(t *testing.T, cfg Config) *Flat {
	t.Helper()
	f, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func chunkN(n int, ticker, filingType string, date time.Time) domain.Chunk {
	return domain.Chunk{
		ID:    n,
		DocID: ticker + ":acc",
		Text:  fmt.Sprintf("chunk %d", n),
		Meta: domain.ChunkMeta{
			Ticker:     ticker,
			FilingType: filingType,
			FilingDate: date,
		},
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Dim: 0}); err == nil {
		t.Error("zero dimension should be rejected")
	}
	if _, err := New(Config{Dim: 4, Metric: "hamming"}); err == nil {
		t.Error("unknown metric should be rejected")
	}
	f := mustNew(t, Config{Dim: 4})
	if f.Metric() != MetricSquaredL2 {
		t.Errorf("default metric = %s", f.Metric())
	}
}

func TestInsert_DimensionMismatch(t *testing.T) {
	f := mustNew(t, Config{Dim: 3})
	err := f.Insert([]float32{1, 2}, chunkN(0, "AAPL", "10-K", time.Now()))
	if !errors.Is(err, domain.ErrStructural) {
		t.Fatalf("expected ErrStructural, got %v", err)
	}
}

func TestSearch_EmptyIndex(t *testing.T) {
	f := mustNew(t, Config{Dim: 2})
	_, err := f.Search([]float32{1, 0}, 5)
	if !errors.Is(err, domain.ErrEmptyIndex) {
		t.Fatalf("expected ErrEmptyIndex, got %v", err)
	}

	tolerant := mustNew(t, Config{Dim: 2, TolerateEmpty: true})
	hits, err := tolerant.Search([]float32{1, 0}, 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("tolerant empty search = (%d hits, %v)", len(hits), err)
	}
}

func TestSearch_MinKNOrdering(t *testing.T) {
	f := mustNew(t, Config{Dim: 1})
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		if err := f.Insert([]float32{float32(i)}, chunkN(i, "AAPL", "10-K", date)); err != nil {
			t.Fatal(err)
		}
	}

	// k larger than n returns exactly n.
	hits, err := f.Search([]float32{0}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 10 {
		t.Fatalf("got %d hits, want 10", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Distance < hits[i-1].Distance {
			t.Fatal("distances must be non-decreasing")
		}
	}

	// k smaller than n returns exactly k nearest.
	hits, err = f.Search([]float32{2.1}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}
	if hits[0].Chunk.ID != 2 {
		t.Errorf("nearest chunk = %d, want 2", hits[0].Chunk.ID)
	}
}

func TestSearch_TieBreaks(t *testing.T) {
	f := mustNew(t, Config{Dim: 1})
	older := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Both entries are equidistant from the query.
	if err := f.Insert([]float32{1}, chunkN(7, "AAPL", "10-K", older)); err != nil {
		t.Fatal(err)
	}
	if err := f.Insert([]float32{-1}, chunkN(3, "AAPL", "10-K", newer)); err != nil {
		t.Fatal(err)
	}

	hits, err := f.Search([]float32{0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !hits[0].Chunk.Meta.FilingDate.Equal(newer) {
		t.Error("equidistant hits must rank the more recent filing first")
	}

	// Same distance and same date: smaller chunk ID wins.
	g := mustNew(t, Config{Dim: 1})
	g.Insert([]float32{1}, chunkN(9, "AAPL", "10-K", newer))
	g.Insert([]float32{-1}, chunkN(2, "AAPL", "10-K", newer))
	hits, _ = g.Search([]float32{0}, 2)
	if hits[0].Chunk.ID != 2 {
		t.Errorf("same-date tie should break on chunk ID, got %d first", hits[0].Chunk.ID)
	}
}

func TestSearch_CosineMetric(t *testing.T) {
	f := mustNew(t, Config{Dim: 2, Metric: MetricCosine})
	f.Insert([]float32{1, 0}, chunkN(0, "AAPL", "10-K", time.Now()))
	f.Insert([]float32{0, 1}, chunkN(1, "AAPL", "10-K", time.Now()))

	hits, err := f.Search([]float32{2, 0.1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Chunk.ID != 0 {
		t.Error("cosine metric should rank the aligned vector first")
	}
	if hits[0].Distance < 0 || hits[0].Distance > 2 {
		t.Errorf("cosine distance out of range: %f", hits[0].Distance)
	}
}

func TestStats(t *testing.T) {
	f := mustNew(t, Config{Dim: 2})
	date := time.Now()
	f.Insert([]float32{1, 0}, chunkN(0, "AAPL", "10-K", date))
	f.Insert([]float32{0, 1}, chunkN(1, "AAPL", "10-K", date))
	f.Insert([]float32{1, 1}, chunkN(2, "MSFT", "10-Q", date))

	s := f.Stats()
	if s.TotalVectors != 3 || s.Dimension != 2 {
		t.Fatalf("stats = %+v", s)
	}
	if s.ByFilingType["10-K"] != 2 || s.ByFilingType["10-Q"] != 1 {
		t.Fatalf("by filing type = %v", s.ByFilingType)
	}
}

func TestPersist_RoundTrip(t *testing.T) {
	f := mustNew(t, Config{Dim: 3, Metric: MetricCosine})
	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	vecs := [][]float32{{1, 0, 0}, {0.5, 0.5, 0}, {0, 0, 1}, {0.2, 0.9, 0.1}}
	for i, v := range vecs {
		if err := f.Insert(v, chunkN(i, "AAPL", "10-K", date)); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "filings.idx")
	if err := f.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Dimension() != 3 || loaded.Metric() != MetricCosine || loaded.Size() != 4 {
		t.Fatalf("loaded header mismatch: dim=%d metric=%s size=%d",
			loaded.Dimension(), loaded.Metric(), loaded.Size())
	}

	query := []float32{0.4, 0.6, 0.05}
	want, err := f.Search(query, 4)
	if err != nil {
		t.Fatal(err)
	}
	got, err := loaded.Search(query, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(want) != len(got) {
		t.Fatalf("result lengths differ: %d vs %d", len(want), len(got))
	}
	for i := range want {
		if want[i].Chunk.ID != got[i].Chunk.ID || want[i].Distance != got[i].Distance {
			t.Fatalf("result %d differs after round-trip: %+v vs %+v", i, want[i], got[i])
		}
	}
}

func TestPersist_EmptyTolerantRoundTrip(t *testing.T) {
	f := mustNew(t, Config{Dim: 3, TolerateEmpty: true})

	path := filepath.Join(t.TempDir(), "empty.idx")
	if err := f.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	hits, err := loaded.Search([]float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("loaded tolerant index must match the original's empty-search behavior, got %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("hits = %d, want none", len(hits))
	}
}

func TestLoad_CorruptFileIsStructural(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.idx")
	if err := os.WriteFile(path, []byte("not a gob stream"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, domain.ErrStructural) {
		t.Fatalf("expected ErrStructural, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.idx"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if errors.Is(err, domain.ErrStructural) {
		t.Fatal("a missing file is not a structural fault")
	}
}
