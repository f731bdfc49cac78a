package index

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
)

// persistVersion guards the on-disk layout.
const persistVersion = 1

// persisted is the serialized index: header fields first so a loader can
// fail fast on a mismatch before touching entry data.
type persisted struct {
	Version       int
	Dim           int
	Metric        Metric
	TolerateEmpty bool
	Count         int
	Entries       []Entry
}

// Save writes the full index (vectors, payloads, dimension, metric, and the
// empty-index behavior) to path.
// The file is written to a temp sibling and renamed so a crashed save never
// leaves a half-written index behind.
func (f *Flat) Save(path string) error {
	f.mu.RLock()
	p := persisted{
		Version:       persistVersion,
		Dim:           f.dim,
		Metric:        f.metric,
		TolerateEmpty: f.tolerateEmpty,
		Count:         len(f.entries),
		Entries:       f.entries,
	}
	f.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("index save: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*")
	if err != nil {
		return fmt.Errorf("index save: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(p); err != nil {
		tmp.Close()
		return fmt.Errorf("index save: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("index save: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Load restores an index such that identical queries return identical
// ordered results as the saved instance. Any header inconsistency is a
// StructuralError; the caller must not serve queries from a failed load.
func Load(path string) (*Flat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("index load: %w", err)
	}
	defer file.Close()

	var p persisted
	if err := gob.NewDecoder(file).Decode(&p); err != nil {
		return nil, &domain.StructuralError{Detail: fmt.Sprintf("decode %s: %v", path, err)}
	}
	if p.Version != persistVersion {
		return nil, &domain.StructuralError{Detail: fmt.Sprintf("unsupported index version %d", p.Version)}
	}
	if p.Dim <= 0 {
		return nil, &domain.StructuralError{Detail: fmt.Sprintf("invalid dimension %d", p.Dim)}
	}
	if !validMetric(p.Metric) {
		return nil, &domain.StructuralError{Detail: fmt.Sprintf("unknown metric %q", p.Metric)}
	}
	if p.Count != len(p.Entries) {
		return nil, &domain.StructuralError{Detail: fmt.Sprintf("entry count %d does not match header %d", len(p.Entries), p.Count)}
	}
	for i, e := range p.Entries {
		if len(e.Vector) != p.Dim {
			return nil, &domain.StructuralError{Detail: fmt.Sprintf("entry %d has dimension %d, header says %d", i, len(e.Vector), p.Dim)}
		}
	}

	return &Flat{dim: p.Dim, metric: p.Metric, tolerateEmpty: p.TolerateEmpty, entries: p.Entries}, nil
}
