// Package domain defines core domain types, constants, and validation for the
// filings QA pipeline. It acts as the validation gate at pipeline entry points.
package domain

import (
	"fmt"
	"time"
)

// Filing identifies a single regulatory filing.
type Filing struct {
	Ticker      string    `json:"ticker"`
	CompanyName string    `json:"company_name,omitempty"`
	FilingType  string    `json:"filing_type"`
	FilingDate  time.Time `json:"filing_date"`
	Accession   string    `json:"accession"`
}

// ID returns the canonical document identifier for the filing.
func (f Filing) ID() string {
	return f.Ticker + ":" + f.Accession
}

// Section is a named region of a filing, produced once by external
// extraction and immutable afterwards.
type Section struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Document is a filing together with its ordered sections. This is the unit
// handed to the corpus manager for ingestion.
type Document struct {
	Filing
	Sections []Section `json:"sections"`
}

// ChunkMeta is the denormalized metadata record every chunk carries so that
// retrieval can filter without dereferencing the source document.
type ChunkMeta struct {
	Ticker      string    `json:"ticker"`
	CompanyName string    `json:"company_name,omitempty"`
	FilingType  string    `json:"filing_type"`
	FilingDate  time.Time `json:"filing_date"`
	Accession   string    `json:"accession"`
	Section     string    `json:"section"`
}

// Chunk is a bounded text span carved from a section, the atomic unit of
// retrieval. IDs are monotonic within a document.
type Chunk struct {
	ID    int       `json:"id"`
	DocID string    `json:"doc_id"`
	Start int       `json:"start"`
	Text  string    `json:"text"`
	Meta  ChunkMeta `json:"meta"`
}

// DateRange bounds filing dates; a zero From or To leaves that side open.
type DateRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// IsZero reports whether neither bound is set.
func (r DateRange) IsZero() bool { return r.From.IsZero() && r.To.IsZero() }

// Contains reports whether t falls within the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Query is one retrieval request. It is ephemeral and exists only for a
// single call.
type Query struct {
	Text       string    `json:"text"`
	Ticker     string    `json:"ticker,omitempty"`
	FilingType string    `json:"filing_type,omitempty"`
	Dates      DateRange `json:"dates,omitempty"`
	K          int       `json:"k"`
}

// HasFilters reports whether any metadata filter is set.
func (q Query) HasFilters() bool {
	return q.Ticker != "" || q.FilingType != "" || !q.Dates.IsZero()
}

// Hit is a raw nearest-neighbour result: a chunk and its vector distance.
type Hit struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float32 `json:"distance"`
}

// Scored is a ranked retrieval result with the distance mapped onto a
// bounded confidence score.
type Scored struct {
	Chunk      Chunk   `json:"chunk"`
	Distance   float32 `json:"distance"`
	Confidence float32 `json:"confidence"`
}

// SourceRef renders a short human-readable citation for the chunk.
func (s Scored) SourceRef() string {
	d := s.Chunk.Meta.FilingDate.Format("2006-01-02")
	if s.Chunk.Meta.Section != "" {
		return fmt.Sprintf("%s %s %s, %s", s.Chunk.Meta.Ticker, s.Chunk.Meta.FilingType, d, s.Chunk.Meta.Section)
	}
	return fmt.Sprintf("%s %s %s", s.Chunk.Meta.Ticker, s.Chunk.Meta.FilingType, d)
}

// RetrievalResult is the ranked outcome of one retrieve call.
type RetrievalResult struct {
	Hits []Scored `json:"hits"`
}

// Answer is a synthesized response plus the chunks that were actually placed
// in the prompt. Immutable once produced; not persisted by the core.
type Answer struct {
	Text    string        `json:"text"`
	Sources []Scored      `json:"sources"`
	Model   string        `json:"model,omitempty"`
	Elapsed time.Duration `json:"elapsed,omitempty"`
}

// Company is a catalog entry for an issuer.
type Company struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	CIK      string `json:"cik,omitempty"`
	Sector   string `json:"sector,omitempty"`
	Industry string `json:"industry,omitempty"`
}
