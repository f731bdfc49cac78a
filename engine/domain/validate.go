package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Ticker format: 1-5 uppercase letters, optional class suffix (BRK.B).
var tickerRegex = regexp.MustCompile(`^[A-Z]{1,5}([.-][A-Z]{1,2})?$`)

// Accession number format as assigned by EDGAR: 0000320193-24-000123.
var accessionRegex = regexp.MustCompile(`^\d{10}-\d{2}-\d{6}$`)

// ValidFilingTypes is the set of recognised filing form types.
var ValidFilingTypes = map[string]bool{
	"10-K": true, "10-Q": true, "8-K": true, "20-F": true,
	"S-1": true, "S-3": true, "DEF 14A": true, "6-K": true,
	"10-K/A": true, "10-Q/A": true,
}

// Injection patterns that should never appear in a user question.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|EXEC|UNION)\b.*\b(TABLE|FROM|INTO|SELECT|SET)\b`),
	regexp.MustCompile(`(?i)(--|;)\s*(DROP|DELETE|SELECT)`),
	regexp.MustCompile(`(?i)\$\{.*\}`),
}

const (
	minQueryLength = 3
	// MaxK caps the result-count bound to keep synthesis context bounded.
	MaxK = 50
)

// ValidateQuery checks a retrieval query before any backend is touched.
// An empty or whitespace-only question is rejected here so the embedder is
// never invoked for it.
func ValidateQuery(q Query) error {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return NewValidationError("text", q.Text, ErrInvalidQuery)
	}
	if utf8.RuneCountInString(text) < minQueryLength {
		return NewValidationError("text", text, ErrInvalidQuery)
	}
	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			return NewValidationError("text", text, ErrInvalidQuery)
		}
	}
	if q.K <= 0 {
		return NewValidationError("k", fmt.Sprintf("%d", q.K), ErrInvalidQuery)
	}
	if q.K > MaxK {
		return NewValidationError("k", fmt.Sprintf("%d", q.K), ErrInvalidQuery)
	}
	if q.Ticker != "" && !tickerRegex.MatchString(q.Ticker) {
		return NewValidationError("ticker", q.Ticker, ErrInvalidQuery)
	}
	if q.FilingType != "" && !ValidFilingTypes[q.FilingType] {
		return NewValidationError("filing_type", q.FilingType, ErrInvalidQuery)
	}
	if !q.Dates.From.IsZero() && !q.Dates.To.IsZero() && q.Dates.To.Before(q.Dates.From) {
		return NewValidationError("dates", q.Dates.From.Format("2006-01-02"), ErrInvalidQuery)
	}
	return nil
}

// ValidateDocument checks a document before ingestion.
func ValidateDocument(d Document) error {
	if !tickerRegex.MatchString(d.Ticker) {
		return NewValidationError("ticker", d.Ticker, ErrInvalidFiling)
	}
	if !ValidFilingTypes[d.FilingType] {
		return NewValidationError("filing_type", d.FilingType, ErrInvalidFiling)
	}
	if !accessionRegex.MatchString(d.Accession) {
		return NewValidationError("accession", d.Accession, ErrInvalidFiling)
	}
	if d.FilingDate.IsZero() {
		return NewValidationError("filing_date", "", ErrInvalidFiling)
	}
	if len(d.Sections) == 0 {
		return NewValidationError("sections", "", ErrInvalidFiling)
	}
	return nil
}
