package domain

import (
	"errors"
	"testing"
	"time"
)

func validQuery() Query {
	return Query{Text: "What were the main risk factors?", K: 5}
}

func TestValidateQuery_Valid(t *testing.T) {
	if err := ValidateQuery(validQuery()); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateQuery_EmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "\t\n"} {
		q := validQuery()
		q.Text = text
		err := ValidateQuery(q)
		if !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("text=%q: expected ErrInvalidQuery, got %v", text, err)
		}
	}
}

func TestValidateQuery_K(t *testing.T) {
	tests := []struct {
		k  int
		ok bool
	}{
		{0, false}, {-1, false}, {1, true}, {50, true}, {51, false},
	}
	for _, tt := range tests {
		q := validQuery()
		q.K = tt.k
		err := ValidateQuery(q)
		if tt.ok && err != nil {
			t.Errorf("k=%d: unexpected error %v", tt.k, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("k=%d: expected ErrInvalidQuery, got %v", tt.k, err)
		}
	}
}

func TestValidateQuery_Filters(t *testing.T) {
	q := validQuery()
	q.Ticker = "aapl"
	if err := ValidateQuery(q); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("lowercase ticker: expected ErrInvalidQuery, got %v", err)
	}

	q = validQuery()
	q.Ticker = "BRK.B"
	if err := ValidateQuery(q); err != nil {
		t.Errorf("BRK.B should be valid: %v", err)
	}

	q = validQuery()
	q.FilingType = "11-Z"
	if err := ValidateQuery(q); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("unknown filing type: expected ErrInvalidQuery, got %v", err)
	}

	q = validQuery()
	q.Dates = DateRange{
		From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := ValidateQuery(q); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("inverted range: expected ErrInvalidQuery, got %v", err)
	}
}

func TestValidateQuery_Injection(t *testing.T) {
	q := validQuery()
	q.Text = "revenue; DROP TABLE filings"
	if err := ValidateQuery(q); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("expected injection rejection, got %v", err)
	}
}

func TestValidateDocument(t *testing.T) {
	doc := Document{
		Filing: Filing{
			Ticker:     "AAPL",
			FilingType: "10-K",
			FilingDate: time.Date(2024, 10, 30, 0, 0, 0, 0, time.UTC),
			Accession:  "0000320193-24-000123",
		},
		Sections: []Section{{Name: "Item 1A - Risk Factors", Text: "Risks."}},
	}
	if err := ValidateDocument(doc); err != nil {
		t.Fatalf("expected valid document: %v", err)
	}

	bad := doc
	bad.Accession = "nope"
	if err := ValidateDocument(bad); !errors.Is(err, ErrInvalidFiling) {
		t.Errorf("bad accession: expected ErrInvalidFiling, got %v", err)
	}

	bad = doc
	bad.Sections = nil
	if err := ValidateDocument(bad); !errors.Is(err, ErrInvalidFiling) {
		t.Errorf("no sections: expected ErrInvalidFiling, got %v", err)
	}
}

func TestDateRangeContains(t *testing.T) {
	mid := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	open := DateRange{}
	if !open.Contains(mid) {
		t.Error("open range should contain any date")
	}
	r := DateRange{From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	if !r.Contains(mid) {
		t.Error("date after From should be contained")
	}
	if r.Contains(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Error("date before From should not be contained")
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(ErrInvalidQuery) {
		t.Error("invalid query must not be retryable")
	}
	if IsTransient(&StructuralError{Detail: "dim mismatch"}) {
		t.Error("structural errors must not be retryable")
	}
	if !IsTransient(ErrTransient) {
		t.Error("ErrTransient must be retryable")
	}
	if !IsTransient(errors.New("backend temporarily unavailable")) {
		t.Error("unavailability must be retryable")
	}
}

func TestSynthesisError(t *testing.T) {
	cause := errors.New("generation backend down")
	err := &SynthesisError{
		Retrieved: RetrievalResult{Hits: []Scored{{Confidence: 0.5}}},
		Cause:     cause,
	}
	if !errors.Is(err, ErrSynthesis) {
		t.Error("SynthesisError should match ErrSynthesis")
	}
	if !errors.Is(err, cause) {
		t.Error("SynthesisError should unwrap to its cause")
	}
	var se *SynthesisError
	if !errors.As(err, &se) || len(se.Retrieved.Hits) != 1 {
		t.Error("retrieval results should survive on the error")
	}
}
