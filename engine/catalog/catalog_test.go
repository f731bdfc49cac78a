package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
)

// --- Mocks ---

type mockResult struct {
	records []*neo4j.Record
	pos     int
	err     error
}

func (r *mockResult) Next(_ context.Context) bool {
	if r.pos >= len(r.records) {
		return false
	}
	r.pos++
	return true
}

func (r *mockResult) Record() *neo4j.Record { return r.records[r.pos-1] }
func (r *mockResult) Err() error            { return r.err }

type mockSession struct {
	cypher string
	params map[string]any
	result *mockResult
	runErr error
	closed bool
}

func (s *mockSession) Run(_ context.Context, cypher string, params map[string]any) (CypherResult, error) {
	s.cypher = cypher
	s.params = params
	if s.runErr != nil {
		return nil, s.runErr
	}
	if s.result == nil {
		return &mockResult{}, nil
	}
	return s.result, nil
}

func (s *mockSession) Close(_ context.Context) error {
	s.closed = true
	return nil
}

type mockOpener struct {
	session *mockSession
}

func (o *mockOpener) OpenSession(_ context.Context) CypherSession { return o.session }

func record(keys []string, values []any) *neo4j.Record {
	return &db.Record{Keys: keys, Values: values}
}

// --- Tests ---

func TestSaveFiling(t *testing.T) {
	sess := &mockSession{}
	store := NewWithOpener(&mockOpener{session: sess})

	f := domain.Filing{
		Ticker:      "AAPL",
		CompanyName: "Apple Inc.",
		FilingType:  "10-K",
		FilingDate:  time.Date(2024, 10, 30, 0, 0, 0, 0, time.UTC),
		Accession:   "0000320193-24-000123",
	}
	if err := store.SaveFiling(context.Background(), f); err != nil {
		t.Fatal(err)
	}
	if sess.params["ticker"] != "AAPL" || sess.params["accession"] != f.Accession {
		t.Errorf("params = %v", sess.params)
	}
	if sess.params["filingDate"] != "2024-10-30" {
		t.Errorf("filing date param = %v", sess.params["filingDate"])
	}
	if !sess.closed {
		t.Error("session must be closed")
	}
}

func TestSaveFiling_Error(t *testing.T) {
	sess := &mockSession{runErr: errors.New("connection refused")}
	store := NewWithOpener(&mockOpener{session: sess})

	err := store.SaveFiling(context.Background(), domain.Filing{Accession: "acc"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !sess.closed {
		t.Error("session must be closed on failure")
	}
}

func TestFilingExists(t *testing.T) {
	cases := []struct {
		name  string
		count int64
		want  bool
	}{
		{"present", 1, true},
		{"absent", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess := &mockSession{result: &mockResult{
				records: []*neo4j.Record{record([]string{"n"}, []any{tc.count})},
			}}
			store := NewWithOpener(&mockOpener{session: sess})

			got, err := store.FilingExists(context.Background(), "0000320193-24-000123")
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("exists = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCompany_NotFound(t *testing.T) {
	sess := &mockSession{result: &mockResult{}}
	store := NewWithOpener(&mockOpener{session: sess})

	if _, err := store.Company(context.Background(), "ZZZZ"); err == nil {
		t.Fatal("expected error for unknown ticker")
	}
}

func TestFilings(t *testing.T) {
	sess := &mockSession{result: &mockResult{
		records: []*neo4j.Record{
			record(
				[]string{"accession", "filing_type", "filing_date", "name"},
				[]any{"0000320193-24-000123", "10-K", "2024-10-30", "Apple Inc."},
			),
			record(
				[]string{"accession", "filing_type", "filing_date", "name"},
				[]any{"0000320193-24-000100", "10-Q", "2024-07-15", "Apple Inc."},
			),
		},
	}}
	store := NewWithOpener(&mockOpener{session: sess})

	filings, err := store.Filings(context.Background(), "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if len(filings) != 2 {
		t.Fatalf("got %d filings", len(filings))
	}
	first := filings[0]
	if first.Accession != "0000320193-24-000123" || first.FilingType != "10-K" {
		t.Errorf("first filing = %+v", first)
	}
	if !first.FilingDate.Equal(time.Date(2024, 10, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("filing date = %v", first.FilingDate)
	}
	if first.Ticker != "AAPL" || first.CompanyName != "Apple Inc." {
		t.Errorf("company fields = %+v", first)
	}
}

func TestCountByFilingType(t *testing.T) {
	sess := &mockSession{result: &mockResult{
		records: []*neo4j.Record{
			record([]string{"type", "count"}, []any{"10-K", int64(3)}),
			record([]string{"type", "count"}, []any{"10-Q", int64(7)}),
		},
	}}
	store := NewWithOpener(&mockOpener{session: sess})

	counts, err := store.CountByFilingType(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counts["10-K"] != 3 || counts["10-Q"] != 7 {
		t.Errorf("counts = %v", counts)
	}
}
