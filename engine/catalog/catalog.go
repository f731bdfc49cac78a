// Package catalog records which filings have been ingested. Companies and
// filings live in Neo4j as a small graph, which the API exposes for catalog
// queries and which ingestion consults to skip duplicates.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
)

// CypherResult iterates the records of one query.
type CypherResult interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// CypherSession runs queries on one session.
type CypherSession interface {
	Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error)
	Close(ctx context.Context) error
}

// SessionOpener opens sessions. The production opener wraps the Neo4j
// driver; tests substitute their own.
type SessionOpener interface {
	OpenSession(ctx context.Context) CypherSession
}

type driverSession struct {
	sess neo4j.SessionWithContext
}

func (s driverSession) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	result, err := s.sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s driverSession) Close(ctx context.Context) error { return s.sess.Close(ctx) }

type driverOpener struct {
	driver neo4j.DriverWithContext
}

func (o driverOpener) OpenSession(ctx context.Context) CypherSession {
	return driverSession{sess: o.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

// dateLayout is how filing dates are stored on Filing nodes.
const dateLayout = "2006-01-02"

// Store provides catalog operations.
type Store struct {
	opener SessionOpener
}

// New creates a Store over a Neo4j driver.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{opener: driverOpener{driver: driver}}
}

// NewWithOpener creates a Store over a custom session opener. Used in tests.
func NewWithOpener(opener SessionOpener) *Store {
	return &Store{opener: opener}
}

// SaveFiling records a filing and its company. Both merges key on stable
// identifiers, so re-saving the same filing is idempotent.
func (s *Store) SaveFiling(ctx context.Context, f domain.Filing) error {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MERGE (c:Company {ticker: $ticker})
	           SET c.name = $name
	           MERGE (f:Filing {accession: $accession})
	           SET f.filing_type = $filingType, f.filing_date = $filingDate, f.doc_id = $docID
	           MERGE (c)-[:FILED]->(f)`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"ticker":     f.Ticker,
		"name":       f.CompanyName,
		"accession":  f.Accession,
		"filingType": f.FilingType,
		"filingDate": f.FilingDate.Format(dateLayout),
		"docID":      f.ID(),
	})
	if err != nil {
		return fmt.Errorf("catalog: save filing %s: %w", f.Accession, err)
	}
	return nil
}

// FilingExists reports whether a filing with this accession number was
// already ingested.
func (s *Store) FilingExists(ctx context.Context, accession string) (bool, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (f:Filing {accession: $accession}) RETURN count(f) AS n`
	result, err := sess.Run(ctx, cypher, map[string]any{"accession": accession})
	if err != nil {
		return false, fmt.Errorf("catalog: filing exists %s: %w", accession, err)
	}
	if !result.Next(ctx) {
		return false, result.Err()
	}
	n, _ := result.Record().Get("n")
	count, ok := n.(int64)
	return ok && count > 0, nil
}

// Company returns the company node for a ticker.
func (s *Store) Company(ctx context.Context, ticker string) (domain.Company, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (c:Company {ticker: $ticker}) RETURN c.ticker AS ticker, c.name AS name`
	result, err := sess.Run(ctx, cypher, map[string]any{"ticker": ticker})
	if err != nil {
		return domain.Company{}, fmt.Errorf("catalog: company %s: %w", ticker, err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return domain.Company{}, err
		}
		return domain.Company{}, fmt.Errorf("catalog: company %s: not found", ticker)
	}
	rec := result.Record()
	c := domain.Company{Ticker: ticker}
	if v, ok := rec.Get("name"); ok {
		c.Name, _ = v.(string)
	}
	return c, nil
}

// Filings lists a company's ingested filings, most recent first.
func (s *Store) Filings(ctx context.Context, ticker string) ([]domain.Filing, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (c:Company {ticker: $ticker})-[:FILED]->(f:Filing)
	           RETURN f.accession AS accession, f.filing_type AS filing_type,
	                  f.filing_date AS filing_date, c.name AS name
	           ORDER BY f.filing_date DESC`
	result, err := sess.Run(ctx, cypher, map[string]any{"ticker": ticker})
	if err != nil {
		return nil, fmt.Errorf("catalog: filings for %s: %w", ticker, err)
	}

	var filings []domain.Filing
	for result.Next(ctx) {
		rec := result.Record()
		f := domain.Filing{Ticker: ticker}
		if v, ok := rec.Get("accession"); ok {
			f.Accession, _ = v.(string)
		}
		if v, ok := rec.Get("filing_type"); ok {
			f.FilingType, _ = v.(string)
		}
		if v, ok := rec.Get("name"); ok {
			f.CompanyName, _ = v.(string)
		}
		if v, ok := rec.Get("filing_date"); ok {
			if s, okStr := v.(string); okStr {
				f.FilingDate, _ = time.Parse(dateLayout, s)
			}
		}
		filings = append(filings, f)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("catalog: filings for %s: %w", ticker, err)
	}
	return filings, nil
}

// CountByFilingType returns ingested filing counts grouped by form type.
func (s *Store) CountByFilingType(ctx context.Context) (map[string]int64, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (f:Filing) RETURN f.filing_type AS type, count(*) AS count`
	result, err := sess.Run(ctx, cypher, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: count by filing type: %w", err)
	}
	counts := make(map[string]int64)
	for result.Next(ctx) {
		rec := result.Record()
		typ, _ := rec.Get("type")
		cnt, _ := rec.Get("count")
		if t, ok := typ.(string); ok {
			if c, ok := cnt.(int64); ok {
				counts[t] = c
			}
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("catalog: count by filing type: %w", err)
	}
	return counts, nil
}

// DeleteFiling removes a filing node, e.g. before re-ingesting a corrected
// version. The company node stays.
func (s *Store) DeleteFiling(ctx context.Context, accession string) error {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (f:Filing {accession: $accession}) DETACH DELETE f`
	_, err := sess.Run(ctx, cypher, map[string]any{"accession": accession})
	if err != nil {
		return fmt.Errorf("catalog: delete filing %s: %w", accession, err)
	}
	return nil
}
