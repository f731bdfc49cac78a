package retrieval

import (
	"fmt"
	"strings"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
)

// Filter is a predicate over chunk metadata. Filters compose with And, so a
// query's constraints become one tree evaluated per candidate.
type Filter interface {
	Match(meta domain.ChunkMeta) bool
	String() string
}

// TickerEquals matches chunks from one company, case-insensitively.
type TickerEquals string

func (f TickerEquals) Match(meta domain.ChunkMeta) bool {
	return strings.EqualFold(meta.Ticker, string(f))
}

func (f TickerEquals) String() string { return fmt.Sprintf("ticker=%s", string(f)) }

// FilingTypeEquals matches chunks from one form type, e.g. "10-K".
type FilingTypeEquals string

func (f FilingTypeEquals) Match(meta domain.ChunkMeta) bool {
	return strings.EqualFold(meta.FilingType, string(f))
}

func (f FilingTypeEquals) String() string { return fmt.Sprintf("filing_type=%s", string(f)) }

// DateInRange matches chunks whose filing date falls inside the closed range.
// Open bounds are allowed on either side.
type DateInRange domain.DateRange

func (f DateInRange) Match(meta domain.ChunkMeta) bool {
	return domain.DateRange(f).Contains(meta.FilingDate)
}

func (f DateInRange) String() string {
	r := domain.DateRange(f)
	const layout = "2006-01-02"
	switch {
	case r.From.IsZero():
		return fmt.Sprintf("date<=%s", r.To.Format(layout))
	case r.To.IsZero():
		return fmt.Sprintf("date>=%s", r.From.Format(layout))
	default:
		return fmt.Sprintf("date=%s..%s", r.From.Format(layout), r.To.Format(layout))
	}
}

// And matches only when every member matches. An empty And matches
// everything.
type And []Filter

func (f And) Match(meta domain.ChunkMeta) bool {
	for _, sub := range f {
		if !sub.Match(meta) {
			return false
		}
	}
	return true
}

func (f And) String() string {
	parts := make([]string, len(f))
	for i, sub := range f {
		parts[i] = sub.String()
	}
	return strings.Join(parts, " AND ")
}

// FromQuery builds the filter tree for a query. Returns nil when the query
// carries no metadata constraints, which callers treat as match-all.
func FromQuery(q domain.Query) Filter {
	var conds And
	if q.Ticker != "" {
		conds = append(conds, TickerEquals(q.Ticker))
	}
	if q.FilingType != "" {
		conds = append(conds, FilingTypeEquals(q.FilingType))
	}
	if !q.Dates.IsZero() {
		conds = append(conds, DateInRange(q.Dates))
	}
	if len(conds) == 0 {
		return nil
	}
	return conds
}
