package chunker

import (
	"regexp"
	"sort"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
)

// SectionExtractor locates one named filing section in full-document text.
// One extractor per section keeps the chunker free of per-section branching;
// policies are registered in a lookup table keyed by item ID.
type SectionExtractor interface {
	// ID is the section identifier, e.g. "1A".
	ID() string
	// Name is the display name attached to chunk metadata.
	Name() string
	// Locate returns the start offset of the section heading, or -1.
	Locate(text string) int
}

// itemExtractor matches the standard "ITEM N." heading style of annual and
// quarterly reports.
type itemExtractor struct {
	id      string
	name    string
	heading *regexp.Regexp
}

func (e itemExtractor) ID() string   { return e.id }
func (e itemExtractor) Name() string { return e.name }

func (e itemExtractor) Locate(text string) int {
	loc := e.heading.FindStringIndex(text)
	if loc == nil {
		return -1
	}
	return loc[0]
}

func newItem(id, name, pattern string) SectionExtractor {
	return itemExtractor{id: id, name: name, heading: regexp.MustCompile(`(?i)` + pattern)}
}

// registry holds the known section policies in filing order.
var registry = []SectionExtractor{
	newItem("1", "Item 1 - Business", `ITEM\s+1\.\s+BUSINESS`),
	newItem("1A", "Item 1A - Risk Factors", `ITEM\s+1A\.\s+RISK\s+FACTORS`),
	newItem("2", "Item 2 - Properties", `ITEM\s+2\.\s+PROPERTIES`),
	newItem("3", "Item 3 - Legal Proceedings", `ITEM\s+3\.\s+LEGAL\s+PROCEEDINGS`),
	newItem("5", "Item 5 - Market for Securities", `ITEM\s+5\.\s+MARKET\s+FOR`),
	newItem("7", "Item 7 - MD&A", `ITEM\s+7\.\s+MANAGEMENT'?S\s+DISCUSSION`),
	newItem("7A", "Item 7A - Market Risk", `ITEM\s+7A\.\s+QUANTITATIVE\s+AND\s+QUALITATIVE`),
	newItem("8", "Item 8 - Financial Statements", `ITEM\s+8\.\s+FINANCIAL\s+STATEMENTS`),
	newItem("9A", "Item 9A - Controls and Procedures", `ITEM\s+9A\.\s+CONTROLS`),
	newItem("10", "Item 10 - Directors and Officers", `ITEM\s+10\.\s+DIRECTORS`),
	newItem("11", "Item 11 - Executive Compensation", `ITEM\s+11\.\s+EXECUTIVE\s+COMPENSATION`),
	newItem("15", "Item 15 - Exhibits", `ITEM\s+15\.\s+EXHIBITS`),
}

// Register adds a custom section policy. Intended for filing forms whose
// headings the built-in table does not cover.
func Register(e SectionExtractor) {
	registry = append(registry, e)
}

// ExtractSections splits cleaned full-filing text into named sections using
// the registered policies. Text before the first recognised heading is
// dropped; unrecognised text between headings belongs to the preceding
// section. Returns nil when no heading matches.
func ExtractSections(text string) []domain.Section {
	type located struct {
		name  string
		start int
	}
	var found []located
	for _, e := range registry {
		if pos := e.Locate(text); pos >= 0 {
			found = append(found, located{name: e.Name(), start: pos})
		}
	}
	if len(found) == 0 {
		return nil
	}
	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })

	sections := make([]domain.Section, 0, len(found))
	for i, f := range found {
		end := len(text)
		if i+1 < len(found) {
			end = found[i+1].start
		}
		sections = append(sections, domain.Section{
			Name: f.name,
			Text: text[f.start:end],
		})
	}
	return sections
}
