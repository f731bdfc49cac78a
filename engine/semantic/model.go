package semantic

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
)

// payloadDateLayout is how filing dates are stored in point payloads.
// Lexicographic order matches chronological order, so range filters on the
// raw string are correct.
const payloadDateLayout = "2006-01-02"

// VectorRecord is a single embedded chunk ready for upsert.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any
}

// SearchResult is one remote similarity hit with its filing payload.
type SearchResult struct {
	ID      string  `json:"id"`
	Score   float32 `json:"score"`
	Content string  `json:"content"`
	DocID   string  `json:"doc_id"`
	Meta    map[string]string
}

// PointID derives a stable UUID for a chunk so re-ingesting the same filing
// overwrites its points instead of duplicating them.
func PointID(docID string, chunkID int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s#%d", docID, chunkID))).String()
}

// RecordFromChunk packages an embedded chunk into an upsertable record.
func RecordFromChunk(c domain.Chunk, embedding []float32) VectorRecord {
	return VectorRecord{
		ID:        PointID(c.DocID, c.ID),
		Embedding: embedding,
		Payload: map[string]any{
			"content":      c.Text,
			"doc_id":       c.DocID,
			"chunk_id":     c.ID,
			"start":        c.Start,
			"ticker":       c.Meta.Ticker,
			"company_name": c.Meta.CompanyName,
			"filing_type":  c.Meta.FilingType,
			"filing_date":  c.Meta.FilingDate.Format(payloadDateLayout),
			"accession":    c.Meta.Accession,
			"section":      c.Meta.Section,
		},
	}
}

// Chunk reconstructs the chunk carried in a search result payload. Fields
// missing from the payload come back zero valued.
func (r SearchResult) Chunk() domain.Chunk {
	date, _ := time.Parse(payloadDateLayout, r.Meta["filing_date"])
	var chunkID, start int
	fmt.Sscanf(r.Meta["chunk_id"], "%d", &chunkID)
	fmt.Sscanf(r.Meta["start"], "%d", &start)
	return domain.Chunk{
		ID:    chunkID,
		DocID: r.DocID,
		Start: start,
		Text:  r.Content,
		Meta: domain.ChunkMeta{
			Ticker:      r.Meta["ticker"],
			CompanyName: r.Meta["company_name"],
			FilingType:  r.Meta["filing_type"],
			FilingDate:  date,
			Accession:   r.Meta["accession"],
			Section:     r.Meta["section"],
		},
	}
}
