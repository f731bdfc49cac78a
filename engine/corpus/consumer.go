package corpus

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
	"github.com/sohailshk/SEC-Filings-QA-Agent/pkg/natsutil"
)

const (
	// IngestSubject is the NATS subject for incoming filing documents.
	IngestSubject = "filings.ingest"
	// DLQSubject is the dead letter queue subject for failed documents.
	DLQSubject = "filings.ingest.dlq"
	// MaxRetries before a document is sent to the DLQ.
	MaxRetries = 3
)

// dlqMessage is published to the DLQ when a document is given up on.
type dlqMessage struct {
	Document domain.Document `json:"document"`
	Error    string          `json:"error"`
	Retries  int             `json:"retries"`
}

// StartConsumer subscribes the manager to the ingestion subject. Handler
// contexts derive from ctx, so canceling it stops in-flight ingests on
// shutdown. Failed documents are requeued with a bumped retry counter;
// documents that fail validation or exhaust their retries go to the DLQ
// instead, so one broken filing cannot loop forever.
func (m *Manager) StartConsumer(ctx context.Context, nc *nats.Conn) (*nats.Subscription, error) {
	return natsutil.Subscribe(ctx, nc, IngestSubject, func(ctx context.Context, doc domain.Document, retries int) {
		report, err := m.Ingest(ctx, doc)
		if err == nil {
			if report.Duplicate {
				return
			}
			m.log.Info("consumed filing",
				"doc_id", report.DocID,
				"chunks", report.ChunksIndexed)
			return
		}

		m.log.Error("ingest failed",
			"doc_id", doc.ID(),
			"retry", retries,
			"error", err)

		// Validation failures are permanent; retrying cannot fix them.
		permanent := errors.Is(err, domain.ErrInvalidFiling)
		if permanent || retries+1 >= MaxRetries {
			dlq := dlqMessage{Document: doc, Error: err.Error(), Retries: retries}
			if pubErr := natsutil.Publish(ctx, nc, DLQSubject, dlq); pubErr != nil {
				m.log.Error("DLQ publish failed", "doc_id", doc.ID(), "error", pubErr)
			}
			return
		}

		if pubErr := natsutil.PublishRetry(ctx, nc, IngestSubject, doc, retries+1); pubErr != nil {
			m.log.Error("retry publish failed", "doc_id", doc.ID(), "error", pubErr)
		}
	})
}
