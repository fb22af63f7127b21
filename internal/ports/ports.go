// Package ports declares the interfaces the orchestrator and the worker
// depend on. Concrete adapters live in s3storage, cache, repository, queue,
// inference and notify; mocks are generated into internal/mocks.
package ports

import (
	"context"

	"github.com/dharsanguruparan/ReceiptDrop/internal/model"
	"github.com/dharsanguruparan/ReceiptDrop/internal/queue"
)

// ObjectStore is the durable origin of receipt images.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	PresignURL(ctx context.Context, key string) (string, error)
}

// ImageCache never fails its callers; a miss and a broken backend look the
// same.
type ImageCache interface {
	Get(ctx context.Context, extractionID string) ([]byte, bool)
	Set(ctx context.Context, extractionID string, data []byte)
	Delete(ctx context.Context, extractionID string)
}

// ExtractionStore persists extraction records. Mark* methods enforce the
// model transition table and return the updated record.
type ExtractionStore interface {
	Create(ctx context.Context, e *model.Extraction) error
	Get(ctx context.Context, id, userID string) (*model.Extraction, error)
	List(ctx context.Context, userID string) ([]*model.Extraction, error)
	MarkExtracting(ctx context.Context, id string) (*model.Extraction, error)
	MarkExtracted(ctx context.Context, id string, data model.ReceiptData) (*model.Extraction, error)
	MarkInvalid(ctx context.Context, id, reason string) (*model.Extraction, error)
	MarkFailed(ctx context.Context, id, reason string) (*model.Extraction, error)
	Delete(ctx context.Context, id, userID string) (bool, error)
}

// Extractor sends one image to the vision model and returns the message
// content of its reply.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (string, error)
}

// JobQueue enqueues and neutralizes extraction jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, payload queue.Payload) (string, error)
	Cancel(ctx context.Context, extractionID string) (*queue.Located, error)
}

// Notifier pushes the current record to the owner's live connections.
type Notifier interface {
	EmitUpdate(ctx context.Context, e *model.Extraction)
}
