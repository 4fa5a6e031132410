package batch

import (
	"context"

	"github.com/gridtech/portfolio/internal/domain"
	"github.com/gridtech/portfolio/internal/domain/record"
)

// RecordReader reads portfolio records from the record store.
type RecordReader interface {
	List(ctx context.Context, kind record.Kind) ([]record.Record, error)
	Get(ctx context.Context, kind record.Kind, id string) (record.Record, error)
	StoredEmbedding(ctx context.Context, kind record.Kind, id string) (record.Embedded, error)
}

// EmbeddingWriter persists the derived fields onto a record row.
type EmbeddingWriter interface {
	SaveEmbedding(ctx context.Context, e record.Embedded) error
}

// VectorIndex maintains the searchable copy of embedded records.
type VectorIndex interface {
	EnsureIndexesForKind(ctx context.Context, kind record.Kind) error
	Upsert(ctx context.Context, e record.Embedded) error
	Delete(ctx context.Context, kind record.Kind, id string) error
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Limiter paces embedding calls. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}
