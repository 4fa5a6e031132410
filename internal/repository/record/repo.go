// Package record persists portfolio records and their derived embedding fields in SQL via gorm.
package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gridtech/portfolio/internal/domain"
	domrec "github.com/gridtech/portfolio/internal/domain/record"
	"github.com/gridtech/portfolio/internal/vecenc"
)

// Repo reads records and writes back content_for_search and embedding.
type Repo struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens a sqlite database (pure-Go driver). It never touches the schema; call
// Migrate for that.
func Open(dsn string) (*Repo, error) {
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	return New(gdb), nil
}

// New wraps an existing gorm handle.
func New(gdb *gorm.DB) *Repo {
	return &Repo{db: gdb, now: time.Now}
}

// Migrate creates the record tables when absent. Existing columns are never dropped.
func (r *Repo) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&TechnologyRow{}, &PilotRow{}, &WatchlistRow{}); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping records: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Repo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	return sqlDB.Close()
}

// List returns every record of kind, ordered by id.
func (r *Repo) List(ctx context.Context, kind domrec.Kind) ([]domrec.Record, error) {
	q := r.db.WithContext(ctx).Order("id asc")

	switch kind {
	case domrec.KindTechnology:
		var rows []TechnologyRow
		if err := q.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("list technologies: %w", err)
		}
		out := make([]domrec.Record, len(rows))
		for i := range rows {
			out[i] = rows[i].toDomain()
		}
		return out, nil

	case domrec.KindPilot:
		var rows []PilotRow
		if err := q.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("list pilots: %w", err)
		}
		out := make([]domrec.Record, len(rows))
		for i := range rows {
			out[i] = rows[i].toDomain()
		}
		return out, nil

	case domrec.KindWatchlist:
		var rows []WatchlistRow
		if err := q.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("list market_watchlist: %w", err)
		}
		out := make([]domrec.Record, len(rows))
		for i := range rows {
			out[i] = rows[i].toDomain()
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
}

// Get returns one record or domain.ErrRecordNotFound.
func (r *Repo) Get(ctx context.Context, kind domrec.Kind, id string) (domrec.Record, error) {
	q := r.db.WithContext(ctx)

	var (
		rec domrec.Record
		err error
	)
	switch kind {
	case domrec.KindTechnology:
		var row TechnologyRow
		err = q.First(&row, "id = ?", id).Error
		rec = row.toDomain()
	case domrec.KindPilot:
		var row PilotRow
		err = q.First(&row, "id = ?", id).Error
		rec = row.toDomain()
	case domrec.KindWatchlist:
		var row WatchlistRow
		err = q.First(&row, "id = ?", id).Error
		rec = row.toDomain()
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s %s: %w", kind, id, domain.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return rec, nil
}

// SaveEmbedding writes content_for_search and embedding in one UPDATE so the two can
// never disagree. Failures are *domain.PersistenceFailure.
func (r *Repo) SaveEmbedding(ctx context.Context, e domrec.Embedded) error {
	model, err := modelFor(e.Kind)
	if err != nil {
		return err
	}
	if len(e.Vector) == 0 {
		return &domain.PersistenceFailure{RecordID: e.ID, Err: domain.ErrEmptyInput}
	}

	embeddedAt := r.now().UTC()
	res := r.db.WithContext(ctx).
		Model(model).
		Where("id = ?", e.ID).
		Updates(map[string]any{
			"content_for_search": e.Content,
			"embedding":          vecenc.Encode(e.Vector),
			"embedding_model":    e.Model,
			"embedded_at":        embeddedAt,
		})
	if res.Error != nil {
		return &domain.PersistenceFailure{RecordID: e.ID, Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &domain.PersistenceFailure{RecordID: e.ID, Err: domain.ErrRecordNotFound}
	}
	return nil
}

// StoredEmbedding reads back the derived fields of one record. Vector is empty when
// the record has never been embedded. Title is left to the caller.
func (r *Repo) StoredEmbedding(ctx context.Context, kind domrec.Kind, id string) (domrec.Embedded, error) {
	model, err := modelFor(kind)
	if err != nil {
		return domrec.Embedded{}, err
	}

	var cols EmbeddingColumns
	err = r.db.WithContext(ctx).
		Model(model).
		Select("content_for_search", "embedding", "embedding_model", "embedded_at").
		Where("id = ?", id).
		Take(&cols).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domrec.Embedded{}, fmt.Errorf("%s %s: %w", kind, id, domain.ErrRecordNotFound)
	}
	if err != nil {
		return domrec.Embedded{}, fmt.Errorf("read embedding %s %s: %w", kind, id, err)
	}

	vec, err := vecenc.Decode(cols.Embedding)
	if err != nil {
		return domrec.Embedded{}, fmt.Errorf("decode embedding %s %s: %w", kind, id, err)
	}
	return domrec.Embedded{
		Kind:    kind,
		ID:      id,
		Content: cols.ContentForSearch,
		Vector:  vec,
		Model:   cols.EmbeddingModel,
	}, nil
}

func modelFor(kind domrec.Kind) (any, error) {
	switch kind {
	case domrec.KindTechnology:
		return &TechnologyRow{}, nil
	case domrec.KindPilot:
		return &PilotRow{}, nil
	case domrec.KindWatchlist:
		return &WatchlistRow{}, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
}
