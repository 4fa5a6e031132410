// Package vector maintains the per-collection FT indexes and the record hashes they cover.
package vector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gridtech/portfolio/internal/db"
	"github.com/gridtech/portfolio/internal/domain"
	"github.com/gridtech/portfolio/internal/domain/record"
	"github.com/gridtech/portfolio/internal/domain/search"
	"github.com/gridtech/portfolio/internal/vecenc"
)

// Hash field names.
const (
	fieldSource     = "source"
	fieldRecordID   = "record_id"
	fieldTitle      = "title"
	fieldContent    = "content"
	fieldModel      = "model"
	fieldEmbeddedAt = "embedded_at"
	fieldVector     = "vector"
)

var returnFields = []string{fieldSource, fieldRecordID, fieldTitle, fieldContent}

// store is the consumer interface for the vector index (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Del(ctx context.Context, key string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Config holds index layout parameters.
type Config struct {
	KeyPrefix       string // e.g. "gridtech:"
	Dimensions      int
	HNSWM           int
	HNSWEFConstruct int
}

// Repo implements the vector side of the batch and search use cases.
type Repo struct {
	store  store
	prefix string
	dim    int
	m      int
	ef     int
	now    func() time.Time
}

// New creates a vector repository.
func New(s store, cfg Config) *Repo {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "gridtech:"
	}
	dim := cfg.Dimensions
	if dim <= 0 {
		dim = domain.DefaultDimensions
	}
	return &Repo{
		store:  s,
		prefix: prefix,
		dim:    dim,
		m:      cfg.HNSWM,
		ef:     cfg.HNSWEFConstruct,
		now:    time.Now,
	}
}

// Dimensions returns the vector dimension every index is created with.
func (r *Repo) Dimensions() int { return r.dim }

// IndexName returns the FT index backing a collection.
func (r *Repo) IndexName(c search.Collection) string {
	return r.prefix + string(c) + ":idx"
}

func (r *Repo) keyPrefix(k record.Kind) string {
	return r.prefix + string(k) + ":"
}

func (r *Repo) key(k record.Kind, id string) string {
	return r.keyPrefix(k) + id
}

func (r *Repo) definition(c search.Collection) (*db.IndexDefinition, error) {
	kinds := c.Kinds()
	if len(kinds) == 0 {
		return nil, fmt.Errorf("unknown collection %q", c)
	}
	prefixes := make([]string, len(kinds))
	for i, k := range kinds {
		prefixes[i] = r.keyPrefix(k)
	}
	def, err := db.NewIndex(r.IndexName(c)).
		Prefix(prefixes...).
		Tag(fieldSource).
		Tag(fieldRecordID).
		Numeric(fieldEmbeddedAt).
		VectorHNSW(fieldVector, r.dim, db.DistanceCosine, r.m, r.ef).
		Build()
	if err != nil {
		return nil, fmt.Errorf("index definition %s: %w", c, err)
	}
	return def, nil
}

// EnsureIndex creates the collection's index when absent. Safe to call repeatedly.
func (r *Repo) EnsureIndex(ctx context.Context, c search.Collection) error {
	name := r.IndexName(c)
	exists, err := r.store.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}
	if exists {
		return nil
	}

	def, err := r.definition(c)
	if err != nil {
		return err
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

// EnsureIndexesForKind ensures every index that covers records of kind k.
func (r *Repo) EnsureIndexesForKind(ctx context.Context, k record.Kind) error {
	for _, c := range search.CollectionsForKind(k) {
		if err := r.EnsureIndex(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// RebuildIndexes drops every collection index and creates it again with the current
// layout. Hashes are kept and re-indexed by the server, so this is the way to apply a
// new dimension or HNSW setting. Search is unavailable until the rebuild finishes.
func (r *Repo) RebuildIndexes(ctx context.Context) error {
	for _, c := range search.Collections {
		name := r.IndexName(c)
		if err := r.store.DropIndex(ctx, name); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
			return fmt.Errorf("drop index %s: %w", name, err)
		}
	}
	for _, c := range search.Collections {
		if err := r.EnsureIndex(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Upsert writes the record hash. Every index whose prefix covers the key picks it up.
// A vector of the wrong dimension is rejected before anything is written.
func (r *Repo) Upsert(ctx context.Context, e record.Embedded) error {
	if err := domain.CheckDimensions(e.Vector, r.dim); err != nil {
		return fmt.Errorf("upsert %s %s: %w", e.Kind, e.ID, err)
	}

	fields := map[string]string{
		fieldSource:     string(e.Kind),
		fieldRecordID:   e.ID,
		fieldTitle:      e.Title,
		fieldContent:    e.Content,
		fieldModel:      e.Model,
		fieldEmbeddedAt: strconv.FormatInt(r.now().Unix(), 10),
		fieldVector:     string(vecenc.Encode(e.Vector)),
	}
	if err := r.store.HSet(ctx, r.key(e.Kind, e.ID), fields); err != nil {
		return fmt.Errorf("upsert %s %s: %w", e.Kind, e.ID, err)
	}
	return nil
}

// Delete removes a record hash from every index.
func (r *Repo) Delete(ctx context.Context, k record.Kind, id string) error {
	if err := r.store.Del(ctx, r.key(k, id)); err != nil {
		return fmt.Errorf("delete %s %s: %w", k, id, err)
	}
	return nil
}

// SearchKNN returns up to k nearest records of the collection, most similar first.
// Backend failures, including a missing index, are *domain.SearchUnavailable.
func (r *Repo) SearchKNN(ctx context.Context, c search.Collection, vec []float32, k int) ([]search.Result, error) {
	if err := domain.CheckDimensions(vec, r.dim); err != nil {
		return nil, fmt.Errorf("search %s: %w", c, err)
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.IndexName(c),
		Vector:       vec,
		K:            k,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, &domain.SearchUnavailable{Collection: string(c), Err: err}
	}
	if sr == nil {
		return nil, nil
	}

	out := make([]search.Result, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		out = append(out, r.toResult(entry))
	}
	return out, nil
}

func (r *Repo) toResult(entry db.SearchEntry) search.Result {
	res := search.Result{
		Source:     record.Kind(entry.Fields[fieldSource]),
		ID:         entry.Fields[fieldRecordID],
		Title:      entry.Fields[fieldTitle],
		Content:    entry.Fields[fieldContent],
		Similarity: entry.Score,
	}
	if res.ID == "" || res.Source == "" {
		// Hashes written without tag fields fall back to the "<prefix><kind>:<id>" key layout.
		rest := strings.TrimPrefix(entry.Key, r.prefix)
		if kind, id, ok := strings.Cut(rest, ":"); ok {
			if res.Source == "" {
				res.Source = record.Kind(kind)
			}
			if res.ID == "" {
				res.ID = id
			}
		}
	}
	return res
}
