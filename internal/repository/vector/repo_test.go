package vector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gridtech/portfolio/internal/db"
	"github.com/gridtech/portfolio/internal/domain"
	"github.com/gridtech/portfolio/internal/domain/record"
	"github.com/gridtech/portfolio/internal/domain/search"
	"github.com/gridtech/portfolio/internal/vecenc"
)

const testDim = 4

func newTestRepo(s *mockStore) *Repo {
	r := New(s, Config{KeyPrefix: "gridtech:", Dimensions: testDim, HNSWM: 16, HNSWEFConstruct: 200})
	r.now = func() time.Time { return time.Unix(1767225600, 0) }
	return r
}

func vectorField(def *db.IndexDefinition) db.IndexField {
	for _, f := range def.Fields {
		if f.Type == db.IndexFieldVector {
			return f
		}
	}
	return db.IndexField{}
}

func TestIndexName(t *testing.T) {
	r := newTestRepo(&mockStore{})
	if got := r.IndexName(search.CollectionPortfolio); got != "gridtech:portfolio:idx" {
		t.Errorf("IndexName = %q", got)
	}
}

func TestEnsureIndex_CreatesPortfolioOverAllKinds(t *testing.T) {
	var created *db.IndexDefinition
	s := &mockStore{
		createIndexFn: func(_ context.Context, def *db.IndexDefinition) error {
			created = def
			return nil
		},
	}
	r := newTestRepo(s)

	if err := r.EnsureIndex(context.Background(), search.CollectionPortfolio); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if created == nil {
		t.Fatal("expected CreateIndex call")
	}
	want := []string{"gridtech:technology:", "gridtech:pilot:", "gridtech:watchlist:"}
	if len(created.Prefixes) != len(want) {
		t.Fatalf("prefixes = %v, want %v", created.Prefixes, want)
	}
	for i := range want {
		if created.Prefixes[i] != want[i] {
			t.Errorf("prefix[%d] = %q, want %q", i, created.Prefixes[i], want[i])
		}
	}
	if dim := vectorField(created).VectorDim; dim != testDim {
		t.Errorf("dim = %d, want %d", dim, testDim)
	}
}

func TestEnsureIndex_ExistingIsNoop(t *testing.T) {
	s := &mockStore{
		indexExistsFn: func(context.Context, string) (bool, error) { return true, nil },
		createIndexFn: func(context.Context, *db.IndexDefinition) error {
			t.Error("CreateIndex should not be called")
			return nil
		},
	}
	if err := newTestRepo(s).EnsureIndex(context.Background(), search.CollectionPilots); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
}

func TestEnsureIndex_RaceWithConcurrentCreate(t *testing.T) {
	s := &mockStore{
		createIndexFn: func(context.Context, *db.IndexDefinition) error { return db.ErrIndexExists },
	}
	if err := newTestRepo(s).EnsureIndex(context.Background(), search.CollectionPilots); err != nil {
		t.Fatalf("ErrIndexExists should be swallowed, got %v", err)
	}
}

func TestEnsureIndexesForKind(t *testing.T) {
	var names []string
	s := &mockStore{
		createIndexFn: func(_ context.Context, def *db.IndexDefinition) error {
			names = append(names, def.Name)
			return nil
		},
	}
	if err := newTestRepo(s).EnsureIndexesForKind(context.Background(), record.KindWatchlist); err != nil {
		t.Fatalf("EnsureIndexesForKind: %v", err)
	}
	if len(names) != 2 || names[0] != "gridtech:watchlist:idx" || names[1] != "gridtech:portfolio:idx" {
		t.Errorf("created = %v", names)
	}
}

func TestUpsert_WritesHash(t *testing.T) {
	var gotKey string
	var gotFields map[string]string
	s := &mockStore{
		hsetFn: func(_ context.Context, key string, fields map[string]string) error {
			gotKey, gotFields = key, fields
			return nil
		},
	}
	vec := []float32{0.1, 0.2, 0.3, 0.4}
	err := newTestRepo(s).Upsert(context.Background(), record.Embedded{
		Kind: record.KindPilot, ID: "p1", Title: "Substation Battery Pilot",
		Content: "Pilot: Substation Battery Pilot", Vector: vec, Model: "text-embedding-3-small",
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if gotKey != "gridtech:pilot:p1" {
		t.Errorf("key = %q", gotKey)
	}
	if gotFields["source"] != "pilot" || gotFields["record_id"] != "p1" || gotFields["embedded_at"] != "1767225600" {
		t.Errorf("fields = %v", gotFields)
	}
	if gotFields["vector"] != string(vecenc.Encode(vec)) {
		t.Error("vector field is not the little-endian float32 blob")
	}
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	s := &mockStore{
		hsetFn: func(context.Context, string, map[string]string) error {
			t.Error("HSet should not be called")
			return nil
		},
	}
	err := newTestRepo(s).Upsert(context.Background(), record.Embedded{
		Kind: record.KindPilot, ID: "p1", Vector: []float32{0.1, 0.2},
	})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestSearchKNN_MapsEntries(t *testing.T) {
	var gotQuery *db.KNNQuery
	s := &mockStore{
		searchKNNFn: func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
			gotQuery = q
			return &db.SearchResult{Total: 2, Entries: []db.SearchEntry{
				{
					Key:   "gridtech:technology:t1",
					Score: 0.91,
					Fields: map[string]string{
						"source": "technology", "record_id": "t1",
						"title": "Hydrogen Storage Cell", "content": "Technology: Hydrogen Storage Cell",
					},
				},
				{
					Key:    "gridtech:watchlist:w9",
					Score:  0.6,
					Fields: map[string]string{"title": "Grid Sensor"},
				},
			}}, nil
		},
	}
	results, err := newTestRepo(s).SearchKNN(context.Background(), search.CollectionPortfolio, []float32{1, 0, 0, 0}, 20)
	if err != nil {
		t.Fatalf("SearchKNN: %v", err)
	}
	if gotQuery.IndexName != "gridtech:portfolio:idx" || gotQuery.K != 20 {
		t.Errorf("query = %+v", gotQuery)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	first := results[0]
	if first.Source != record.KindTechnology || first.ID != "t1" || first.Similarity != 0.91 {
		t.Errorf("first = %+v", first)
	}
	if results[1].Source != record.KindWatchlist || results[1].ID != "w9" {
		t.Errorf("key fallback failed: %+v", results[1])
	}
}

func TestSearchKNN_BackendErrorIsUnavailable(t *testing.T) {
	s := &mockStore{
		searchKNNFn: func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
			return nil, &db.Error{Op: db.OpSearch, Err: db.ErrIndexNotFound}
		},
	}
	_, err := newTestRepo(s).SearchKNN(context.Background(), search.CollectionPilots, []float32{1, 0, 0, 0}, 10)

	var su *domain.SearchUnavailable
	if !errors.As(err, &su) {
		t.Fatalf("expected *SearchUnavailable, got %v", err)
	}
	if su.Collection != "pilots" {
		t.Errorf("collection = %q", su.Collection)
	}
	if !errors.Is(err, db.ErrIndexNotFound) {
		t.Error("cause should be preserved")
	}
}

func TestSearchKNN_EmptyIndex(t *testing.T) {
	results, err := newTestRepo(&mockStore{}).SearchKNN(context.Background(), search.CollectionWatchlist, []float32{1, 0, 0, 0}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %v", results)
	}
}

func TestDelete(t *testing.T) {
	var gotKey string
	s := &mockStore{delFn: func(_ context.Context, key string) error { gotKey = key; return nil }}
	if err := newTestRepo(s).Delete(context.Background(), record.KindTechnology, "t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if gotKey != "gridtech:technology:t1" {
		t.Errorf("key = %q", gotKey)
	}
}

func TestRebuildIndexes_DropsThenRecreatesEveryCollection(t *testing.T) {
	var calls []string
	s := &mockStore{
		dropIndexFn: func(_ context.Context, name string) error {
			calls = append(calls, "drop "+name)
			if name == "gridtech:watchlist:idx" {
				return db.ErrIndexNotFound
			}
			return nil
		},
		createIndexFn: func(_ context.Context, def *db.IndexDefinition) error {
			calls = append(calls, "create "+def.Name)
			if dim := vectorField(def).VectorDim; dim != testDim {
				t.Errorf("%s dim = %d, want %d", def.Name, dim, testDim)
			}
			return nil
		},
	}

	if err := newTestRepo(s).RebuildIndexes(context.Background()); err != nil {
		t.Fatalf("RebuildIndexes: %v", err)
	}

	want := []string{
		"drop gridtech:technologies:idx",
		"drop gridtech:pilots:idx",
		"drop gridtech:watchlist:idx",
		"drop gridtech:portfolio:idx",
		"create gridtech:technologies:idx",
		"create gridtech:pilots:idx",
		"create gridtech:watchlist:idx",
		"create gridtech:portfolio:idx",
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestRebuildIndexes_DropErrorAborts(t *testing.T) {
	boom := errors.New("connection refused")
	s := &mockStore{
		dropIndexFn: func(context.Context, string) error { return boom },
		createIndexFn: func(context.Context, *db.IndexDefinition) error {
			t.Error("CreateIndex should not be called")
			return nil
		},
	}

	err := newTestRepo(s).RebuildIndexes(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected drop error, got %v", err)
	}
}
