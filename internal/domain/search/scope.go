// Package search holds the value types of portfolio similarity search.
package search

import "github.com/gridtech/portfolio/internal/domain/record"

// Scope is the data-scope tag sent by the UI.
type Scope string

// Scopes understood by the search service.
const (
	ScopeFullPortfolio      Scope = "full-portfolio"
	ScopePilotsOnly         Scope = "pilots-only"
	ScopeTechnologyLibrary  Scope = "technology-library"
	ScopeRiskRegister       Scope = "risk-register"
	ScopeMarketIntelligence Scope = "market-intelligence"
)

// Collection is a searchable vector collection.
type Collection string

// Vector collections. CollectionPortfolio spans every record kind.
const (
	CollectionPortfolio    Collection = "portfolio"
	CollectionPilots       Collection = "pilots"
	CollectionTechnologies Collection = "technologies"
	CollectionWatchlist    Collection = "watchlist"
)

var scopeCollections = map[Scope]Collection{
	ScopeFullPortfolio:      CollectionPortfolio,
	ScopePilotsOnly:         CollectionPilots,
	ScopeTechnologyLibrary:  CollectionTechnologies,
	ScopeRiskRegister:       CollectionWatchlist,
	ScopeMarketIntelligence: CollectionWatchlist,
}

var collectionKinds = map[Collection][]record.Kind{
	CollectionPortfolio:    record.Kinds,
	CollectionPilots:       {record.KindPilot},
	CollectionTechnologies: {record.KindTechnology},
	CollectionWatchlist:    {record.KindWatchlist},
}

// Collections lists every collection in index-creation order.
var Collections = []Collection{
	CollectionTechnologies, CollectionPilots, CollectionWatchlist, CollectionPortfolio,
}

// Normalize maps unknown or empty scopes to ScopeFullPortfolio.
func (s Scope) Normalize() Scope {
	if _, ok := scopeCollections[s]; ok {
		return s
	}
	return ScopeFullPortfolio
}

// Known reports whether s has an explicit dispatch entry.
func (s Scope) Known() bool {
	_, ok := scopeCollections[s]
	return ok
}

// Collection returns the collection backing the scope; unknown scopes fall back
// to the full portfolio so that a stale UI never breaks search.
func (s Scope) Collection() Collection {
	return scopeCollections[s.Normalize()]
}

// Kinds returns the record kinds a collection covers.
func (c Collection) Kinds() []record.Kind {
	return collectionKinds[c]
}

// CollectionsForKind returns every collection that indexes records of kind k.
func CollectionsForKind(k record.Kind) []Collection {
	var out []Collection
	for _, c := range Collections {
		for _, ck := range collectionKinds[c] {
			if ck == k {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
