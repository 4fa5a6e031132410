// Package record models the portfolio records that feed the semantic index.
package record

import (
	"fmt"

	"github.com/gridtech/portfolio/internal/domain"
)

// Kind identifies the record type and its vector collection.
type Kind string

// Record kinds in the portfolio.
const (
	KindTechnology Kind = "technology"
	KindPilot      Kind = "pilot"
	KindWatchlist  Kind = "watchlist"
)

// Kinds lists every kind in batch order.
var Kinds = []Kind{KindTechnology, KindPilot, KindWatchlist}

// ParseKind converts a CLI/HTTP value into a Kind. Plural table-style names are accepted.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "technology", "technologies":
		return KindTechnology, nil
	case "pilot", "pilots":
		return KindPilot, nil
	case "watchlist", "market_watchlist":
		return KindWatchlist, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownKind, s)
	}
}

// Record is the common view the embedding pipeline needs from any kind.
type Record interface {
	Kind() Kind
	ID() string
	Title() string
	Fields() []Field
}

// Technology is an entry in the technology library.
type Technology struct {
	RecordID    string
	TechID      string
	Name        string
	Category    string
	Status      string
	Description string
	Type        string
	Benefits    string
	Risks       string
}

// Kind implements Record.
func (t Technology) Kind() Kind { return KindTechnology }

// ID implements Record.
func (t Technology) ID() string { return t.RecordID }

// Title implements Record.
func (t Technology) Title() string { return t.Name }

// Fields implements Record.
func (t Technology) Fields() []Field {
	return []Field{
		Required("Technology", t.Name),
		Required("Category", t.Category),
		Required("Status", t.Status),
		Required("Description", t.Description),
		Optional("Type", t.Type),
		Optional("Benefits", t.Benefits),
		Optional("Risks", t.Risks),
	}
}

// Pilot is a field pilot of a technology.
type Pilot struct {
	RecordID       string
	PilotID        string
	Name           string
	TechnologyID   string
	Status         string
	Sponsor        string
	Location       string
	StartDate      string
	Objectives     string
	LessonsLearned string
}

// Kind implements Record.
func (p Pilot) Kind() Kind { return KindPilot }

// ID implements Record.
func (p Pilot) ID() string { return p.RecordID }

// Title implements Record.
func (p Pilot) Title() string { return p.Name }

// Fields implements Record. StartDate is not part of the searchable content.
func (p Pilot) Fields() []Field {
	return []Field{
		Required("Pilot", p.Name),
		Required("Technology ID", p.TechnologyID),
		Required("Status", p.Status),
		Optional("Sponsor", p.Sponsor),
		Optional("Location", p.Location),
		Optional("Objectives", p.Objectives),
		Optional("Lessons Learned", p.LessonsLearned),
	}
}

// WatchlistItem is a market-intelligence signal about a vendor technology.
type WatchlistItem struct {
	RecordID   string
	Technology string
	Vendor     string
	Signal     string
	Priority   string
	Notes      string
}

// Kind implements Record.
func (w WatchlistItem) Kind() Kind { return KindWatchlist }

// ID implements Record.
func (w WatchlistItem) ID() string { return w.RecordID }

// Title implements Record.
func (w WatchlistItem) Title() string { return w.Technology }

// Fields implements Record.
func (w WatchlistItem) Fields() []Field {
	return []Field{
		Required("Technology", w.Technology),
		Required("Vendor", w.Vendor),
		Required("Signal", w.Signal),
		Required("Priority", w.Priority),
		Optional("Notes", w.Notes),
	}
}

// Embedded holds the derived fields written back onto a record. Content and Vector are
// always produced together from the same formatter output.
type Embedded struct {
	Kind    Kind
	ID      string
	Title   string
	Content string
	Vector  []float32
	Model   string
}
