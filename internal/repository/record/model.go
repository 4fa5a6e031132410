package record

import (
	"time"

	domrec "github.com/gridtech/portfolio/internal/domain/record"
)

// EmbeddingColumns are the derived fields owned by the embedding pipeline.
type EmbeddingColumns struct {
	ContentForSearch string     `gorm:"column:content_for_search"`
	Embedding        []byte     `gorm:"column:embedding"` // little-endian float32
	EmbeddingModel   string     `gorm:"column:embedding_model"`
	EmbeddedAt       *time.Time `gorm:"column:embedded_at"`
}

// TechnologyRow maps the technologies table.
type TechnologyRow struct {
	ID          string `gorm:"primaryKey;column:id"`
	TechID      string `gorm:"column:tech_id;index"`
	Title       string `gorm:"column:title;not null"`
	Category    string `gorm:"column:category"`
	Status      string `gorm:"column:status"`
	Description string `gorm:"column:description"`
	Type        string `gorm:"column:type"`
	Benefits    string `gorm:"column:benefits"`
	Risks       string `gorm:"column:risks"`
	EmbeddingColumns
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName implements gorm's Tabler.
func (TechnologyRow) TableName() string { return "technologies" }

func (r *TechnologyRow) toDomain() domrec.Technology {
	return domrec.Technology{
		RecordID:    r.ID,
		TechID:      r.TechID,
		Name:        r.Title,
		Category:    r.Category,
		Status:      r.Status,
		Description: r.Description,
		Type:        r.Type,
		Benefits:    r.Benefits,
		Risks:       r.Risks,
	}
}

// PilotRow maps the pilots table.
type PilotRow struct {
	ID             string `gorm:"primaryKey;column:id"`
	PilotID        string `gorm:"column:pilot_id;index"`
	Title          string `gorm:"column:title;not null"`
	TechnologyID   string `gorm:"column:technology_id;index"`
	Status         string `gorm:"column:status"`
	Sponsor        string `gorm:"column:sponsor"`
	Location       string `gorm:"column:location"`
	StartDate      string `gorm:"column:start_date"`
	Objectives     string `gorm:"column:objectives"`
	LessonsLearned string `gorm:"column:lessons_learned"`
	EmbeddingColumns
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName implements gorm's Tabler.
func (PilotRow) TableName() string { return "pilots" }

func (r *PilotRow) toDomain() domrec.Pilot {
	return domrec.Pilot{
		RecordID:       r.ID,
		PilotID:        r.PilotID,
		Name:           r.Title,
		TechnologyID:   r.TechnologyID,
		Status:         r.Status,
		Sponsor:        r.Sponsor,
		Location:       r.Location,
		StartDate:      r.StartDate,
		Objectives:     r.Objectives,
		LessonsLearned: r.LessonsLearned,
	}
}

// WatchlistRow maps the market_watchlist table.
type WatchlistRow struct {
	ID         string `gorm:"primaryKey;column:id"`
	Technology string `gorm:"column:technology;not null"`
	Vendor     string `gorm:"column:vendor"`
	Signal     string `gorm:"column:signal"`
	Priority   string `gorm:"column:priority"`
	Notes      string `gorm:"column:notes"`
	EmbeddingColumns
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName implements gorm's Tabler.
func (WatchlistRow) TableName() string { return "market_watchlist" }

func (r *WatchlistRow) toDomain() domrec.WatchlistItem {
	return domrec.WatchlistItem{
		RecordID:   r.ID,
		Technology: r.Technology,
		Vendor:     r.Vendor,
		Signal:     r.Signal,
		Priority:   r.Priority,
		Notes:      r.Notes,
	}
}
