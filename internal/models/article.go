package models

import (
	"time"

	"github.com/google/uuid"
)

// Article is the read-only view of a published article that the search core consumes.
type Article struct {
	ID              uuid.UUID  `json:"id"`
	Slug            string     `json:"slug"`
	Title           string     `json:"title"`
	Summary         string     `json:"summary"`
	Body            string     `json:"body"`
	ReadTimeMinutes int        `json:"read_time_minutes"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
}

// IsSearchable reports whether the article is published and not future-dated relative to now.
func (a *Article) IsSearchable(now time.Time) bool {
	return a.PublishedAt != nil && !a.PublishedAt.After(now)
}
