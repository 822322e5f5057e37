package models

import (
	"time"

	"github.com/google/uuid"
)

// Embedding represents one embedding row: at most one vector per article.
// A row whose Model differs from the configured model is stale and ignored at query time.
type Embedding struct {
	ArticleID uuid.UUID `json:"article_id"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
