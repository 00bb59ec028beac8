package models

import (
	"time"

	"github.com/google/uuid"
)

// Note is a saved document owned by a single user. The aggregation engine
// reads notes but never writes them; note CRUD lives elsewhere.
type Note struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	Title       string     `json:"title"`
	Excerpt     string     `json:"excerpt"`
	Body        string     `json:"body"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	EventTime   *time.Time `json:"event_time,omitempty"` // explicit event annotation
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
