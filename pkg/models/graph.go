package models

import (
	"time"

	"github.com/google/uuid"
)

// Entity kinds form a closed vocabulary. Extraction output with any other
// kind is rejected during strict parsing.
const (
	EntityKindPerson       = "person"
	EntityKindOrganization = "organization"
	EntityKindPlace        = "place"
	EntityKindEvent        = "event"
	EntityKindTechnology   = "technology"
	EntityKindCreativeWork = "creative-work"
)

// ValidEntityKind reports whether kind belongs to the closed vocabulary.
func ValidEntityKind(kind string) bool {
	switch kind {
	case EntityKindPerson, EntityKindOrganization, EntityKindPlace,
		EntityKindEvent, EntityKindTechnology, EntityKindCreativeWork:
		return true
	}
	return false
}

// GraphEntity is a named thing extracted from a user's notes.
// Stored in the graph_entities table.
type GraphEntity struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Aliases   []string  `json:"aliases,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GraphRelationship links two entities with a labeled relation and the
// evidence snippet that supports it. Stored in graph_relationships.
type GraphRelationship struct {
	ID             uuid.UUID `json:"id"`
	OwnerID        uuid.UUID `json:"owner_id"`
	SourceEntityID uuid.UUID `json:"source_entity_id"`
	TargetEntityID uuid.UUID `json:"target_entity_id"`
	Relation       string    `json:"relation"`
	Evidence       string    `json:"evidence"`
	NoteID         uuid.UUID `json:"note_id"`
	CreatedAt      time.Time `json:"created_at"`
}
