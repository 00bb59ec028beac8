package cluster

import (
	"time"

	"github.com/lorekeep/lorekeep-engine/pkg/models"
)

// ResolveEventTime derives a note's canonical timestamp for clustering.
// Priority: explicit event annotation > published time > ingestion time.
// Returns nil only when none exist; such a member still participates in
// membership and timeline views but never in clustering.
func ResolveEventTime(note *models.Note) *time.Time {
	if note == nil {
		return nil
	}
	if note.EventTime != nil {
		return note.EventTime
	}
	if note.PublishedAt != nil {
		return note.PublishedAt
	}
	if !note.CreatedAt.IsZero() {
		t := note.CreatedAt
		return &t
	}
	return nil
}
