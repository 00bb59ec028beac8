package models

import (
	"time"

	"github.com/google/uuid"
)

// Member source constants. Automatic ingestion writes auto; every
// user-initiated mutation flips the member to manual.
const (
	MemberSourceAuto   = "auto"
	MemberSourceManual = "manual"
)

// Manual curation states for a member.
const (
	ManualStateNone      = "none"
	ManualStateManual    = "manual"
	ManualStateConfirmed = "confirmed"
	ManualStateExcluded  = "excluded"
)

// Topic is a persistent, user-owned cluster of notes believed to concern a
// related subject. Stored in the topics table.
type Topic struct {
	ID             uuid.UUID       `json:"id"`
	OwnerID        uuid.UUID       `json:"owner_id"`
	Title          string          `json:"title"`
	Keywords       []string        `json:"keywords"`
	Summary        string          `json:"summary"` // free-form markdown
	MemberCount    int             `json:"member_count"`
	Config         map[string]any  `json:"config,omitempty"`
	Pinned         bool            `json:"pinned"`
	PinnedAt       *time.Time      `json:"pinned_at,omitempty"`
	Archived       bool            `json:"archived"`
	ArchivedAt     *time.Time      `json:"archived_at,omitempty"`
	LastIngestedAt *time.Time      `json:"last_ingested_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TopicMember is the topic/note join, unique on (topic_id, note_id).
// Score is producer-assigned and nullable; EventFingerprint is non-null iff
// EventTime is non-null and a day-key could be derived from it.
type TopicMember struct {
	TopicID          uuid.UUID  `json:"topic_id"`
	NoteID           uuid.UUID  `json:"note_id"`
	OwnerID          uuid.UUID  `json:"owner_id"`
	Score            *float64   `json:"score,omitempty"`
	Source           string     `json:"source"`       // auto | manual
	ManualState      string     `json:"manual_state"` // none | manual | confirmed | excluded
	EventTime        *time.Time `json:"event_time,omitempty"`
	EventFingerprint *string    `json:"event_fingerprint,omitempty"`
	EvidenceRank     *int       `json:"evidence_rank,omitempty"` // lower = more representative
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// EventSource pins the members that produced an event at rebuild time,
// even if a member's fingerprint later changes.
type EventSource struct {
	NoteIDs []uuid.UUID `json:"note_ids"`
	Count   int         `json:"count"`
}

// TopicEvent is a derived cluster of members believed to describe the same
// real-world occurrence on the same UTC calendar day. Events are rebuilt
// wholesale, never patched in place.
type TopicEvent struct {
	ID          uuid.UUID   `json:"id"`
	TopicID     uuid.UUID   `json:"topic_id"`
	OwnerID     uuid.UUID   `json:"owner_id"`
	EventTime   time.Time   `json:"event_time"` // earliest member event_time in the cluster
	Title       string      `json:"title"`
	Summary     string      `json:"summary"`
	Fingerprint string      `json:"fingerprint"`
	Importance  float64     `json:"importance"` // ln(1 + cluster size)
	Source      EventSource `json:"source"`
	CreatedAt   time.Time   `json:"created_at"`
}
