package models

import "time"

// MemberWithNote joins a member row with the note metadata the detail and
// timeline views need.
type MemberWithNote struct {
	TopicMember
	NoteTitle       string     `json:"note_title"`
	NoteExcerpt     string     `json:"note_excerpt"`
	NotePublishedAt *time.Time `json:"note_published_at,omitempty"`
	NoteCreatedAt   time.Time  `json:"note_created_at"`
}

// EffectiveTime is the timestamp a member sorts by in the timeline view:
// its event time when present, else the note's published time, else the
// note's ingestion time.
func (m *MemberWithNote) EffectiveTime() time.Time {
	if m.EventTime != nil {
		return *m.EventTime
	}
	if m.NotePublishedAt != nil {
		return *m.NotePublishedAt
	}
	return m.NoteCreatedAt
}
