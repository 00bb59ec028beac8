// Package audit provides an audit trail for curation actions. Manual
// membership edits and merges are destructive from the user's point of view,
// so each one is logged in structured JSON with enough context to answer
// "who changed this topic and when" later.
package audit

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CurationAction categorizes curation events for filtering.
type CurationAction string

const (
	ActionMemberAdd     CurationAction = "member_add"
	ActionMemberRemove  CurationAction = "member_remove"
	ActionMemberConfirm CurationAction = "member_confirm"
	ActionMemberExclude CurationAction = "member_exclude"
	ActionMemberSetTime CurationAction = "member_set_time"
	ActionTopicMerge    CurationAction = "topic_merge"
)

// CurationEvent is one auditable curation action.
type CurationEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    CurationAction `json:"action"`
	OwnerID   uuid.UUID      `json:"owner_id"`
	TopicID   uuid.UUID      `json:"topic_id"`
	NoteID    uuid.UUID      `json:"note_id,omitempty"`
	// Detail carries action-specific context, e.g. the merge source topic
	// or the timestamp a member was pinned to.
	Detail string `json:"detail,omitempty"`
}

// CurationAuditor logs curation events under a dedicated logger namespace so
// they can be filtered out of the general application log.
type CurationAuditor struct {
	logger *zap.Logger
}

// NewCurationAuditor creates an auditor. Pass nil to disable auditing; every
// Record call becomes a no-op.
func NewCurationAuditor(logger *zap.Logger) *CurationAuditor {
	if logger == nil {
		return &CurationAuditor{}
	}
	return &CurationAuditor{logger: logger.Named("curation-audit")}
}

// Record logs one curation event at INFO level.
func (a *CurationAuditor) Record(event CurationEvent) {
	if a == nil || a.logger == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.String("action", string(event.Action)),
		zap.String("owner_id", event.OwnerID.String()),
		zap.String("topic_id", event.TopicID.String()),
	}
	if event.NoteID != uuid.Nil {
		fields = append(fields, zap.String("note_id", event.NoteID.String()))
	}
	if event.Detail != "" {
		fields = append(fields, zap.String("detail", event.Detail))
	}

	a.logger.Info("Curation event", fields...)
}
