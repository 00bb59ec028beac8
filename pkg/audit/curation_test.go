package audit

import (
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCurationAuditor_Record(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	auditor := NewCurationAuditor(zap.New(core))

	ownerID := uuid.New()
	topicID := uuid.New()
	noteID := uuid.New()

	auditor.Record(CurationEvent{
		Action:  ActionMemberAdd,
		OwnerID: ownerID,
		TopicID: topicID,
		NoteID:  noteID,
	})

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}

	entry := logs.All()[0]
	if entry.Message != "Curation event" {
		t.Errorf("expected message 'Curation event', got %q", entry.Message)
	}

	fields := entry.ContextMap()
	if fields["action"] != string(ActionMemberAdd) {
		t.Errorf("expected action %q, got %v", ActionMemberAdd, fields["action"])
	}
	if fields["note_id"] != noteID.String() {
		t.Errorf("expected note_id %s, got %v", noteID, fields["note_id"])
	}
	if _, ok := fields["detail"]; ok {
		t.Error("expected empty detail to be omitted")
	}
}

func TestCurationAuditor_MergeDetail(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	auditor := NewCurationAuditor(zap.New(core))

	sourceID := uuid.New()
	auditor.Record(CurationEvent{
		Action:  ActionTopicMerge,
		OwnerID: uuid.New(),
		TopicID: uuid.New(),
		Detail:  "source=" + sourceID.String(),
	})

	fields := logs.All()[0].ContextMap()
	if fields["detail"] != "source="+sourceID.String() {
		t.Errorf("expected merge detail, got %v", fields["detail"])
	}
	if _, ok := fields["note_id"]; ok {
		t.Error("expected nil note_id to be omitted")
	}
}

func TestCurationAuditor_NilLoggerIsNoop(t *testing.T) {
	auditor := NewCurationAuditor(nil)
	auditor.Record(CurationEvent{Action: ActionMemberRemove}) // must not panic
}
