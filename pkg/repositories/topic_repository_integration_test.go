//go:build integration

package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lorekeep/lorekeep-engine/pkg/apperrors"
	"github.com/lorekeep/lorekeep-engine/pkg/cluster"
	"github.com/lorekeep/lorekeep-engine/pkg/database"
	"github.com/lorekeep/lorekeep-engine/pkg/models"
	"github.com/lorekeep/lorekeep-engine/pkg/testhelpers"
)

// topicTestContext holds test dependencies for topic repository tests.
type topicTestContext struct {
	t        *testing.T
	engineDB *testhelpers.EngineDB
	topics   TopicRepository
	members  MemberRepository
	events   EventRepository
	ownerID  uuid.UUID
}

func setupTopicTest(t *testing.T) *topicTestContext {
	engineDB := testhelpers.GetEngineDB(t)
	return &topicTestContext{
		t:        t,
		engineDB: engineDB,
		topics:   NewTopicRepository(),
		members:  NewMemberRepository(database.SchemaCurrent),
		events:   NewEventRepository(),
		ownerID:  uuid.New(),
	}
}

func (tc *topicTestContext) createNote(title string, eventTime *time.Time) uuid.UUID {
	tc.t.Helper()
	noteID := uuid.New()
	_, err := tc.engineDB.DB.Exec(context.Background(), `
		INSERT INTO notes (id, owner_id, title, excerpt, event_time)
		VALUES ($1, $2, $3, $4, $5)
	`, noteID, tc.ownerID, title, "excerpt for "+title, eventTime)
	if err != nil {
		tc.t.Fatalf("failed to create note: %v", err)
	}
	return noteID
}

func (tc *topicTestContext) createTopic(title string) *models.Topic {
	tc.t.Helper()
	topic := &models.Topic{
		ID:      uuid.New(),
		OwnerID: tc.ownerID,
		Title:   title,
	}
	if err := tc.topics.Create(context.Background(), tc.engineDB.DB, topic); err != nil {
		tc.t.Fatalf("failed to create topic: %v", err)
	}
	return topic
}

func TestTopicRepository_CreateAndGet(t *testing.T) {
	tc := setupTopicTest(t)
	ctx := context.Background()

	created := tc.createTopic("Municipal Elections")

	got, err := tc.topics.Get(ctx, tc.engineDB.DB, tc.ownerID, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "Municipal Elections" {
		t.Errorf("expected title 'Municipal Elections', got %q", got.Title)
	}
	if got.MemberCount != 0 {
		t.Errorf("expected member_count 0, got %d", got.MemberCount)
	}
}

func TestTopicRepository_Get_WrongOwner(t *testing.T) {
	tc := setupTopicTest(t)
	ctx := context.Background()

	created := tc.createTopic("Private Topic")

	_, err := tc.topics.Get(ctx, tc.engineDB.DB, uuid.New(), created.ID)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign owner, got %v", err)
	}
}

func TestTopicRepository_FindByTitle_CaseInsensitive(t *testing.T) {
	tc := setupTopicTest(t)
	ctx := context.Background()

	created := tc.createTopic("Water Infrastructure")

	got, err := tc.topics.FindByTitle(ctx, tc.engineDB.DB, tc.ownerID, "water infrastructure")
	if err != nil {
		t.Fatalf("FindByTitle failed: %v", err)
	}
	if got == nil || got.ID != created.ID {
		t.Errorf("expected to find topic %s by lowercased title", created.ID)
	}

	missing, err := tc.topics.FindByTitle(ctx, tc.engineDB.DB, tc.ownerID, "no such topic")
	if err != nil {
		t.Fatalf("FindByTitle failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing title, got %v", missing)
	}
}

func TestTopicRepository_SetPinned_TimestampInvariant(t *testing.T) {
	tc := setupTopicTest(t)
	ctx := context.Background()

	created := tc.createTopic("Pinned Topic")

	pinned, err := tc.topics.SetPinned(ctx, tc.engineDB.DB, tc.ownerID, created.ID, true)
	if err != nil {
		t.Fatalf("SetPinned failed: %v", err)
	}
	if !pinned.Pinned || pinned.PinnedAt == nil {
		t.Error("expected pinned topic to carry pinned_at")
	}

	unpinned, err := tc.topics.SetPinned(ctx, tc.engineDB.DB, tc.ownerID, created.ID, false)
	if err != nil {
		t.Fatalf("SetPinned failed: %v", err)
	}
	if unpinned.Pinned || unpinned.PinnedAt != nil {
		t.Error("expected unpinned topic to clear pinned_at")
	}
}

func TestMemberRepository_UpsertPreservesCreatedAt(t *testing.T) {
	tc := setupTopicTest(t)
	ctx := context.Background()

	topic := tc.createTopic("Upsert Topic")
	eventTime := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	noteID := tc.createNote("Election Results", &eventTime)

	fp := cluster.Fingerprint(topic.ID, cluster.DayKeyFromTime(eventTime), "Election Results")
	member := &models.TopicMember{
		TopicID:          topic.ID,
		NoteID:           noteID,
		OwnerID:          tc.ownerID,
		Source:           models.MemberSourceManual,
		ManualState:      models.ManualStateManual,
		EventTime:        &eventTime,
		EventFingerprint: &fp,
	}

	if err := tc.members.Upsert(ctx, tc.engineDB.DB, member); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	first, err := tc.members.Get(ctx, tc.engineDB.DB, topic.ID, noteID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// Second upsert must refresh fields without duplicating or resetting
	// insertion order.
	score := 0.7
	member.Score = &score
	if err := tc.members.Upsert(ctx, tc.engineDB.DB, member); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	second, err := tc.members.Get(ctx, tc.engineDB.DB, topic.ID, noteID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("expected created_at to survive upsert: %v != %v", second.CreatedAt, first.CreatedAt)
	}
	if second.Score == nil || *second.Score != 0.7 {
		t.Errorf("expected score 0.7 after upsert, got %v", second.Score)
	}

	rows, err := tc.members.ListByTopic(ctx, tc.engineDB.DB, topic.ID)
	if err != nil {
		t.Fatalf("ListByTopic failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 member after double upsert, got %d", len(rows))
	}
}

func TestMemberRepository_DeleteIsIdempotent(t *testing.T) {
	tc := setupTopicTest(t)
	ctx := context.Background()

	topic := tc.createTopic("Delete Topic")
	noteID := tc.createNote("Some Note", nil)

	member := &models.TopicMember{
		TopicID:     topic.ID,
		NoteID:      noteID,
		OwnerID:     tc.ownerID,
		Source:      models.MemberSourceManual,
		ManualState: models.ManualStateManual,
	}
	if err := tc.members.Upsert(ctx, tc.engineDB.DB, member); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := tc.members.Delete(ctx, tc.engineDB.DB, topic.ID, noteID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := tc.members.Delete(ctx, tc.engineDB.DB, topic.ID, noteID); err != nil {
		t.Errorf("expected repeated delete to succeed, got %v", err)
	}

	_, err := tc.members.Get(ctx, tc.engineDB.DB, topic.ID, noteID)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestTopicRepository_RefreshStats(t *testing.T) {
	tc := setupTopicTest(t)
	ctx := context.Background()

	topic := tc.createTopic("Stats Topic")
	for i := 0; i < 3; i++ {
		noteID := tc.createNote("Stats Note", nil)
		member := &models.TopicMember{
			TopicID:     topic.ID,
			NoteID:      noteID,
			OwnerID:     tc.ownerID,
			Source:      models.MemberSourceManual,
			ManualState: models.ManualStateManual,
		}
		if err := tc.members.Upsert(ctx, tc.engineDB.DB, member); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	if err := tc.topics.RefreshStats(ctx, tc.engineDB.DB, topic.ID); err != nil {
		t.Fatalf("RefreshStats failed: %v", err)
	}

	got, err := tc.topics.Get(ctx, tc.engineDB.DB, tc.ownerID, topic.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.MemberCount != 3 {
		t.Errorf("expected member_count 3, got %d", got.MemberCount)
	}
	if got.LastIngestedAt == nil {
		t.Error("expected last_ingested_at to be set")
	}
}

func TestEventRepository_ReplaceForTopic(t *testing.T) {
	tc := setupTopicTest(t)
	ctx := context.Background()

	topic := tc.createTopic("Event Topic")
	eventTime := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	noteID := tc.createNote("Clustered Note", &eventTime)

	fp := cluster.Fingerprint(topic.ID, "2024-03-01", "Clustered Note")
	first := []*models.TopicEvent{{
		ID:          uuid.New(),
		TopicID:     topic.ID,
		OwnerID:     tc.ownerID,
		Fingerprint: fp,
		Title:       "Clustered Note",
		EventTime:   eventTime,
		Importance:  0.69,
		Source:      models.EventSource{NoteIDs: []uuid.UUID{noteID}, Count: 1},
	}}

	err := tc.engineDB.DB.WithTx(ctx, func(tx pgx.Tx) error {
		return tc.events.ReplaceForTopic(ctx, tx, topic.ID, first)
	})
	if err != nil {
		t.Fatalf("ReplaceForTopic failed: %v", err)
	}

	// Replace with an empty set clears the topic's events.
	err = tc.engineDB.DB.WithTx(ctx, func(tx pgx.Tx) error {
		return tc.events.ReplaceForTopic(ctx, tx, topic.ID, nil)
	})
	if err != nil {
		t.Fatalf("ReplaceForTopic failed: %v", err)
	}

	remaining, err := tc.events.ListByTopic(ctx, tc.engineDB.DB, topic.ID)
	if err != nil {
		t.Fatalf("ListByTopic failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected no events after empty replace, got %d", len(remaining))
	}
}
