package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lorekeep/lorekeep-engine/pkg/apperrors"
	"github.com/lorekeep/lorekeep-engine/pkg/models"
	"github.com/lorekeep/lorekeep-engine/pkg/repositories"
)

// fakeStore satisfies Store for tests. The mock repositories ignore the
// Querier they receive, so the fake only needs to run transaction bodies.
type fakeStore struct{}

func (fakeStore) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (fakeStore) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }

func (fakeStore) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (fakeStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error { return fn(nil) }

// mockTopicRepo implements repositories.TopicRepository in memory.
type mockTopicRepo struct {
	topics []*models.Topic

	// members, when set, backs RefreshStats member counting.
	members *mockMemberRepo

	statsRefreshed []uuid.UUID
	statsErr       error
}

var _ repositories.TopicRepository = (*mockTopicRepo)(nil)

func (m *mockTopicRepo) Create(_ context.Context, _ repositories.Querier, topic *models.Topic) error {
	if topic.ID == uuid.Nil {
		topic.ID = uuid.New()
	}
	topic.CreatedAt = time.Now()
	topic.UpdatedAt = topic.CreatedAt
	m.topics = append(m.topics, topic)
	return nil
}

func (m *mockTopicRepo) Get(_ context.Context, _ repositories.Querier, ownerID, topicID uuid.UUID) (*models.Topic, error) {
	for _, t := range m.topics {
		if t.ID == topicID && t.OwnerID == ownerID {
			return t, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockTopicRepo) List(_ context.Context, _ repositories.Querier, ownerID uuid.UUID) ([]*models.Topic, error) {
	var out []*models.Topic
	for _, t := range m.topics {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockTopicRepo) FindByTitle(_ context.Context, _ repositories.Querier, ownerID uuid.UUID, title string) (*models.Topic, error) {
	for _, t := range m.topics {
		if t.OwnerID == ownerID && strings.EqualFold(t.Title, title) {
			return t, nil
		}
	}
	return nil, nil
}

func (m *mockTopicRepo) Delete(_ context.Context, _ repositories.Querier, ownerID, topicID uuid.UUID) error {
	for i, t := range m.topics {
		if t.ID == topicID && t.OwnerID == ownerID {
			m.topics = append(m.topics[:i], m.topics[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockTopicRepo) SetPinned(ctx context.Context, q repositories.Querier, ownerID, topicID uuid.UUID, pinned bool) (*models.Topic, error) {
	t, err := m.Get(ctx, q, ownerID, topicID)
	if err != nil {
		return nil, err
	}
	t.Pinned = pinned
	t.PinnedAt = nil
	if pinned {
		now := time.Now()
		t.PinnedAt = &now
	}
	t.UpdatedAt = time.Now()
	return t, nil
}

func (m *mockTopicRepo) SetArchived(ctx context.Context, q repositories.Querier, ownerID, topicID uuid.UUID, archived bool) (*models.Topic, error) {
	t, err := m.Get(ctx, q, ownerID, topicID)
	if err != nil {
		return nil, err
	}
	t.Archived = archived
	t.ArchivedAt = nil
	if archived {
		now := time.Now()
		t.ArchivedAt = &now
	}
	t.UpdatedAt = time.Now()
	return t, nil
}

func (m *mockTopicRepo) RefreshStats(_ context.Context, _ repositories.Querier, topicID uuid.UUID) error {
	if m.statsErr != nil {
		return m.statsErr
	}
	m.statsRefreshed = append(m.statsRefreshed, topicID)
	for _, t := range m.topics {
		if t.ID == topicID {
			if m.members != nil {
				t.MemberCount = m.members.countByTopic(topicID)
			}
			now := time.Now()
			t.LastIngestedAt = &now
			t.UpdatedAt = now
		}
	}
	return nil
}

func (m *mockTopicRepo) UpdateReport(ctx context.Context, q repositories.Querier, ownerID, topicID uuid.UUID, title string, keywords []string, summary string) error {
	t, err := m.Get(ctx, q, ownerID, topicID)
	if err != nil {
		return err
	}
	if title != "" {
		t.Title = title
	}
	if keywords != nil {
		t.Keywords = keywords
	}
	t.Summary = summary
	t.UpdatedAt = time.Now()
	return nil
}

// noteMeta is the note metadata mockMemberRepo joins into ListWithNotes.
type noteMeta struct {
	Title       string
	Excerpt     string
	PublishedAt *time.Time
	CreatedAt   time.Time
}

// mockMemberRepo implements repositories.MemberRepository in memory. Rows
// keep insertion order, matching the created_at ordering of the real
// queries.
type mockMemberRepo struct {
	rows  []*models.TopicMember
	notes map[uuid.UUID]noteMeta

	upsertErr error
}

var _ repositories.MemberRepository = (*mockMemberRepo)(nil)

func (m *mockMemberRepo) find(topicID, noteID uuid.UUID) *models.TopicMember {
	for _, r := range m.rows {
		if r.TopicID == topicID && r.NoteID == noteID {
			return r
		}
	}
	return nil
}

func (m *mockMemberRepo) countByTopic(topicID uuid.UUID) int {
	n := 0
	for _, r := range m.rows {
		if r.TopicID == topicID {
			n++
		}
	}
	return n
}

func (m *mockMemberRepo) Upsert(_ context.Context, _ repositories.Querier, member *models.TopicMember) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	now := time.Now()
	if existing := m.find(member.TopicID, member.NoteID); existing != nil {
		member.CreatedAt = existing.CreatedAt
		member.UpdatedAt = now
		*existing = *member
		return nil
	}
	member.CreatedAt = now
	member.UpdatedAt = now
	row := *member
	m.rows = append(m.rows, &row)
	return nil
}

func (m *mockMemberRepo) Get(_ context.Context, _ repositories.Querier, topicID, noteID uuid.UUID) (*models.TopicMember, error) {
	if r := m.find(topicID, noteID); r != nil {
		row := *r
		return &row, nil
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockMemberRepo) Delete(_ context.Context, _ repositories.Querier, topicID, noteID uuid.UUID) error {
	for i, r := range m.rows {
		if r.TopicID == topicID && r.NoteID == noteID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockMemberRepo) DeleteByTopic(_ context.Context, _ repositories.Querier, topicID uuid.UUID) error {
	var kept []*models.TopicMember
	for _, r := range m.rows {
		if r.TopicID != topicID {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return nil
}

func (m *mockMemberRepo) ListByTopic(_ context.Context, _ repositories.Querier, topicID uuid.UUID) ([]*models.TopicMember, error) {
	var out []*models.TopicMember
	for _, r := range m.rows {
		if r.TopicID == topicID {
			row := *r
			out = append(out, &row)
		}
	}
	return out, nil
}

func (m *mockMemberRepo) ListClusterable(_ context.Context, _ repositories.Querier, topicID uuid.UUID) ([]*models.TopicMember, error) {
	var out []*models.TopicMember
	for _, r := range m.rows {
		if r.TopicID == topicID && r.EventFingerprint != nil && r.EventTime != nil {
			row := *r
			out = append(out, &row)
		}
	}
	return out, nil
}

func (m *mockMemberRepo) ListWithNotes(_ context.Context, _ repositories.Querier, topicID uuid.UUID) ([]*models.MemberWithNote, error) {
	var out []*models.MemberWithNote
	for _, r := range m.rows {
		if r.TopicID != topicID {
			continue
		}
		meta := m.notes[r.NoteID]
		out = append(out, &models.MemberWithNote{
			TopicMember:     *r,
			NoteTitle:       meta.Title,
			NoteExcerpt:     meta.Excerpt,
			NotePublishedAt: meta.PublishedAt,
			NoteCreatedAt:   meta.CreatedAt,
		})
	}
	return out, nil
}

func (m *mockMemberRepo) SetManualState(_ context.Context, _ repositories.Querier, topicID, noteID uuid.UUID, state string) error {
	r := m.find(topicID, noteID)
	if r == nil {
		return apperrors.ErrNotFound
	}
	r.ManualState = state
	r.Source = models.MemberSourceManual
	r.UpdatedAt = time.Now()
	return nil
}

func (m *mockMemberRepo) Count(_ context.Context, _ repositories.Querier, topicID uuid.UUID) (int, error) {
	return m.countByTopic(topicID), nil
}

// mockNoteRepo implements repositories.NoteRepository in memory.
type mockNoteRepo struct {
	notes []*models.Note
}

var _ repositories.NoteRepository = (*mockNoteRepo)(nil)

func (m *mockNoteRepo) Get(_ context.Context, _ repositories.Querier, ownerID, noteID uuid.UUID) (*models.Note, error) {
	for _, n := range m.notes {
		if n.ID == noteID && n.OwnerID == ownerID {
			return n, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockNoteRepo) ListRecent(_ context.Context, _ repositories.Querier, ownerID uuid.UUID, limit int) ([]*models.Note, error) {
	var out []*models.Note
	for _, n := range m.notes {
		if n.OwnerID == ownerID {
			out = append(out, n)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// mockEventRepo implements repositories.EventRepository in memory.
type mockEventRepo struct {
	events map[uuid.UUID][]*models.TopicEvent

	replaceCalls int
	replaceErr   error
}

var _ repositories.EventRepository = (*mockEventRepo)(nil)

func (m *mockEventRepo) ReplaceForTopic(_ context.Context, _ repositories.Querier, topicID uuid.UUID, events []*models.TopicEvent) error {
	m.replaceCalls++
	if m.replaceErr != nil {
		return m.replaceErr
	}
	if m.events == nil {
		m.events = make(map[uuid.UUID][]*models.TopicEvent)
	}
	for _, e := range events {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
	}
	m.events[topicID] = events
	return nil
}

func (m *mockEventRepo) ListByTopic(_ context.Context, _ repositories.Querier, topicID uuid.UUID) ([]*models.TopicEvent, error) {
	return m.events[topicID], nil
}

func (m *mockEventRepo) DeleteByTopic(_ context.Context, _ repositories.Querier, topicID uuid.UUID) error {
	delete(m.events, topicID)
	return nil
}

// mockGraphRepo implements repositories.GraphRepository in memory.
type mockGraphRepo struct {
	entities      []*models.GraphEntity
	relationships []*models.GraphRelationship
}

var _ repositories.GraphRepository = (*mockGraphRepo)(nil)

func (m *mockGraphRepo) FindByNameOrAlias(_ context.Context, _ repositories.Querier, ownerID uuid.UUID, name string) (*models.GraphEntity, error) {
	for _, e := range m.entities {
		if e.OwnerID != ownerID {
			continue
		}
		if strings.EqualFold(e.Name, name) {
			return e, nil
		}
		for _, a := range e.Aliases {
			if strings.EqualFold(a, name) {
				return e, nil
			}
		}
	}
	return nil, nil
}

func (m *mockGraphRepo) CreateEntity(_ context.Context, _ repositories.Querier, entity *models.GraphEntity) error {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	entity.CreatedAt = time.Now()
	m.entities = append(m.entities, entity)
	return nil
}

func (m *mockGraphRepo) AddAlias(_ context.Context, _ repositories.Querier, entityID uuid.UUID, alias string) error {
	for _, e := range m.entities {
		if e.ID != entityID {
			continue
		}
		for _, a := range e.Aliases {
			if a == alias {
				return nil
			}
		}
		e.Aliases = append(e.Aliases, alias)
	}
	return nil
}

func (m *mockGraphRepo) CreateRelationship(_ context.Context, _ repositories.Querier, rel *models.GraphRelationship) error {
	if rel.ID == uuid.Nil {
		rel.ID = uuid.New()
	}
	rel.CreatedAt = time.Now()
	m.relationships = append(m.relationships, rel)
	return nil
}

func (m *mockGraphRepo) DeleteRelationshipsByNote(_ context.Context, _ repositories.Querier, ownerID, noteID uuid.UUID) error {
	var kept []*models.GraphRelationship
	for _, r := range m.relationships {
		if r.OwnerID != ownerID || r.NoteID != noteID {
			kept = append(kept, r)
		}
	}
	m.relationships = kept
	return nil
}
