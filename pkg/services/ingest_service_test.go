package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-engine/pkg/llm"
	"github.com/lorekeep/lorekeep-engine/pkg/models"
)

type ingestFixture struct {
	topics  *mockTopicRepo
	notes   *mockNoteRepo
	members *mockMemberRepo
	graph   *mockGraphRepo
	ownerID uuid.UUID
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	members := &mockMemberRepo{notes: map[uuid.UUID]noteMeta{}}
	return &ingestFixture{
		topics:  &mockTopicRepo{members: members},
		notes:   &mockNoteRepo{},
		members: members,
		graph:   &mockGraphRepo{},
		ownerID: uuid.New(),
	}
}

func (f *ingestFixture) service(client llm.LLMClient) IngestService {
	return NewIngestService(fakeStore{}, f.topics, f.notes, f.members, f.graph, client, 50, zap.NewNop())
}

func (f *ingestFixture) addNote(title string) *models.Note {
	note := &models.Note{
		ID:        uuid.New(),
		OwnerID:   f.ownerID,
		Title:     title,
		Body:      "body of " + title,
		CreatedAt: time.Now(),
	}
	f.notes.notes = append(f.notes.notes, note)
	return note
}

const electionExtraction = `{
	"entities": [
		{"name": "Jane Moreno", "kind": "person", "aliases": ["J. Moreno"]},
		{"name": "National Electoral Board", "kind": "organization", "aliases": []}
	],
	"relationships": [
		{"source": "Jane Moreno", "target": "National Electoral Board", "relation": "chairs", "evidence": "Moreno chairs the board"}
	],
	"topics": [
		{"title": "Elections", "score": 0.92}
	]
}`

func TestIngestService_Rebuild_StoresEntitiesAndRelationships(t *testing.T) {
	f := newIngestFixture(t)
	note := f.addNote("Election Results")
	svc := f.service(llm.NewMockClient(electionExtraction))

	results, err := svc.RebuildFromNotes(context.Background(), f.ownerID)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Empty(t, results[0].Error)
	assert.Equal(t, note.ID, results[0].NoteID)
	assert.Equal(t, 2, results[0].EntityCount)
	assert.Equal(t, 1, results[0].RelationshipCount)

	require.Len(t, f.graph.entities, 2)
	require.Len(t, f.graph.relationships, 1)
	assert.Equal(t, "chairs", f.graph.relationships[0].Relation)
	assert.Equal(t, note.ID, f.graph.relationships[0].NoteID)
}

func TestIngestService_Rebuild_RoutesAutoMembership(t *testing.T) {
	f := newIngestFixture(t)
	eventTime := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	note := f.addNote("Election Results")
	note.EventTime = &eventTime
	svc := f.service(llm.NewMockClient(electionExtraction))

	_, err := svc.RebuildFromNotes(context.Background(), f.ownerID)
	require.NoError(t, err)

	topic, err := f.topics.FindByTitle(context.Background(), nil, f.ownerID, "Elections")
	require.NoError(t, err)
	require.NotNil(t, topic)
	assert.Equal(t, 1, topic.MemberCount)

	member := f.members.find(topic.ID, note.ID)
	require.NotNil(t, member)
	assert.Equal(t, models.MemberSourceAuto, member.Source)
	assert.Equal(t, models.ManualStateNone, member.ManualState)
	require.NotNil(t, member.Score)
	assert.InDelta(t, 0.92, *member.Score, 1e-9)
	require.NotNil(t, member.EventFingerprint)
	assert.Equal(t, eventTime, member.EventTime.UTC())
}

func TestIngestService_Rebuild_ReusesExistingTopicByTitle(t *testing.T) {
	f := newIngestFixture(t)
	f.addNote("First")
	f.addNote("Second")
	svc := f.service(llm.NewMockClient(electionExtraction, electionExtraction))

	_, err := svc.RebuildFromNotes(context.Background(), f.ownerID)
	require.NoError(t, err)

	assert.Len(t, f.topics.topics, 1)
	topic := f.topics.topics[0]
	assert.Equal(t, "Elections", topic.Title)
	assert.Equal(t, 2, f.members.countByTopic(topic.ID))
}

func TestIngestService_Rebuild_FailureDoesNotAbortBatch(t *testing.T) {
	f := newIngestFixture(t)
	f.addNote("First")
	f.addNote("Second")
	// The first note's response is unparseable; the second succeeds.
	svc := f.service(llm.NewMockClient("the model rambled with no structure", electionExtraction))

	results, err := svc.RebuildFromNotes(context.Background(), f.ownerID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.NotEmpty(t, results[0].Error)
	assert.Empty(t, results[1].Error)
	assert.Equal(t, 2, results[1].EntityCount)
}

func TestIngestService_Rebuild_RejectsUnknownEntityKind(t *testing.T) {
	f := newIngestFixture(t)
	f.addNote("First")
	svc := f.service(llm.NewMockClient(`{
		"entities": [{"name": "Something", "kind": "vibe", "aliases": []}],
		"relationships": [],
		"topics": []
	}`))

	results, err := svc.RebuildFromNotes(context.Background(), f.ownerID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Error, "unknown entity kind")
	assert.Empty(t, f.graph.entities)
}

func TestIngestService_Rebuild_ResolvesEntityByAlias(t *testing.T) {
	f := newIngestFixture(t)
	f.graph.entities = append(f.graph.entities, &models.GraphEntity{
		ID:      uuid.New(),
		OwnerID: f.ownerID,
		Name:    "Electoral Board",
		Kind:    models.EntityKindOrganization,
		Aliases: []string{"National Electoral Board"},
	})
	f.addNote("Election Results")
	svc := f.service(llm.NewMockClient(electionExtraction))

	results, err := svc.RebuildFromNotes(context.Background(), f.ownerID)
	require.NoError(t, err)
	assert.Empty(t, results[0].Error)

	// The alias match binds to the existing entity instead of creating one.
	names := make([]string, 0, len(f.graph.entities))
	for _, e := range f.graph.entities {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"Electoral Board", "Jane Moreno"}, names)
}

func TestIngestService_Rebuild_SkipsRelationshipWithUnknownEndpoint(t *testing.T) {
	f := newIngestFixture(t)
	f.addNote("First")
	svc := f.service(llm.NewMockClient(`{
		"entities": [{"name": "Jane Moreno", "kind": "person", "aliases": []}],
		"relationships": [
			{"source": "Jane Moreno", "target": "Phantom Org", "relation": "chairs", "evidence": "..."}
		],
		"topics": []
	}`))

	results, err := svc.RebuildFromNotes(context.Background(), f.ownerID)
	require.NoError(t, err)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, 1, results[0].EntityCount)
	assert.Zero(t, results[0].RelationshipCount)
	assert.Empty(t, f.graph.relationships)
}

func TestIngestService_Rebuild_ReplacesNoteRelationships(t *testing.T) {
	f := newIngestFixture(t)
	note := f.addNote("Election Results")
	f.graph.relationships = append(f.graph.relationships, &models.GraphRelationship{
		ID: uuid.New(), OwnerID: f.ownerID, NoteID: note.ID, Relation: "stale",
	})
	svc := f.service(llm.NewMockClient(electionExtraction))

	_, err := svc.RebuildFromNotes(context.Background(), f.ownerID)
	require.NoError(t, err)

	require.Len(t, f.graph.relationships, 1)
	assert.Equal(t, "chairs", f.graph.relationships[0].Relation)
}

func TestIngestService_Rebuild_QuotedScoreTolerated(t *testing.T) {
	f := newIngestFixture(t)
	note := f.addNote("Election Results")
	svc := f.service(llm.NewMockClient(`{
		"entities": [],
		"relationships": [],
		"topics": [{"title": "Elections", "score": "0.5"}]
	}`))

	results, err := svc.RebuildFromNotes(context.Background(), f.ownerID)
	require.NoError(t, err)
	assert.Empty(t, results[0].Error)

	topic, err := f.topics.FindByTitle(context.Background(), nil, f.ownerID, "Elections")
	require.NoError(t, err)
	require.NotNil(t, topic)
	member := f.members.find(topic.ID, note.ID)
	require.NotNil(t, member)
	assert.InDelta(t, 0.5, *member.Score, 1e-9)
}
