package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-engine/pkg/apperrors"
	"github.com/lorekeep/lorekeep-engine/pkg/cluster"
	"github.com/lorekeep/lorekeep-engine/pkg/jsonutil"
	"github.com/lorekeep/lorekeep-engine/pkg/llm"
	"github.com/lorekeep/lorekeep-engine/pkg/logging"
	"github.com/lorekeep/lorekeep-engine/pkg/models"
	"github.com/lorekeep/lorekeep-engine/pkg/prompts"
	"github.com/lorekeep/lorekeep-engine/pkg/repositories"
)

// extractionTemperature keeps structured extraction near-deterministic.
const extractionTemperature = 0.1

// maxTopicsPerNote caps how many topic memberships one note's extraction
// may propose.
const maxTopicsPerNote = 3

// NoteIngestResult reports one note's outcome in a rebuild batch. Error is
// set when the note failed; its siblings are unaffected.
type NoteIngestResult struct {
	NoteID            uuid.UUID `json:"note_id"`
	EntityCount       int       `json:"entity_count"`
	RelationshipCount int       `json:"relationship_count"`
	TopicCount        int       `json:"topic_count"`
	Error             string    `json:"error,omitempty"`
}

// IngestService is the boundary to the structured-generation collaborator:
// it batches recent notes through extraction, stores the resulting graph
// entities and relationships, and routes proposed topic memberships into
// the member store with source=auto.
type IngestService interface {
	// RebuildFromNotes processes the owner's most recent notes. Each note
	// is independent: one note's extraction failure is recorded in its
	// result and never aborts the batch.
	RebuildFromNotes(ctx context.Context, ownerID uuid.UUID) ([]*NoteIngestResult, error)
}

type ingestService struct {
	db        Store
	topics    repositories.TopicRepository
	notes     repositories.NoteRepository
	members   repositories.MemberRepository
	graph     repositories.GraphRepository
	client    llm.LLMClient
	batchSize int
	logger    *zap.Logger
}

// NewIngestService creates a new IngestService.
func NewIngestService(
	db Store,
	topics repositories.TopicRepository,
	notes repositories.NoteRepository,
	members repositories.MemberRepository,
	graph repositories.GraphRepository,
	client llm.LLMClient,
	batchSize int,
	logger *zap.Logger,
) IngestService {
	return &ingestService{
		db:        db,
		topics:    topics,
		notes:     notes,
		members:   members,
		graph:     graph,
		client:    client,
		batchSize: batchSize,
		logger:    logger.Named("ingest-service"),
	}
}

var _ IngestService = (*ingestService)(nil)

// extractionResult is the strict schema for collaborator output. Anything
// that does not unmarshal into this shape, directly or via the single
// bracket-extraction fallback, fails the note.
type extractionResult struct {
	Entities []struct {
		Name    string   `json:"name"`
		Kind    string   `json:"kind"`
		Aliases []string `json:"aliases"`
	} `json:"entities"`
	Relationships []struct {
		Source   string `json:"source"`
		Target   string `json:"target"`
		Relation string `json:"relation"`
		Evidence string `json:"evidence"`
	} `json:"relationships"`
	Topics []struct {
		Title string `json:"title"`
		// Raw because some models quote numbers; decoded with
		// jsonutil.FlexibleFloatValue.
		Score json.RawMessage `json:"score"`
	} `json:"topics"`
}

func (s *ingestService) RebuildFromNotes(ctx context.Context, ownerID uuid.UUID) ([]*NoteIngestResult, error) {
	batch, err := s.notes.ListRecent(ctx, s.db, ownerID, s.batchSize)
	if err != nil {
		return nil, err
	}

	results := make([]*NoteIngestResult, 0, len(batch))
	for _, note := range batch {
		result := s.ingestNote(ctx, ownerID, note)
		if result.Error != "" {
			s.logger.Warn("Note ingestion failed",
				zap.String("note_id", note.ID.String()),
				zap.String("error", result.Error))
		}
		results = append(results, result)
	}

	s.logger.Info("Rebuilt graph from notes",
		zap.String("owner_id", ownerID.String()),
		zap.Int("notes", len(results)))
	return results, nil
}

func (s *ingestService) ingestNote(ctx context.Context, ownerID uuid.UUID, note *models.Note) *NoteIngestResult {
	result := &NoteIngestResult{NoteID: note.ID}

	prompt := prompts.BuildExtractionPrompt(prompts.NoteContext{
		Title:   note.Title,
		Excerpt: note.Excerpt,
		Body:    note.Body,
	})

	response, err := s.client.GenerateResponse(ctx, prompt, prompts.ExtractionSystemMessage, extractionTemperature)
	if err != nil {
		result.Error = fmt.Sprintf("extraction failed: %v", logging.SanitizeError(err))
		return result
	}

	extraction, err := llm.ParseJSONResponse[extractionResult](response)
	if err != nil {
		result.Error = fmt.Sprintf("malformed extraction response: %v", err)
		return result
	}
	if err := validateExtraction(&extraction); err != nil {
		result.Error = err.Error()
		return result
	}

	// Clear the note's previous relationships so repeated rebuilds do not
	// accumulate duplicate edges.
	if err := s.graph.DeleteRelationshipsByNote(ctx, s.db, ownerID, note.ID); err != nil {
		result.Error = fmt.Sprintf("failed to reset note graph: %v", err)
		return result
	}

	for _, e := range extraction.Entities {
		if err := s.storeEntity(ctx, ownerID, e.Name, e.Kind, e.Aliases); err != nil {
			result.Error = fmt.Sprintf("failed to store entity %q: %v", e.Name, err)
			return result
		}
		result.EntityCount++
	}

	for _, rel := range extraction.Relationships {
		stored, err := s.storeRelationship(ctx, ownerID, note.ID, rel.Source, rel.Target, rel.Relation, rel.Evidence)
		if err != nil {
			result.Error = fmt.Sprintf("failed to store relationship: %v", err)
			return result
		}
		if stored {
			result.RelationshipCount++
		}
	}

	for i, t := range extraction.Topics {
		if i == maxTopicsPerNote {
			break
		}
		score, _ := jsonutil.FlexibleFloatValue(t.Score)
		if err := s.routeMembership(ctx, ownerID, note, t.Title, score); err != nil {
			result.Error = fmt.Sprintf("failed to route membership: %v", err)
			return result
		}
		result.TopicCount++
	}

	return result
}

// validateExtraction is the strict-schema step: entity kinds outside the
// closed vocabulary fail the note rather than flowing downstream.
func validateExtraction(extraction *extractionResult) error {
	for _, e := range extraction.Entities {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("%w: extraction returned an unnamed entity", apperrors.ErrUpstream)
		}
		if !models.ValidEntityKind(e.Kind) {
			return fmt.Errorf("%w: unknown entity kind %q", apperrors.ErrUpstream, e.Kind)
		}
	}
	for _, t := range extraction.Topics {
		if strings.TrimSpace(t.Title) == "" {
			return fmt.Errorf("%w: extraction proposed an untitled topic", apperrors.ErrUpstream)
		}
	}
	return nil
}

// storeEntity resolves the extracted name against existing entities and
// creates the entity when nothing matches. Names are singularized before
// lookup so "elections" and "election" bind to one entity.
func (s *ingestService) storeEntity(ctx context.Context, ownerID uuid.UUID, name, kind string, aliases []string) error {
	canonical := inflection.Singular(strings.TrimSpace(name))

	existing, err := s.graph.FindByNameOrAlias(ctx, s.db, ownerID, canonical)
	if err != nil {
		return err
	}
	if existing == nil {
		entity := &models.GraphEntity{
			OwnerID: ownerID,
			Name:    canonical,
			Kind:    kind,
			Aliases: aliases,
		}
		return s.graph.CreateEntity(ctx, s.db, entity)
	}

	// Matching by name-or-alias binds the extraction to the first entity
	// that shares the name, even across kinds. Reproduced as observed;
	// flagged in DESIGN.md.
	for _, alias := range aliases {
		if err := s.graph.AddAlias(ctx, s.db, existing.ID, alias); err != nil {
			return err
		}
	}
	if !strings.EqualFold(existing.Name, canonical) {
		if err := s.graph.AddAlias(ctx, s.db, existing.ID, canonical); err != nil {
			return err
		}
	}
	return nil
}

// storeRelationship resolves both endpoints and persists the edge. A
// relationship whose endpoint cannot be resolved is skipped, not an error:
// the model occasionally references entities it failed to list.
func (s *ingestService) storeRelationship(ctx context.Context, ownerID, noteID uuid.UUID, source, target, relation, evidence string) (bool, error) {
	src, err := s.graph.FindByNameOrAlias(ctx, s.db, ownerID, inflection.Singular(strings.TrimSpace(source)))
	if err != nil {
		return false, err
	}
	tgt, err := s.graph.FindByNameOrAlias(ctx, s.db, ownerID, inflection.Singular(strings.TrimSpace(target)))
	if err != nil {
		return false, err
	}
	if src == nil || tgt == nil {
		s.logger.Debug("Skipping relationship with unresolved endpoint",
			zap.String("source", source),
			zap.String("target", target))
		return false, nil
	}

	rel := &models.GraphRelationship{
		OwnerID:        ownerID,
		SourceEntityID: src.ID,
		TargetEntityID: tgt.ID,
		Relation:       relation,
		Evidence:       evidence,
		NoteID:         noteID,
	}
	if err := s.graph.CreateRelationship(ctx, s.db, rel); err != nil {
		return false, err
	}
	return true, nil
}

// routeMembership finds or creates the proposed topic and upserts the note
// as an automatic member with the producer-assigned score.
func (s *ingestService) routeMembership(ctx context.Context, ownerID uuid.UUID, note *models.Note, title string, score float64) error {
	title = strings.TrimSpace(title)

	topic, err := s.topics.FindByTitle(ctx, s.db, ownerID, title)
	if err != nil {
		return err
	}
	if topic == nil {
		topic = &models.Topic{OwnerID: ownerID, Title: title}
		if err := s.topics.Create(ctx, s.db, topic); err != nil {
			return err
		}
	}

	member := &models.TopicMember{
		TopicID:     topic.ID,
		NoteID:      note.ID,
		OwnerID:     ownerID,
		Score:       &score,
		Source:      models.MemberSourceAuto,
		ManualState: models.ManualStateNone,
	}
	if eventTime := cluster.ResolveEventTime(note); eventTime != nil {
		fp := cluster.Fingerprint(topic.ID, cluster.DayKeyFromTime(*eventTime), note.Title)
		member.EventTime = eventTime
		member.EventFingerprint = &fp
	}

	if err := s.members.Upsert(ctx, s.db, member); err != nil {
		return err
	}
	if err := s.topics.RefreshStats(ctx, s.db, topic.ID); err != nil {
		s.logger.Warn("Failed to refresh topic stats",
			zap.String("topic_id", topic.ID.String()),
			zap.Error(err))
	}
	return nil
}
