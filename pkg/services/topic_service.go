package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-engine/pkg/models"
	"github.com/lorekeep/lorekeep-engine/pkg/repositories"
)

// EventWithEvidence is an event joined with the member rows that produced
// it, for the detail view. Evidence is ordered evidence_rank first (lowest
// wins, unranked last), then score descending.
type EventWithEvidence struct {
	*models.TopicEvent
	Evidence []*models.MemberWithNote `json:"evidence"`
}

// TopicDetail is the full read model for one topic: the topic row, its
// members joined with note metadata, the members re-sorted into a timeline
// by effective time, and the derived events with resolved evidence.
type TopicDetail struct {
	Topic    *models.Topic            `json:"topic"`
	Members  []*models.MemberWithNote `json:"members"`
	Timeline []*models.MemberWithNote `json:"timeline"`
	Events   []*EventWithEvidence     `json:"events"`
}

// TopicService provides topic-level reads and curation toggles.
type TopicService interface {
	List(ctx context.Context, ownerID uuid.UUID) ([]*models.Topic, error)
	Detail(ctx context.Context, ownerID, topicID uuid.UUID) (*TopicDetail, error)

	// SetPinned and SetArchived toggle the flag and its companion
	// timestamp atomically. Idempotent; no side effects on membership or
	// events.
	SetPinned(ctx context.Context, ownerID, topicID uuid.UUID, pinned bool) (*models.Topic, error)
	SetArchived(ctx context.Context, ownerID, topicID uuid.UUID, archived bool) (*models.Topic, error)
}

type topicService struct {
	db      Store
	topics  repositories.TopicRepository
	members repositories.MemberRepository
	events  repositories.EventRepository
	logger  *zap.Logger
}

// NewTopicService creates a new TopicService.
func NewTopicService(
	db Store,
	topics repositories.TopicRepository,
	members repositories.MemberRepository,
	events repositories.EventRepository,
	logger *zap.Logger,
) TopicService {
	return &topicService{
		db:      db,
		topics:  topics,
		members: members,
		events:  events,
		logger:  logger.Named("topic-service"),
	}
}

var _ TopicService = (*topicService)(nil)

func (s *topicService) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Topic, error) {
	topics, err := s.topics.List(ctx, s.db, ownerID)
	if err != nil {
		s.logger.Error("Failed to list topics",
			zap.String("owner_id", ownerID.String()),
			zap.Error(err))
		return nil, err
	}
	return topics, nil
}

func (s *topicService) Detail(ctx context.Context, ownerID, topicID uuid.UUID) (*TopicDetail, error) {
	topic, err := s.topics.Get(ctx, s.db, ownerID, topicID)
	if err != nil {
		return nil, err
	}

	members, err := s.members.ListWithNotes(ctx, s.db, topicID)
	if err != nil {
		return nil, err
	}

	events, err := s.events.ListByTopic(ctx, s.db, topicID)
	if err != nil {
		return nil, err
	}

	return &TopicDetail{
		Topic:    topic,
		Members:  members,
		Timeline: buildTimeline(members),
		Events:   resolveEvidence(events, members),
	}, nil
}

func (s *topicService) SetPinned(ctx context.Context, ownerID, topicID uuid.UUID, pinned bool) (*models.Topic, error) {
	topic, err := s.topics.SetPinned(ctx, s.db, ownerID, topicID, pinned)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Set topic pinned",
		zap.String("topic_id", topicID.String()),
		zap.Bool("pinned", pinned))
	return topic, nil
}

func (s *topicService) SetArchived(ctx context.Context, ownerID, topicID uuid.UUID, archived bool) (*models.Topic, error) {
	topic, err := s.topics.SetArchived(ctx, s.db, ownerID, topicID, archived)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Set topic archived",
		zap.String("topic_id", topicID.String()),
		zap.Bool("archived", archived))
	return topic, nil
}

// buildTimeline sorts members by effective time ascending. Members without
// any timestamp sort by note creation time, so nothing is dropped.
func buildTimeline(members []*models.MemberWithNote) []*models.MemberWithNote {
	timeline := make([]*models.MemberWithNote, len(members))
	copy(timeline, members)
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].EffectiveTime().Before(timeline[j].EffectiveTime())
	})
	return timeline
}

// resolveEvidence attaches to each event the member rows recorded in its
// source at rebuild time, ordered evidence_rank then score descending. The
// source note_ids are authoritative even if a member's fingerprint changed
// since the rebuild.
func resolveEvidence(events []*models.TopicEvent, members []*models.MemberWithNote) []*EventWithEvidence {
	byNote := make(map[uuid.UUID]*models.MemberWithNote, len(members))
	for _, m := range members {
		byNote[m.NoteID] = m
	}

	resolved := make([]*EventWithEvidence, 0, len(events))
	for _, e := range events {
		evidence := make([]*models.MemberWithNote, 0, len(e.Source.NoteIDs))
		for _, noteID := range e.Source.NoteIDs {
			if m, ok := byNote[noteID]; ok {
				evidence = append(evidence, m)
			}
		}
		sort.SliceStable(evidence, func(i, j int) bool {
			return evidenceLess(evidence[i], evidence[j])
		})
		resolved = append(resolved, &EventWithEvidence{TopicEvent: e, Evidence: evidence})
	}
	return resolved
}

func evidenceLess(a, b *models.MemberWithNote) bool {
	switch {
	case a.EvidenceRank != nil && b.EvidenceRank != nil && *a.EvidenceRank != *b.EvidenceRank:
		return *a.EvidenceRank < *b.EvidenceRank
	case (a.EvidenceRank != nil) != (b.EvidenceRank != nil):
		return a.EvidenceRank != nil
	case a.Score != nil && b.Score != nil:
		return *a.Score > *b.Score
	default:
		return a.Score != nil && b.Score == nil
	}
}
