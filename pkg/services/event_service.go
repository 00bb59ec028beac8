package services

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-engine/pkg/models"
	"github.com/lorekeep/lorekeep-engine/pkg/repositories"
)

// EventService rebuilds a topic's derived event view from current
// membership. Events are regenerated wholesale on every rebuild; they are
// never patched incrementally.
type EventService interface {
	// Rebuild replaces the topic's events with clusters computed from the
	// members that currently carry both a fingerprint and an event time.
	// The read and the replace happen in one transaction, so the rebuild
	// sees a point-in-time snapshot and callers never observe a topic with
	// clusterable members but zero events.
	Rebuild(ctx context.Context, ownerID, topicID uuid.UUID) ([]*models.TopicEvent, error)
}

type eventService struct {
	db      Store
	topics  repositories.TopicRepository
	members repositories.MemberRepository
	events  repositories.EventRepository
	logger  *zap.Logger
}

// NewEventService creates a new EventService.
func NewEventService(
	db Store,
	topics repositories.TopicRepository,
	members repositories.MemberRepository,
	events repositories.EventRepository,
	logger *zap.Logger,
) EventService {
	return &eventService{
		db:      db,
		topics:  topics,
		members: members,
		events:  events,
		logger:  logger.Named("event-service"),
	}
}

var _ EventService = (*eventService)(nil)

func (s *eventService) Rebuild(ctx context.Context, ownerID, topicID uuid.UUID) ([]*models.TopicEvent, error) {
	if _, err := s.topics.Get(ctx, s.db, ownerID, topicID); err != nil {
		return nil, err
	}

	var rebuilt []*models.TopicEvent
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		members, err := s.members.ListWithNotes(ctx, tx, topicID)
		if err != nil {
			return err
		}

		rebuilt = BuildEvents(topicID, ownerID, members)
		return s.events.ReplaceForTopic(ctx, tx, topicID, rebuilt)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Rebuilt topic events",
		zap.String("topic_id", topicID.String()),
		zap.Int("events", len(rebuilt)))
	return rebuilt, nil
}

// BuildEvents groups clusterable members by fingerprint and emits one event
// per cluster. Members without both a fingerprint and an event time
// contribute to membership and timeline views but never to an event.
// Cluster order follows member insertion order, which the member queries
// guarantee.
func BuildEvents(topicID, ownerID uuid.UUID, members []*models.MemberWithNote) []*models.TopicEvent {
	groups := make(map[string][]*models.MemberWithNote)
	var order []string

	for _, m := range members {
		if m.EventFingerprint == nil || m.EventTime == nil {
			continue
		}
		fp := *m.EventFingerprint
		if _, seen := groups[fp]; !seen {
			order = append(order, fp)
		}
		groups[fp] = append(groups[fp], m)
	}

	events := make([]*models.TopicEvent, 0, len(order))
	for _, fp := range order {
		group := groups[fp]

		earliest := *group[0].EventTime
		representative := group[0]
		noteIDs := make([]uuid.UUID, 0, len(group))
		for _, m := range group {
			noteIDs = append(noteIDs, m.NoteID)
			if m.EventTime.Before(earliest) {
				earliest = *m.EventTime
			}
			if betterEvidence(m, representative) {
				representative = m
			}
		}

		events = append(events, &models.TopicEvent{
			TopicID:     topicID,
			OwnerID:     ownerID,
			EventTime:   earliest,
			Title:       representative.NoteTitle,
			Summary:     representative.NoteExcerpt,
			Fingerprint: fp,
			// Sub-linear in cluster size so large clusters do not
			// dominate ranking disproportionately.
			Importance: math.Log(1 + float64(len(group))),
			Source: models.EventSource{
				NoteIDs: noteIDs,
				Count:   len(group),
			},
		})
	}
	return events
}

// betterEvidence reports whether a should represent the cluster instead of
// b: a lower evidence_rank wins, ranked members beat unranked ones, and
// otherwise the earlier-inserted member (b) keeps the slot.
func betterEvidence(a, b *models.MemberWithNote) bool {
	switch {
	case a.EvidenceRank == nil:
		return false
	case b.EvidenceRank == nil:
		return true
	default:
		return *a.EvidenceRank < *b.EvidenceRank
	}
}
