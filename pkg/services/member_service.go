package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-engine/pkg/apperrors"
	"github.com/lorekeep/lorekeep-engine/pkg/cluster"
	"github.com/lorekeep/lorekeep-engine/pkg/models"
	"github.com/lorekeep/lorekeep-engine/pkg/repositories"
)

// MemberService provides the manual-curation operations on topic membership.
// All operations are scoped to (topic id, owner id) and are safe to retry:
// mutations are upsert/delete based, never increment-based.
type MemberService interface {
	// Add upserts a member for the note with source=manual. Re-adding an
	// existing member refreshes event_time and fingerprint from the note's
	// current state instead of creating a duplicate row.
	Add(ctx context.Context, ownerID, topicID, noteID uuid.UUID) (*models.TopicMember, error)

	// Remove deletes the member row. Removing an absent member is not an
	// error.
	Remove(ctx context.Context, ownerID, topicID, noteID uuid.UUID) error

	// Confirm marks the member confirmed without touching its clustering
	// fields (event_time, fingerprint, score).
	Confirm(ctx context.Context, ownerID, topicID, noteID uuid.UUID) (*models.TopicMember, error)

	// Exclude currently behaves identically to Remove: the row is deleted.
	Exclude(ctx context.Context, ownerID, topicID, noteID uuid.UUID) error

	// SetTime overrides the member's event time and recomputes its
	// fingerprint from the topic id and the note's title.
	SetTime(ctx context.Context, ownerID, topicID, noteID uuid.UUID, eventTime string) (*models.TopicMember, error)
}

type memberService struct {
	db      Store
	topics  repositories.TopicRepository
	notes   repositories.NoteRepository
	members repositories.MemberRepository
	logger  *zap.Logger
}

// NewMemberService creates a new MemberService.
func NewMemberService(
	db Store,
	topics repositories.TopicRepository,
	notes repositories.NoteRepository,
	members repositories.MemberRepository,
	logger *zap.Logger,
) MemberService {
	return &memberService{
		db:      db,
		topics:  topics,
		notes:   notes,
		members: members,
		logger:  logger.Named("member-service"),
	}
}

var _ MemberService = (*memberService)(nil)

func (s *memberService) Add(ctx context.Context, ownerID, topicID, noteID uuid.UUID) (*models.TopicMember, error) {
	if _, err := s.topics.Get(ctx, s.db, ownerID, topicID); err != nil {
		return nil, err
	}
	note, err := s.notes.Get(ctx, s.db, ownerID, noteID)
	if err != nil {
		return nil, err
	}

	member := &models.TopicMember{
		TopicID:     topicID,
		NoteID:      noteID,
		OwnerID:     ownerID,
		Source:      models.MemberSourceManual,
		ManualState: models.ManualStateManual,
	}
	applyEventTime(member, topicID, note.Title, cluster.ResolveEventTime(note))

	if err := s.members.Upsert(ctx, s.db, member); err != nil {
		return nil, err
	}
	s.refreshStats(ctx, topicID)

	return s.members.Get(ctx, s.db, topicID, noteID)
}

func (s *memberService) Remove(ctx context.Context, ownerID, topicID, noteID uuid.UUID) error {
	if _, err := s.topics.Get(ctx, s.db, ownerID, topicID); err != nil {
		return err
	}
	if err := s.members.Delete(ctx, s.db, topicID, noteID); err != nil {
		return err
	}
	s.refreshStats(ctx, topicID)
	return nil
}

func (s *memberService) Confirm(ctx context.Context, ownerID, topicID, noteID uuid.UUID) (*models.TopicMember, error) {
	if _, err := s.topics.Get(ctx, s.db, ownerID, topicID); err != nil {
		return nil, err
	}
	if err := s.members.SetManualState(ctx, s.db, topicID, noteID, models.ManualStateConfirmed); err != nil {
		return nil, err
	}
	return s.members.Get(ctx, s.db, topicID, noteID)
}

func (s *memberService) Exclude(ctx context.Context, ownerID, topicID, noteID uuid.UUID) error {
	// Exclusion keeps no tombstone today; see DESIGN.md for the open
	// question about a retained excluded state.
	return s.Remove(ctx, ownerID, topicID, noteID)
}

func (s *memberService) SetTime(ctx context.Context, ownerID, topicID, noteID uuid.UUID, eventTime string) (*models.TopicMember, error) {
	t, err := cluster.ParseTimestamp(eventTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	if _, err := s.topics.Get(ctx, s.db, ownerID, topicID); err != nil {
		return nil, err
	}
	member, err := s.members.Get(ctx, s.db, topicID, noteID)
	if err != nil {
		return nil, err
	}
	note, err := s.notes.Get(ctx, s.db, ownerID, noteID)
	if err != nil {
		return nil, err
	}

	member.Source = models.MemberSourceManual
	applyEventTime(member, topicID, note.Title, &t)

	if err := s.members.Upsert(ctx, s.db, member); err != nil {
		return nil, err
	}
	return s.members.Get(ctx, s.db, topicID, noteID)
}

// applyEventTime sets event_time and event_fingerprint together so the
// fingerprint is non-null iff a day-key could be derived.
func applyEventTime(member *models.TopicMember, topicID uuid.UUID, title string, eventTime *time.Time) {
	member.EventTime = eventTime
	member.EventFingerprint = nil
	if eventTime != nil {
		fp := cluster.Fingerprint(topicID, cluster.DayKeyFromTime(*eventTime), title)
		member.EventFingerprint = &fp
	}
}

// refreshStats keeps the cached member_count current. Best-effort: a failed
// refresh is logged, never surfaced, and the next mutation reconciles it.
func (s *memberService) refreshStats(ctx context.Context, topicID uuid.UUID) {
	if err := s.topics.RefreshStats(ctx, s.db, topicID); err != nil {
		s.logger.Warn("Failed to refresh topic stats",
			zap.String("topic_id", topicID.String()),
			zap.Error(err))
	}
}
