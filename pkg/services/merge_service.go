package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-engine/pkg/apperrors"
	"github.com/lorekeep/lorekeep-engine/pkg/repositories"
)

// MergeResult reports a completed merge. Warning is set when the follow-up
// event rebuild failed; the merge itself still succeeded.
type MergeResult struct {
	Merged  int    `json:"merged"`
	Warning string `json:"warning,omitempty"`
}

// MergeService unions one topic's membership into another and deletes the
// source topic.
type MergeService interface {
	Merge(ctx context.Context, ownerID, targetID, sourceID uuid.UUID) (*MergeResult, error)
}

type mergeService struct {
	db      Store
	topics  repositories.TopicRepository
	members repositories.MemberRepository
	events  repositories.EventRepository
	rebuild EventService
	logger  *zap.Logger
}

// NewMergeService creates a new MergeService.
func NewMergeService(
	db Store,
	topics repositories.TopicRepository,
	members repositories.MemberRepository,
	events repositories.EventRepository,
	rebuild EventService,
	logger *zap.Logger,
) MergeService {
	return &mergeService{
		db:      db,
		topics:  topics,
		members: members,
		events:  events,
		rebuild: rebuild,
		logger:  logger.Named("merge-service"),
	}
}

var _ MergeService = (*mergeService)(nil)

// Merge moves every source member into the target, keyed by (target,
// note_id). A source row overwrites a conflicting target row for the same
// note verbatim, including manual curation state; see DESIGN.md for why
// this policy is reproduced as-is. The upserts, deletes and stat refresh
// run in one transaction ordered upsert-before-delete, so an interrupted
// merge can leave duplicated data across target and source but never lost
// data.
func (s *mergeService) Merge(ctx context.Context, ownerID, targetID, sourceID uuid.UUID) (*MergeResult, error) {
	if targetID == sourceID {
		return nil, fmt.Errorf("%w: cannot merge a topic into itself", apperrors.ErrInvalidInput)
	}

	if _, err := s.topics.Get(ctx, s.db, ownerID, targetID); err != nil {
		return nil, err
	}
	if _, err := s.topics.Get(ctx, s.db, ownerID, sourceID); err != nil {
		return nil, err
	}

	sourceMembers, err := s.members.ListByTopic(ctx, s.db, sourceID)
	if err != nil {
		return nil, err
	}

	// An empty source is just deleted; the target is untouched and no
	// rebuild runs.
	if len(sourceMembers) == 0 {
		if err := s.topics.Delete(ctx, s.db, ownerID, sourceID); err != nil {
			return nil, err
		}
		s.logger.Info("Merged empty topic",
			zap.String("target_id", targetID.String()),
			zap.String("source_id", sourceID.String()))
		return &MergeResult{Merged: 0}, nil
	}

	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, m := range sourceMembers {
			m.TopicID = targetID
			if err := s.members.Upsert(ctx, tx, m); err != nil {
				return err
			}
		}
		if err := s.members.DeleteByTopic(ctx, tx, sourceID); err != nil {
			return err
		}
		if err := s.events.DeleteByTopic(ctx, tx, sourceID); err != nil {
			return err
		}
		if err := s.topics.Delete(ctx, tx, ownerID, sourceID); err != nil {
			return err
		}
		return s.topics.RefreshStats(ctx, tx, targetID)
	})
	if err != nil {
		return nil, err
	}

	result := &MergeResult{Merged: len(sourceMembers)}

	// Rebuild is best-effort: the merge already committed, so a rebuild
	// failure is surfaced as a warning rather than failing the operation.
	// A later rebuild trigger reconciles the event view.
	if _, err := s.rebuild.Rebuild(ctx, ownerID, targetID); err != nil {
		s.logger.Warn("Event rebuild after merge failed",
			zap.String("target_id", targetID.String()),
			zap.Error(err))
		result.Warning = fmt.Sprintf("events not rebuilt: %v", err)
	}

	s.logger.Info("Merged topics",
		zap.String("target_id", targetID.String()),
		zap.String("source_id", sourceID.String()),
		zap.Int("merged", result.Merged))
	return result, nil
}
