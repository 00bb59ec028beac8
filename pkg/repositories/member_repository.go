package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lorekeep/lorekeep-engine/pkg/apperrors"
	"github.com/lorekeep/lorekeep-engine/pkg/database"
	"github.com/lorekeep/lorekeep-engine/pkg/models"
)

// MemberRepository owns the topic/note membership relation. The
// (topic_id, note_id) uniqueness constraint is the sole concurrency-control
// primitive: concurrent writers on the same pair converge to one row via
// Upsert, last write wins.
//
// Two implementations exist, selected once at startup from the detected
// schema version. The legacy one runs against databases that predate the
// curation columns (manual_state, evidence_rank) and reports defaults for
// them.
type MemberRepository interface {
	// Upsert inserts or overwrites the member keyed by (topic_id, note_id).
	// Re-adding an existing member refreshes its fields rather than
	// duplicating the row. created_at is preserved on conflict so insertion
	// order stays stable for event tie-breaking.
	Upsert(ctx context.Context, q Querier, member *models.TopicMember) error

	// Get returns apperrors.ErrNotFound when no such member exists.
	Get(ctx context.Context, q Querier, topicID, noteID uuid.UUID) (*models.TopicMember, error)

	// Delete removes the member row. Removing an absent member is not an
	// error.
	Delete(ctx context.Context, q Querier, topicID, noteID uuid.UUID) error

	DeleteByTopic(ctx context.Context, q Querier, topicID uuid.UUID) error

	// ListByTopic returns all members ordered by insertion.
	ListByTopic(ctx context.Context, q Querier, topicID uuid.UUID) ([]*models.TopicMember, error)

	// ListClusterable returns members carrying both a fingerprint and an
	// event time, ordered by insertion. Only these participate in event
	// rebuilds.
	ListClusterable(ctx context.Context, q Querier, topicID uuid.UUID) ([]*models.TopicMember, error)

	// ListWithNotes joins members with note metadata for detail views.
	ListWithNotes(ctx context.Context, q Querier, topicID uuid.UUID) ([]*models.MemberWithNote, error)

	// SetManualState updates manual_state and flips source to manual,
	// leaving score and the clustering fields untouched. Returns
	// apperrors.ErrNotFound when the member does not exist.
	SetManualState(ctx context.Context, q Querier, topicID, noteID uuid.UUID, state string) error

	Count(ctx context.Context, q Querier, topicID uuid.UUID) (int, error)
}

// NewMemberRepository returns the implementation matching the schema
// version detected at startup.
func NewMemberRepository(version database.SchemaVersion) MemberRepository {
	if version == database.SchemaLegacy {
		return &legacyMemberRepository{}
	}
	return &memberRepository{}
}

// ============================================================================
// Current schema
// ============================================================================

type memberRepository struct{}

var _ MemberRepository = (*memberRepository)(nil)

const memberColumns = `topic_id, note_id, owner_id, score, source, manual_state,
	event_time, event_fingerprint, evidence_rank, created_at, updated_at`

func (r *memberRepository) Upsert(ctx context.Context, q Querier, member *models.TopicMember) error {
	now := time.Now().UTC()
	member.UpdatedAt = now
	if member.CreatedAt.IsZero() {
		member.CreatedAt = now
	}
	if member.ManualState == "" {
		member.ManualState = models.ManualStateNone
	}

	query := `
		INSERT INTO topic_members (
			topic_id, note_id, owner_id, score, source, manual_state,
			event_time, event_fingerprint, evidence_rank, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (topic_id, note_id) DO UPDATE SET
			score = EXCLUDED.score,
			source = EXCLUDED.source,
			manual_state = EXCLUDED.manual_state,
			event_time = EXCLUDED.event_time,
			event_fingerprint = EXCLUDED.event_fingerprint,
			evidence_rank = EXCLUDED.evidence_rank,
			updated_at = EXCLUDED.updated_at`

	_, err := q.Exec(ctx, query,
		member.TopicID, member.NoteID, member.OwnerID, member.Score,
		member.Source, member.ManualState,
		member.EventTime, member.EventFingerprint, member.EvidenceRank,
		member.CreatedAt, member.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

func (r *memberRepository) Get(ctx context.Context, q Querier, topicID, noteID uuid.UUID) (*models.TopicMember, error) {
	query := `SELECT ` + memberColumns + ` FROM topic_members WHERE topic_id = $1 AND note_id = $2`

	member, err := scanMember(q.QueryRow(ctx, query, topicID, noteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

func (r *memberRepository) Delete(ctx context.Context, q Querier, topicID, noteID uuid.UUID) error {
	_, err := q.Exec(ctx, `DELETE FROM topic_members WHERE topic_id = $1 AND note_id = $2`, topicID, noteID)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	return nil
}

func (r *memberRepository) DeleteByTopic(ctx context.Context, q Querier, topicID uuid.UUID) error {
	_, err := q.Exec(ctx, `DELETE FROM topic_members WHERE topic_id = $1`, topicID)
	if err != nil {
		return fmt.Errorf("failed to delete members: %w", err)
	}
	return nil
}

func (r *memberRepository) ListByTopic(ctx context.Context, q Querier, topicID uuid.UUID) ([]*models.TopicMember, error) {
	query := `SELECT ` + memberColumns + ` FROM topic_members
		WHERE topic_id = $1
		ORDER BY created_at, note_id`
	return queryMembers(ctx, q, query, topicID)
}

func (r *memberRepository) ListClusterable(ctx context.Context, q Querier, topicID uuid.UUID) ([]*models.TopicMember, error) {
	query := `SELECT ` + memberColumns + ` FROM topic_members
		WHERE topic_id = $1 AND event_fingerprint IS NOT NULL AND event_time IS NOT NULL
		ORDER BY created_at, note_id`
	return queryMembers(ctx, q, query, topicID)
}

func (r *memberRepository) ListWithNotes(ctx context.Context, q Querier, topicID uuid.UUID) ([]*models.MemberWithNote, error) {
	query := `
		SELECT m.topic_id, m.note_id, m.owner_id, m.score, m.source, m.manual_state,
		       m.event_time, m.event_fingerprint, m.evidence_rank, m.created_at, m.updated_at,
		       n.title, n.excerpt, n.published_at, n.created_at
		FROM topic_members m
		JOIN notes n ON n.id = m.note_id
		WHERE m.topic_id = $1
		ORDER BY m.created_at, m.note_id`

	rows, err := q.Query(ctx, query, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members with notes: %w", err)
	}
	defer rows.Close()

	var members []*models.MemberWithNote
	for rows.Next() {
		var m models.MemberWithNote
		err := rows.Scan(&m.TopicID, &m.NoteID, &m.OwnerID, &m.Score, &m.Source, &m.ManualState,
			&m.EventTime, &m.EventFingerprint, &m.EvidenceRank, &m.CreatedAt, &m.UpdatedAt,
			&m.NoteTitle, &m.NoteExcerpt, &m.NotePublishedAt, &m.NoteCreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member with note: %w", err)
		}
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}

func (r *memberRepository) SetManualState(ctx context.Context, q Querier, topicID, noteID uuid.UUID, state string) error {
	query := `
		UPDATE topic_members
		SET manual_state = $3, source = $4, updated_at = now()
		WHERE topic_id = $1 AND note_id = $2`

	tag, err := q.Exec(ctx, query, topicID, noteID, state, models.MemberSourceManual)
	if err != nil {
		return fmt.Errorf("failed to set manual state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *memberRepository) Count(ctx context.Context, q Querier, topicID uuid.UUID) (int, error) {
	var count int
	err := q.QueryRow(ctx, `SELECT count(*) FROM topic_members WHERE topic_id = $1`, topicID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return count, nil
}

func queryMembers(ctx context.Context, q Querier, query string, args ...any) ([]*models.TopicMember, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []*models.TopicMember
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}

func scanMember(row pgx.Row) (*models.TopicMember, error) {
	var m models.TopicMember
	err := row.Scan(&m.TopicID, &m.NoteID, &m.OwnerID, &m.Score, &m.Source, &m.ManualState,
		&m.EventTime, &m.EventFingerprint, &m.EvidenceRank, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
