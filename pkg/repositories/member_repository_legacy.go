package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lorekeep/lorekeep-engine/pkg/apperrors"
	"github.com/lorekeep/lorekeep-engine/pkg/models"
)

// legacyMemberRepository targets databases that predate the curation
// migration: no manual_state, no evidence_rank. Writes drop those fields;
// reads report their defaults. Selected once at startup, never per request.
type legacyMemberRepository struct{}

var _ MemberRepository = (*legacyMemberRepository)(nil)

const legacyMemberColumns = `topic_id, note_id, owner_id, score, source,
	event_time, event_fingerprint, created_at, updated_at`

func (r *legacyMemberRepository) Upsert(ctx context.Context, q Querier, member *models.TopicMember) error {
	now := time.Now().UTC()
	member.UpdatedAt = now
	if member.CreatedAt.IsZero() {
		member.CreatedAt = now
	}

	query := `
		INSERT INTO topic_members (
			topic_id, note_id, owner_id, score, source,
			event_time, event_fingerprint, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (topic_id, note_id) DO UPDATE SET
			score = EXCLUDED.score,
			source = EXCLUDED.source,
			event_time = EXCLUDED.event_time,
			event_fingerprint = EXCLUDED.event_fingerprint,
			updated_at = EXCLUDED.updated_at`

	_, err := q.Exec(ctx, query,
		member.TopicID, member.NoteID, member.OwnerID, member.Score, member.Source,
		member.EventTime, member.EventFingerprint, member.CreatedAt, member.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

func (r *legacyMemberRepository) Get(ctx context.Context, q Querier, topicID, noteID uuid.UUID) (*models.TopicMember, error) {
	query := `SELECT ` + legacyMemberColumns + ` FROM topic_members WHERE topic_id = $1 AND note_id = $2`

	member, err := scanLegacyMember(q.QueryRow(ctx, query, topicID, noteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

func (r *legacyMemberRepository) Delete(ctx context.Context, q Querier, topicID, noteID uuid.UUID) error {
	return (&memberRepository{}).Delete(ctx, q, topicID, noteID)
}

func (r *legacyMemberRepository) DeleteByTopic(ctx context.Context, q Querier, topicID uuid.UUID) error {
	return (&memberRepository{}).DeleteByTopic(ctx, q, topicID)
}

func (r *legacyMemberRepository) ListByTopic(ctx context.Context, q Querier, topicID uuid.UUID) ([]*models.TopicMember, error) {
	query := `SELECT ` + legacyMemberColumns + ` FROM topic_members
		WHERE topic_id = $1
		ORDER BY created_at, note_id`
	return queryLegacyMembers(ctx, q, query, topicID)
}

func (r *legacyMemberRepository) ListClusterable(ctx context.Context, q Querier, topicID uuid.UUID) ([]*models.TopicMember, error) {
	query := `SELECT ` + legacyMemberColumns + ` FROM topic_members
		WHERE topic_id = $1 AND event_fingerprint IS NOT NULL AND event_time IS NOT NULL
		ORDER BY created_at, note_id`
	return queryLegacyMembers(ctx, q, query, topicID)
}

func (r *legacyMemberRepository) ListWithNotes(ctx context.Context, q Querier, topicID uuid.UUID) ([]*models.MemberWithNote, error) {
	query := `
		SELECT m.topic_id, m.note_id, m.owner_id, m.score, m.source,
		       m.event_time, m.event_fingerprint, m.created_at, m.updated_at,
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
		err := rows.Scan(&m.TopicID, &m.NoteID, &m.OwnerID, &m.Score, &m.Source,
			&m.EventTime, &m.EventFingerprint, &m.CreatedAt, &m.UpdatedAt,
			&m.NoteTitle, &m.NoteExcerpt, &m.NotePublishedAt, &m.NoteCreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member with note: %w", err)
		}
		m.ManualState = models.ManualStateNone
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}

// SetManualState on the legacy schema can only record that the member became
// manual; the state itself has no column to live in.
func (r *legacyMemberRepository) SetManualState(ctx context.Context, q Querier, topicID, noteID uuid.UUID, state string) error {
	query := `
		UPDATE topic_members
		SET source = $3, updated_at = now()
		WHERE topic_id = $1 AND note_id = $2`

	tag, err := q.Exec(ctx, query, topicID, noteID, models.MemberSourceManual)
	if err != nil {
		return fmt.Errorf("failed to set manual state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *legacyMemberRepository) Count(ctx context.Context, q Querier, topicID uuid.UUID) (int, error) {
	return (&memberRepository{}).Count(ctx, q, topicID)
}

func queryLegacyMembers(ctx context.Context, q Querier, query string, args ...any) ([]*models.TopicMember, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []*models.TopicMember
	for rows.Next() {
		member, err := scanLegacyMember(rows)
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

func scanLegacyMember(row pgx.Row) (*models.TopicMember, error) {
	var m models.TopicMember
	err := row.Scan(&m.TopicID, &m.NoteID, &m.OwnerID, &m.Score, &m.Source,
		&m.EventTime, &m.EventFingerprint, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.ManualState = models.ManualStateNone
	return &m, nil
}
