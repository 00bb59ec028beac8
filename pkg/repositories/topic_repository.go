package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lorekeep/lorekeep-engine/pkg/apperrors"
	"github.com/lorekeep/lorekeep-engine/pkg/models"
)

// TopicRepository provides data access for topics. All reads and writes are
// scoped to the owning user; no cross-user sharing exists.
type TopicRepository interface {
	Create(ctx context.Context, q Querier, topic *models.Topic) error
	Get(ctx context.Context, q Querier, ownerID, topicID uuid.UUID) (*models.Topic, error)

	// List returns the owner's topics ordered pinned desc, pinned_at desc,
	// archived asc, updated_at desc.
	List(ctx context.Context, q Querier, ownerID uuid.UUID) ([]*models.Topic, error)

	// FindByTitle looks up a topic by exact title, case-insensitively.
	// Returns (nil, nil) when no topic matches.
	FindByTitle(ctx context.Context, q Querier, ownerID uuid.UUID, title string) (*models.Topic, error)

	Delete(ctx context.Context, q Querier, ownerID, topicID uuid.UUID) error

	// SetPinned sets pinned and pinned_at atomically: the timestamp is
	// non-null iff the flag is true. Returns the updated topic.
	SetPinned(ctx context.Context, q Querier, ownerID, topicID uuid.UUID, pinned bool) (*models.Topic, error)

	// SetArchived mirrors SetPinned for the archived flag.
	SetArchived(ctx context.Context, q Querier, ownerID, topicID uuid.UUID, archived bool) (*models.Topic, error)

	// RefreshStats recomputes member_count from the current row count and
	// stamps last_ingested_at with now.
	RefreshStats(ctx context.Context, q Querier, topicID uuid.UUID) error

	// UpdateReport persists collaborator-generated naming. Title and
	// keywords are only written when non-zero; the summary always is.
	UpdateReport(ctx context.Context, q Querier, ownerID, topicID uuid.UUID, title string, keywords []string, summary string) error
}

type topicRepository struct{}

// NewTopicRepository creates a new TopicRepository.
func NewTopicRepository() TopicRepository {
	return &topicRepository{}
}

var _ TopicRepository = (*topicRepository)(nil)

const topicColumns = `id, owner_id, title, keywords, summary, member_count, config,
	pinned, pinned_at, archived, archived_at, last_ingested_at, created_at, updated_at`

func (r *topicRepository) Create(ctx context.Context, q Querier, topic *models.Topic) error {
	if topic.ID == uuid.Nil {
		topic.ID = uuid.New()
	}
	now := time.Now().UTC()
	topic.CreatedAt = now
	topic.UpdatedAt = now
	if topic.Keywords == nil {
		topic.Keywords = []string{}
	}

	cfg, err := json.Marshal(topic.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal topic config: %w", err)
	}
	if topic.Config == nil {
		cfg = []byte(`{}`)
	}

	query := `
		INSERT INTO topics (
			id, owner_id, title, keywords, summary, member_count, config,
			pinned, pinned_at, archived, archived_at, last_ingested_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = q.Exec(ctx, query,
		topic.ID, topic.OwnerID, topic.Title, topic.Keywords, topic.Summary,
		topic.MemberCount, cfg,
		topic.Pinned, topic.PinnedAt, topic.Archived, topic.ArchivedAt,
		topic.LastIngestedAt, topic.CreatedAt, topic.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}
	return nil
}

func (r *topicRepository) Get(ctx context.Context, q Querier, ownerID, topicID uuid.UUID) (*models.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics WHERE id = $1 AND owner_id = $2`

	topic, err := scanTopic(q.QueryRow(ctx, query, topicID, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}
	return topic, nil
}

func (r *topicRepository) List(ctx context.Context, q Querier, ownerID uuid.UUID) ([]*models.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics
		WHERE owner_id = $1
		ORDER BY pinned DESC, pinned_at DESC NULLS LAST, archived ASC, updated_at DESC`

	rows, err := q.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query topics: %w", err)
	}
	defer rows.Close()

	var topics []*models.Topic
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating topics: %w", err)
	}
	return topics, nil
}

func (r *topicRepository) FindByTitle(ctx context.Context, q Querier, ownerID uuid.UUID, title string) (*models.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics
		WHERE owner_id = $1 AND lower(title) = lower($2)
		ORDER BY created_at
		LIMIT 1`

	topic, err := scanTopic(q.QueryRow(ctx, query, ownerID, title))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find topic by title: %w", err)
	}
	return topic, nil
}

func (r *topicRepository) Delete(ctx context.Context, q Querier, ownerID, topicID uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM topics WHERE id = $1 AND owner_id = $2`, topicID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete topic: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *topicRepository) SetPinned(ctx context.Context, q Querier, ownerID, topicID uuid.UUID, pinned bool) (*models.Topic, error) {
	query := `
		UPDATE topics
		SET pinned = $3,
		    pinned_at = CASE WHEN $3 THEN now() ELSE NULL END,
		    updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + topicColumns

	topic, err := scanTopic(q.QueryRow(ctx, query, topicID, ownerID, pinned))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to set pinned: %w", err)
	}
	return topic, nil
}

func (r *topicRepository) SetArchived(ctx context.Context, q Querier, ownerID, topicID uuid.UUID, archived bool) (*models.Topic, error) {
	query := `
		UPDATE topics
		SET archived = $3,
		    archived_at = CASE WHEN $3 THEN now() ELSE NULL END,
		    updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + topicColumns

	topic, err := scanTopic(q.QueryRow(ctx, query, topicID, ownerID, archived))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to set archived: %w", err)
	}
	return topic, nil
}

func (r *topicRepository) RefreshStats(ctx context.Context, q Querier, topicID uuid.UUID) error {
	query := `
		UPDATE topics
		SET member_count = (SELECT count(*) FROM topic_members WHERE topic_id = $1),
		    last_ingested_at = now(),
		    updated_at = now()
		WHERE id = $1`

	if _, err := q.Exec(ctx, query, topicID); err != nil {
		return fmt.Errorf("failed to refresh topic stats: %w", err)
	}
	return nil
}

func (r *topicRepository) UpdateReport(ctx context.Context, q Querier, ownerID, topicID uuid.UUID, title string, keywords []string, summary string) error {
	query := `
		UPDATE topics
		SET title = COALESCE(NULLIF($3, ''), title),
		    keywords = CASE WHEN $4::text[] IS NULL THEN keywords ELSE $4 END,
		    summary = $5,
		    updated_at = now()
		WHERE id = $1 AND owner_id = $2`

	tag, err := q.Exec(ctx, query, topicID, ownerID, title, keywords, summary)
	if err != nil {
		return fmt.Errorf("failed to update topic report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanTopic(row pgx.Row) (*models.Topic, error) {
	var t models.Topic
	var cfg []byte
	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Keywords, &t.Summary,
		&t.MemberCount, &cfg,
		&t.Pinned, &t.PinnedAt, &t.Archived, &t.ArchivedAt,
		&t.LastIngestedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &t.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal topic config: %w", err)
		}
	}
	return &t, nil
}
