package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lorekeep/lorekeep-engine/pkg/models"
)

// EventRepository persists the derived event view. Events are regenerated
// wholesale; there is no single-event update path.
type EventRepository interface {
	// ReplaceForTopic discards all prior events for the topic and inserts
	// the given set. Callers MUST run this inside a transaction so no reader
	// observes a topic with clusterable members but zero events.
	ReplaceForTopic(ctx context.Context, q Querier, topicID uuid.UUID, events []*models.TopicEvent) error

	// ListByTopic returns events ordered by event time.
	ListByTopic(ctx context.Context, q Querier, topicID uuid.UUID) ([]*models.TopicEvent, error)

	DeleteByTopic(ctx context.Context, q Querier, topicID uuid.UUID) error
}

type eventRepository struct{}

// NewEventRepository creates a new EventRepository.
func NewEventRepository() EventRepository {
	return &eventRepository{}
}

var _ EventRepository = (*eventRepository)(nil)

func (r *eventRepository) ReplaceForTopic(ctx context.Context, q Querier, topicID uuid.UUID, events []*models.TopicEvent) error {
	if err := r.DeleteByTopic(ctx, q, topicID); err != nil {
		return err
	}

	query := `
		INSERT INTO topic_events (
			id, topic_id, owner_id, event_time, title, summary,
			fingerprint, importance, source, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`

	for _, ev := range events {
		if ev.ID == uuid.Nil {
			ev.ID = uuid.New()
		}
		source, err := json.Marshal(ev.Source)
		if err != nil {
			return fmt.Errorf("failed to marshal event source: %w", err)
		}

		_, err = q.Exec(ctx, query,
			ev.ID, ev.TopicID, ev.OwnerID, ev.EventTime, ev.Title, ev.Summary,
			ev.Fingerprint, ev.Importance, source,
		)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}
	return nil
}

func (r *eventRepository) ListByTopic(ctx context.Context, q Querier, topicID uuid.UUID) ([]*models.TopicEvent, error) {
	query := `
		SELECT id, topic_id, owner_id, event_time, title, summary,
		       fingerprint, importance, source, created_at
		FROM topic_events
		WHERE topic_id = $1
		ORDER BY event_time`

	rows, err := q.Query(ctx, query, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*models.TopicEvent
	for rows.Next() {
		var ev models.TopicEvent
		var source []byte
		err := rows.Scan(&ev.ID, &ev.TopicID, &ev.OwnerID, &ev.EventTime, &ev.Title, &ev.Summary,
			&ev.Fingerprint, &ev.Importance, &source, &ev.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if len(source) > 0 {
			if err := json.Unmarshal(source, &ev.Source); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event source: %w", err)
			}
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

func (r *eventRepository) DeleteByTopic(ctx context.Context, q Querier, topicID uuid.UUID) error {
	if _, err := q.Exec(ctx, `DELETE FROM topic_events WHERE topic_id = $1`, topicID); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}
