package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lorekeep/lorekeep-engine/pkg/apperrors"
	"github.com/lorekeep/lorekeep-engine/pkg/models"
)

// NoteRepository provides read access to the document store. The aggregation
// engine never writes notes.
type NoteRepository interface {
	// Get loads a note by id scoped to its owner. Returns
	// apperrors.ErrNotFound when the note does not exist or belongs to
	// somebody else.
	Get(ctx context.Context, q Querier, ownerID, noteID uuid.UUID) (*models.Note, error)

	// ListRecent returns the owner's most recently created notes, newest
	// first, for batch graph rebuilds.
	ListRecent(ctx context.Context, q Querier, ownerID uuid.UUID, limit int) ([]*models.Note, error)
}

type noteRepository struct{}

// NewNoteRepository creates a new NoteRepository.
func NewNoteRepository() NoteRepository {
	return &noteRepository{}
}

var _ NoteRepository = (*noteRepository)(nil)

const noteColumns = `id, owner_id, title, excerpt, body, published_at, event_time, created_at, updated_at`

func (r *noteRepository) Get(ctx context.Context, q Querier, ownerID, noteID uuid.UUID) (*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE id = $1 AND owner_id = $2`

	note, err := scanNote(q.QueryRow(ctx, query, noteID, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return note, nil
}

func (r *noteRepository) ListRecent(ctx context.Context, q Querier, ownerID uuid.UUID, limit int) ([]*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := q.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent notes: %w", err)
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notes: %w", err)
	}
	return notes, nil
}

func scanNote(row pgx.Row) (*models.Note, error) {
	var n models.Note
	err := row.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Excerpt, &n.Body,
		&n.PublishedAt, &n.EventTime, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
