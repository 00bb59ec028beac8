package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lorekeep/lorekeep-engine/pkg/models"
)

// GraphRepository persists extracted entities and relationships.
type GraphRepository interface {
	// FindByNameOrAlias performs a single best-effort lookup matching an
	// extracted name against entity names and aliases, case-insensitively.
	// Returns (nil, nil) when nothing matches. Two unrelated entities
	// sharing an alias bind to whichever sorts first; see DESIGN.md for why
	// this semantics is reproduced rather than fixed.
	FindByNameOrAlias(ctx context.Context, q Querier, ownerID uuid.UUID, name string) (*models.GraphEntity, error)

	CreateEntity(ctx context.Context, q Querier, entity *models.GraphEntity) error

	// AddAlias appends an alias to an entity unless already present.
	AddAlias(ctx context.Context, q Querier, entityID uuid.UUID, alias string) error

	CreateRelationship(ctx context.Context, q Querier, rel *models.GraphRelationship) error

	// DeleteRelationshipsByNote clears a note's relationships before
	// re-extraction so repeated rebuilds do not accumulate duplicates.
	DeleteRelationshipsByNote(ctx context.Context, q Querier, ownerID, noteID uuid.UUID) error
}

type graphRepository struct{}

// NewGraphRepository creates a new GraphRepository.
func NewGraphRepository() GraphRepository {
	return &graphRepository{}
}

var _ GraphRepository = (*graphRepository)(nil)

func (r *graphRepository) FindByNameOrAlias(ctx context.Context, q Querier, ownerID uuid.UUID, name string) (*models.GraphEntity, error) {
	query := `
		SELECT id, owner_id, name, kind, aliases, created_at
		FROM graph_entities
		WHERE owner_id = $1
		  AND (lower(name) = lower($2)
		       OR EXISTS (SELECT 1 FROM unnest(aliases) a WHERE lower(a) = lower($2)))
		ORDER BY created_at
		LIMIT 1`

	var e models.GraphEntity
	err := q.QueryRow(ctx, query, ownerID, name).Scan(
		&e.ID, &e.OwnerID, &e.Name, &e.Kind, &e.Aliases, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find entity: %w", err)
	}
	return &e, nil
}

func (r *graphRepository) CreateEntity(ctx context.Context, q Querier, entity *models.GraphEntity) error {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	entity.CreatedAt = time.Now().UTC()
	if entity.Aliases == nil {
		entity.Aliases = []string{}
	}

	query := `
		INSERT INTO graph_entities (id, owner_id, name, kind, aliases, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id, name) DO NOTHING`

	if _, err := q.Exec(ctx, query,
		entity.ID, entity.OwnerID, entity.Name, entity.Kind, entity.Aliases, entity.CreatedAt); err != nil {
		return fmt.Errorf("failed to create entity: %w", err)
	}
	return nil
}

func (r *graphRepository) AddAlias(ctx context.Context, q Querier, entityID uuid.UUID, alias string) error {
	query := `
		UPDATE graph_entities
		SET aliases = array_append(aliases, $2)
		WHERE id = $1 AND NOT ($2 = ANY (aliases))`

	if _, err := q.Exec(ctx, query, entityID, alias); err != nil {
		return fmt.Errorf("failed to add alias: %w", err)
	}
	return nil
}

func (r *graphRepository) CreateRelationship(ctx context.Context, q Querier, rel *models.GraphRelationship) error {
	if rel.ID == uuid.Nil {
		rel.ID = uuid.New()
	}
	rel.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO graph_relationships (
			id, owner_id, source_entity_id, target_entity_id,
			relation, evidence, note_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := q.Exec(ctx, query,
		rel.ID, rel.OwnerID, rel.SourceEntityID, rel.TargetEntityID,
		rel.Relation, rel.Evidence, rel.NoteID, rel.CreatedAt); err != nil {
		return fmt.Errorf("failed to create relationship: %w", err)
	}
	return nil
}

func (r *graphRepository) DeleteRelationshipsByNote(ctx context.Context, q Querier, ownerID, noteID uuid.UUID) error {
	query := `DELETE FROM graph_relationships WHERE owner_id = $1 AND note_id = $2`
	if _, err := q.Exec(ctx, query, ownerID, noteID); err != nil {
		return fmt.Errorf("failed to delete note relationships: %w", err)
	}
	return nil
}
