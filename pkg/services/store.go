// Package services implements the topic aggregation engine's operations on
// top of the repository layer.
package services

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/lorekeep/lorekeep-engine/pkg/repositories"
)

// Store is the database surface the services need: direct queries plus
// transaction scoping for multi-row critical sections. *database.DB
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	repositories.Querier

	// WithTx runs fn inside a transaction, committing on nil error.
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}
