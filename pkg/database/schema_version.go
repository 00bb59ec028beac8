package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// SchemaVersion describes which member columns the live database carries.
// Older deployments predate the curation columns (manual_state,
// evidence_rank); the version is probed ONCE at startup and a single
// capability-appropriate repository is constructed from it, instead of
// sniffing error text per request.
type SchemaVersion int

const (
	// SchemaLegacy lacks manual_state and evidence_rank on topic_members.
	SchemaLegacy SchemaVersion = iota
	// SchemaCurrent carries the full curation column set.
	SchemaCurrent
)

func (v SchemaVersion) String() string {
	if v == SchemaLegacy {
		return "legacy"
	}
	return "current"
}

// DetectSchemaVersion probes information_schema for the evidence_rank column
// on topic_members. evidence_rank arrived in the same migration as
// manual_state, so one probe covers both.
func DetectSchemaVersion(ctx context.Context, db *DB, logger *zap.Logger) (SchemaVersion, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'topic_members' AND column_name = 'evidence_rank'
		)`

	var present bool
	if err := db.QueryRow(ctx, query).Scan(&present); err != nil {
		return SchemaLegacy, fmt.Errorf("probe schema version: %w", err)
	}

	version := SchemaLegacy
	if present {
		version = SchemaCurrent
	}
	logger.Info("Detected member schema version", zap.String("version", version.String()))
	return version, nil
}
