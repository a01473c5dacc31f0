// Package store persists leads. Every backend keeps insertion order and hands
// out copies only.
//
// Updates go through Execute(ctx, id, validate, mutate): the backend locks the
// record, runs validate on a copy and aborts without writing if it fails,
// otherwise runs mutate, restores ID and SubmittedAt and persists the result.
package store

import (
	"context"

	"leadtriage/internal/leads/models"
)

// Migrator is implemented by backends that need a schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// protectImmutable restores fields no update may change.
func protectImmutable(orig, updated *models.Lead) {
	updated.ID = orig.ID
	updated.SubmittedAt = orig.SubmittedAt
}
