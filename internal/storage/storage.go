// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"toot2mail/internal/dedup"
	"toot2mail/internal/model"
)

// Storage is the durable state store mapping sources to their seen sets.
// It is the single source of truth for what has already been notified.
type Storage interface {
	// IsKnownSource reports whether the source has been registered by a
	// previous run. Used for the first-run seeding policy.
	IsKnownSource(ctx context.Context, key string) (bool, error)
	// RegisterSource records that the source has completed its first cycle.
	RegisterSource(ctx context.Context, src model.Source) error

	// LoadSeen returns the full seen set of a source.
	LoadSeen(ctx context.Context, key string) (dedup.SeenSet, error)
	// MarkSeen durably records a notified status identifier. Idempotent.
	MarkSeen(ctx context.Context, key, statusURI string) error
	// PruneSeen removes seen entries older than cutoff while always
	// retaining at least keepAtLeast most recent entries per source, so an
	// identifier still inside a fetch window is never dropped. Returns the
	// number of removed rows.
	PruneSeen(ctx context.Context, key string, cutoff time.Time, keepAtLeast int) (int64, error)

	Close() error
}
