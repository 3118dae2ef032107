// Package checkpoint persists per-source resume anchors so a restarted
// watcher picks up roughly where it left off instead of from "now". Saves
// are best effort; a restart may replay a few items around the boundary.
package checkpoint

import "context"

// Store loads and saves the resume anchor for a listing source.
type Store interface {
	// Load returns the persisted anchor for source, or "" when none exists.
	Load(ctx context.Context, source string) (string, error)

	// Save persists the anchor for source, overwriting any previous value.
	Save(ctx context.Context, source string, anchor string) error
}

// Compile-time interface compliance check.
var _ Store = (*NoopStore)(nil)

// NoopStore discards saves and never resumes. Used when no Redis is
// configured.
type NoopStore struct{}

// NewNoopStore creates a checkpoint store that persists nothing.
func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

func (*NoopStore) Load(_ context.Context, _ string) (string, error) {
	return "", nil
}

func (*NoopStore) Save(_ context.Context, _ string, _ string) error {
	return nil
}
