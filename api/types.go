package api

import (
	"context"

	"hustlehub-api/ambient"
	"hustlehub-api/domain"
)

// Storage abstracts task persistence for handlers.
type Storage interface {
	ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	InsertTask(ctx context.Context, task domain.Task) (domain.Task, error)
	DeleteTask(ctx context.Context, ownerID, taskID string) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents double-processing of task creations replayed with the
// same idempotency key.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the store write fails.
	Remove(ctx context.Context, userID, key string) error
}

// AmbientSource exposes the current location/weather/clock snapshot and lets
// callers re-run the pipeline when the snapshot has gone stale.
type AmbientSource interface {
	Snapshot() ambient.Snapshot
	Refresh()
}
