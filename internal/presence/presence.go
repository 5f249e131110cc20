// Package presence tracks live user availability separately from the
// durable user records, so status flaps do not churn the document store.
package presence

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownUser is returned when no presence has ever been recorded for a
// user.
var ErrUnknownUser = errors.New("presence: unknown user")

// Status is a user's live presence.
type Status struct {
	Status   string
	LastSeen time.Time
}

// Store records and serves live presence.
type Store interface {
	// SetStatus records an explicit status change (online/away/offline).
	SetStatus(ctx context.Context, userID, status string) error
	// Heartbeat refreshes last-seen without changing the status.
	Heartbeat(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) (*Status, error)
}
