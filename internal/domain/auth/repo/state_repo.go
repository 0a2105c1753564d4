package repo

import (
	"context"
	"time"
)

// StateRepo keeps short-lived OAuth state values between the redirect to the
// provider and its callback.
type StateRepo interface {
	Save(ctx context.Context, state string, ttl time.Duration) error

	// Consume deletes the state and reports whether it existed.
	Consume(ctx context.Context, state string) (bool, error)
}
