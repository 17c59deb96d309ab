// Package source reads daily activity metrics from the upstream fitness
// providers. Adapters are pure readers: they never mutate provider state and
// may legitimately return zero data without error.
package source

import (
	"context"
	"errors"
	"time"

	"example.com/healthsync/internal/domain"
)

// ErrPermissionDenied is returned when the provider rejects the caller's
// credentials or grants. It is fatal for the run: callers must not retry.
var ErrPermissionDenied = errors.New("source permission denied")

// ErrSourceUnavailable is returned for transport failures and provider-side
// errors. Callers may retry.
var ErrSourceUnavailable = errors.New("source unavailable")

// Adapter is the capability contract both upstream providers implement. All
// reads take an explicit [start, end) range; the caller decides which window
// fits which provider.
type Adapter interface {
	// Tag identifies the provider in entry ids and logs.
	Tag() string
	ReadSteps(ctx context.Context, start, end time.Time) (int, error)
	ReadCalories(ctx context.Context, start, end time.Time) (int, error)
	ReadSleep(ctx context.Context, start, end time.Time) ([]domain.SleepSession, error)
	ReadWorkouts(ctx context.Context, start, end time.Time) ([]domain.WorkoutEntry, error)
}
