// Package events defines the cross-service event payloads published by the
// sync engine and consumed by downstream features.
package events

import "time"

// DailyRecordUpdated is emitted whenever a sync run persists new values for a
// user's daily record. Habit, quest and score services react to it instead of
// polling the record API.
type DailyRecordUpdated struct {
	UserID         string    `json:"user_id"`
	Date           string    `json:"date"`
	Steps          int       `json:"steps"`
	CaloriesBurned int       `json:"calories_burned"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Advisory categories the orchestrator can emit. These are advisory only and
// never influence the run's outcome.
const (
	AdvisoryPermissionRequired = "permission_required"
	AdvisorySourceNotConnected = "source_not_connected"
	AdvisoryNoSources          = "no_data_sources_connected"
	AdvisorySyncFailed         = "sync_failed"
)

// SyncAdvisory is a user-facing notification request raised when a run cannot
// proceed or cannot find data. The notification service renders and delivers
// it.
type SyncAdvisory struct {
	UserID     string    `json:"user_id"`
	Category   string    `json:"category"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SyncRequested asks the engine to run a sync for one user. Produced by the
// background scheduler and by other services; consumed by cmd/consumer.
type SyncRequested struct {
	UserID      string    `json:"user_id"`
	Trigger     string    `json:"trigger"`
	RequestedAt time.Time `json:"requested_at"`
}
