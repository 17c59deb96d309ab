package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// autoSleepPrefix marks sleep entries written by the sync engine. The gateway
// deletes rows with this prefix before writing a fresh session, so the prefix
// is reserved: manual entries must never use it.
const autoSleepPrefix = "autosleep-"

// SleepEntryID derives the identifier for an auto-synced sleep session from
// (source, date). One source contributes at most one sleep session per day,
// so repeated syncs overwrite in place instead of duplicating.
func SleepEntryID(sourceTag string, date Date) string {
	return autoSleepPrefix + sourceTag + "-" + date.String()
}

// IsAutoSleepEntry reports whether the id belongs to an auto-synced session.
func IsAutoSleepEntry(entryID string) bool {
	return strings.HasPrefix(entryID, autoSleepPrefix)
}

// WorkoutEntryID derives the identifier for a workout from
// (source, date, start time, normalized activity type). Re-processing the
// same upstream workout always yields the same id, while two workouts on the
// same day differ in start time or type. The id is a truncated SHA-256 over
// the joined fields; 64 bits of digest keep accidental collisions below any
// realistic per-user entry count, and the inputs are delimiter-separated so
// field boundaries cannot ambiguate.
func WorkoutEntryID(sourceTag string, date Date, startedAt time.Time, activityType string) string {
	material := strings.Join([]string{
		sourceTag,
		date.String(),
		startedAt.UTC().Format(time.RFC3339),
		NormalizeActivityType(activityType),
	}, "|")
	sum := sha256.Sum256([]byte(material))
	return "workout-" + hex.EncodeToString(sum[:8])
}

// NormalizeActivityType canonicalises an upstream activity label so that the
// same workout reported as "Trail Run" and "trail run" derives one id.
func NormalizeActivityType(activityType string) string {
	normalized := strings.ToLower(strings.TrimSpace(activityType))
	return strings.Join(strings.Fields(normalized), "_")
}
