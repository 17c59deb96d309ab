// Package domain defines the canonical daily health record and its entries.
package domain

import (
	"errors"
	"time"
)

// Source tags identify which upstream provider produced a value. They are
// baked into entry ids, so changing them would orphan previously synced rows.
const (
	SourceStructured = "structured"
	SourceLegacy     = "legacy"
)

// AutoSleepQuality is the fixed quality assigned to sleep sessions written by
// the sync engine. User-edited sessions carry their own value.
const AutoSleepQuality = "unrated"

// ErrRecordNotFound is returned when no daily record exists for a user/date.
var ErrRecordNotFound = errors.New("daily record not found")

// DailyRecord is the per-user, per-day aggregate all downstream features read.
// Steps and CaloriesBurned are only overwritten by a sync run that actually
// obtained data from a source; a run that reaches no source leaves them alone.
type DailyRecord struct {
	UserID         string
	Date           Date
	Steps          int
	CaloriesBurned int
	UpdatedAt      time.Time
}

// RecordUpdate carries the record fields one sync run computed. Nil fields
// are left untouched by the write; a non-nil zero is written as zero, because
// a successful sync's zero supersedes stale data.
type RecordUpdate struct {
	Steps    *int
	Calories *int
	// OnlyRaise makes the write monotonic: stored values are only replaced
	// by strictly higher ones. Used for late-arriving yesterday data.
	OnlyRaise bool
}

// Empty reports whether the update would write nothing.
func (u RecordUpdate) Empty() bool {
	return u.Steps == nil && u.Calories == nil
}

// SleepSession is a value object describing one sleep period. It belongs to
// the daily record of the date the session is assigned to by the window
// planner, which is not necessarily the date the session ends.
type SleepSession struct {
	StartTime time.Time
	EndTime   time.Time
	Quality   string
}

// Duration returns the length of the session.
func (s SleepSession) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// WorkoutEntry is a value object describing one workout.
type WorkoutEntry struct {
	ActivityType    string
	DurationMinutes int
	CaloriesBurned  int
	StartTime       time.Time
}

// SameActivity reports whether two entries describe the same workout with
// unchanged material fields, in which case a re-sync skips the write.
func (w WorkoutEntry) SameActivity(other WorkoutEntry) bool {
	return NormalizeActivityType(w.ActivityType) == NormalizeActivityType(other.ActivityType) &&
		w.DurationMinutes == other.DurationMinutes &&
		w.CaloriesBurned == other.CaloriesBurned
}

// SourceProfile captures a user's upstream connection state: opt-in flags,
// permission grants, provider credentials and the IANA time zone used for
// window planning.
type SourceProfile struct {
	UserID            string
	Timezone          string
	StructuredEnabled bool
	StructuredGranted bool
	StructuredToken   string
	LegacyAllowed     bool
	LegacyToken       string
	UpdatedAt         time.Time
}

// StructuredEligible reports whether the structured source may be invoked.
// Both the opt-in flag and the permission grant are required; invoking the
// provider without them raises a hard security failure upstream.
func (p SourceProfile) StructuredEligible() bool {
	return p.StructuredEnabled && p.StructuredGranted
}

// LegacyEligible reports whether the legacy source may be invoked.
func (p SourceProfile) LegacyEligible() bool {
	return p.LegacyAllowed
}

// AnyEligible reports whether at least one source may be invoked.
func (p SourceProfile) AnyEligible() bool {
	return p.StructuredEligible() || p.LegacyEligible()
}

// Location resolves the profile's time zone, defaulting to UTC when the zone
// is unset or unknown.
func (p SourceProfile) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
