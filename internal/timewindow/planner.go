// Package timewindow computes the query time ranges for one sync run. It is
// pure: given an instant and the user's zone it derives every window the
// reading stage needs, and performs no I/O.
package timewindow

import (
	"time"

	"example.com/healthsync/internal/domain"
)

// DefaultFinalizeCutoff is the local clock time after which the structured
// provider is assumed to have finalized step counts for the day. It is
// configuration, not a law of nature: upstream providers document nothing
// here, so deployments can tune it.
const DefaultFinalizeCutoff = 23*time.Hour + 59*time.Minute

// sleepPadding widens the sleep query on both sides so sessions straddling
// midnight are visible to the source that filters internally.
const sleepPadding = 12 * time.Hour

// workoutLookahead extends the workout query slightly past now to absorb
// clock skew between us and the provider.
const workoutLookahead = time.Hour

// Range is a half-open [Start, End) query interval.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Windows holds every time range one sync run queries.
type Windows struct {
	Today     domain.Date
	Yesterday domain.Date

	// TodayRange spans local midnight through end of the current day.
	TodayRange Range
	// YesterdayRange spans the previous local calendar day, used for
	// late-sync catch-up reads.
	YesterdayRange Range
	// StepsQueryEnd bounds the steps query: "now" while the day is still in
	// progress, end of day once past the finalize cutoff. Querying the full
	// day before the provider finalizes silently returns zero.
	StepsQueryEnd time.Time
	// SleepQuery is the wide window for the source that filters sessions
	// internally.
	SleepQuery Range
	// SleepTarget is exactly today's calendar boundaries, used to tell the
	// other source which day a session belongs to.
	SleepTarget Range
	// WorkoutQuery is widened backward to yesterday's midnight so workouts
	// that reached the provider late are still captured.
	WorkoutQuery Range
}

// Planner derives Windows from an instant and a location.
type Planner struct {
	// FinalizeCutoff is the local clock offset from midnight after which the
	// day is treated as finalized. Zero means DefaultFinalizeCutoff.
	FinalizeCutoff time.Duration
}

// Plan computes the query windows for a run happening at now, in the user's
// local zone.
func (p Planner) Plan(now time.Time, loc *time.Location) Windows {
	cutoff := p.FinalizeCutoff
	if cutoff == 0 {
		cutoff = DefaultFinalizeCutoff
	}

	local := now.In(loc)
	today := domain.DateOf(local)
	yesterday := today.AddDays(-1)

	midnight := today.Midnight(loc)
	endOfDay := midnight.Add(24*time.Hour - time.Second)
	yesterdayMidnight := yesterday.Midnight(loc)

	pastCutoff := local.Sub(midnight) >= cutoff

	stepsEnd := local
	workoutEnd := local.Add(workoutLookahead)
	if pastCutoff {
		stepsEnd = endOfDay
		workoutEnd = endOfDay.Add(workoutLookahead)
	}

	return Windows{
		Today:          today,
		Yesterday:      yesterday,
		TodayRange:     Range{Start: midnight, End: endOfDay},
		YesterdayRange: Range{Start: yesterdayMidnight, End: midnight},
		StepsQueryEnd:  stepsEnd,
		SleepQuery:     Range{Start: yesterdayMidnight.Add(-sleepPadding), End: endOfDay.Add(sleepPadding)},
		SleepTarget:    Range{Start: midnight, End: endOfDay},
		WorkoutQuery:   Range{Start: yesterdayMidnight, End: workoutEnd},
	}
}
