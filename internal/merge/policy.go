// Package merge reconciles the readings from both upstream sources into the
// values one sync run will persist. The policy is written once against the
// adapter-shaped results, not against concrete provider types.
package merge

import (
	"time"

	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/timewindow"
)

// IntReading is one numeric metric read from one source. OK is false when the
// read errored or was never attempted; Value is only meaningful when OK.
type IntReading struct {
	OK    bool
	Value int
}

// SleepReading holds the sleep sessions one source returned.
type SleepReading struct {
	OK       bool
	Sessions []domain.SleepSession
}

// WorkoutReading holds the workouts one source returned.
type WorkoutReading struct {
	OK      bool
	Entries []domain.WorkoutEntry
}

// SourceResult carries everything one source produced during the reading
// stage. Attempted is false when eligibility rules skipped the source.
type SourceResult struct {
	Tag       string
	Attempted bool

	Steps    IntReading
	Calories IntReading
	Sleep    SleepReading
	Workouts WorkoutReading

	// Catch-up reads over yesterday's full day.
	YesterdaySteps    IntReading
	YesterdayCalories IntReading
}

// Contacted reports whether the source was attempted and at least one read
// completed. A contacted source's zero is a real zero (modulo the legacy
// ambiguity flagged separately).
func (r SourceResult) Contacted() bool {
	return r.Attempted && (r.Steps.OK || r.Calories.OK || r.Sleep.OK || r.Workouts.OK)
}

// RoutedWorkout is a workout assigned to the calendar date it files under.
type RoutedWorkout struct {
	Source  string
	Date    domain.Date
	Workout domain.WorkoutEntry
}

// Outcome is the reconciled result of one run.
type Outcome struct {
	Steps    int
	Calories int

	// StepsRead and CaloriesRead report whether any source successfully
	// read the metric this run. An unread metric must not be persisted: its
	// zero comes from failed reads, not from the sources, and would clobber
	// a previously stored value.
	StepsRead    bool
	CaloriesRead bool

	// Only-raise candidates for yesterday's record.
	YesterdaySteps    int
	YesterdayCalories int
	HasYesterday      bool

	// Sleep files under today: a session discovered through the widened
	// query answers "what did I sleep last night", so it is assigned to the
	// current date even when it started yesterday.
	Sleep       *domain.SleepSession
	SleepSource string

	Workouts []RoutedWorkout

	// MissingMetrics lists metrics both sources agreed were empty, for
	// reporting only. Steps is exempt: a zero step count is legitimate.
	MissingMetrics []string

	// AnyData is true when at least one source was contacted successfully.
	// When false the run must not overwrite previously stored values.
	AnyData bool

	// LegacyZero is set when the legacy source was the only one contacted
	// and reported a zero total. Legacy zeroes may mean "not yet synced",
	// so the caller re-runs once before trusting them.
	LegacyZero bool
}

// Resolve applies the selection order to both sources' results. loc is the
// user's zone, used to assign workouts to local calendar dates.
func Resolve(structured, legacy SourceResult, win timewindow.Windows, loc *time.Location) Outcome {
	out := Outcome{
		AnyData: structured.Contacted() || legacy.Contacted(),
	}

	out.Steps, out.StepsRead = pickValue(structured.Steps, legacy.Steps, structured.Attempted)
	out.Calories, out.CaloriesRead = pickValue(structured.Calories, legacy.Calories, structured.Attempted)

	out.YesterdaySteps, out.HasYesterday = pickValue(structured.YesterdaySteps, legacy.YesterdaySteps, structured.Attempted)
	if ycal, ok := pickValue(structured.YesterdayCalories, legacy.YesterdayCalories, structured.Attempted); ok {
		out.YesterdayCalories = ycal
		out.HasYesterday = true
	}

	out.Sleep, out.SleepSource = pickSleep(structured, legacy)
	out.Workouts = routeWorkouts(structured, legacy, win, loc)

	if out.AnyData {
		if out.Calories == 0 {
			out.MissingMetrics = append(out.MissingMetrics, "calories")
		}
		if out.Sleep == nil {
			out.MissingMetrics = append(out.MissingMetrics, "sleep")
		}
		if len(out.Workouts) == 0 {
			out.MissingMetrics = append(out.MissingMetrics, "workouts")
		}
	}

	if !structured.Contacted() && legacy.Contacted() {
		if (legacy.Steps.OK && legacy.Steps.Value == 0) || (legacy.Calories.OK && legacy.Calories.Value == 0) {
			out.LegacyZero = true
		}
	}

	return out
}

// pickValue selects a numeric metric: the structured source wins when it was
// attempted and returned non-zero data, otherwise a non-zero legacy value is
// used, otherwise zero. The second return reports whether any source read
// the metric at all.
func pickValue(structured, legacy IntReading, structuredAttempted bool) (int, bool) {
	if structuredAttempted && structured.OK && structured.Value > 0 {
		return structured.Value, true
	}
	if legacy.OK && legacy.Value > 0 {
		return legacy.Value, true
	}
	return 0, structured.OK || legacy.OK
}

// pickSleep selects the session to file under today: structured first, then
// legacy; within one source the session ending latest, i.e. the most recent
// night.
func pickSleep(structured, legacy SourceResult) (*domain.SleepSession, string) {
	if structured.Attempted && structured.Sleep.OK {
		if s := latestSession(structured.Sleep.Sessions); s != nil {
			return s, structured.Tag
		}
	}
	if legacy.Sleep.OK {
		if s := latestSession(legacy.Sleep.Sessions); s != nil {
			return s, legacy.Tag
		}
	}
	return nil, ""
}

func latestSession(sessions []domain.SleepSession) *domain.SleepSession {
	var best *domain.SleepSession
	for i := range sessions {
		s := sessions[i]
		if !s.EndTime.After(s.StartTime) {
			continue
		}
		if best == nil || s.EndTime.After(best.EndTime) {
			best = &s
		}
	}
	return best
}

// routeWorkouts keeps the union of entries from both sources, filtered to
// local start dates of today or yesterday, deduplicated by deterministic id.
// Workouts are never replaced wholesale: a workout synced to the provider
// late still files under the day it was performed.
func routeWorkouts(structured, legacy SourceResult, win timewindow.Windows, loc *time.Location) []RoutedWorkout {
	seen := make(map[string]struct{})
	var routed []RoutedWorkout

	appendFrom := func(result SourceResult) {
		if !result.Workouts.OK {
			return
		}
		for _, workout := range result.Workouts.Entries {
			date := domain.DateOf(workout.StartTime.In(loc))
			if date != win.Today && date != win.Yesterday {
				continue
			}
			id := domain.WorkoutEntryID(result.Tag, date, workout.StartTime, workout.ActivityType)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			routed = append(routed, RoutedWorkout{Source: result.Tag, Date: date, Workout: workout})
		}
	}

	appendFrom(structured)
	appendFrom(legacy)
	return routed
}
