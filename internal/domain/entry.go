package domain

// Entry kinds stored under a daily record.
const (
	KindSleep   = "sleep"
	KindWorkout = "workout"
)

// Entry is a stored sub-entry of a daily record. Exactly one of Sleep or
// Workout is set, matching Kind.
type Entry struct {
	EntryID string
	Kind    string
	Source  string
	Sleep   *SleepSession
	Workout *WorkoutEntry
}
