// Package syncer orchestrates one reconciliation run: window planning, source
// reads, merging, and idempotent persistence, under a per-user single-flight
// guard and a bounded retry loop.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/events"
	"example.com/healthsync/internal/merge"
	"example.com/healthsync/internal/observability"
	"example.com/healthsync/internal/source"
	"example.com/healthsync/internal/timewindow"
)

const (
	defaultMaxAttempts = 3
	defaultRetryBase   = time.Second
)

// Store captures the persistence operations one run needs.
type Store interface {
	GetSourceProfile(ctx context.Context, userID string) (*domain.SourceProfile, error)
	UpsertDailyRecord(ctx context.Context, userID string, date domain.Date, update domain.RecordUpdate) error
	UpsertSleepSession(ctx context.Context, userID string, date domain.Date, sourceTag string, session domain.SleepSession) error
	UpsertWorkout(ctx context.Context, userID string, date domain.Date, sourceTag string, workout domain.WorkoutEntry) error
}

// Notifier publishes user-facing advisories. Failures are logged, never
// propagated: advisories must not influence the run's outcome.
type Notifier interface {
	PublishAdvisory(ctx context.Context, advisory events.SyncAdvisory) error
}

// AdapterFactory builds the source clients for a profile, typically binding
// the user's provider tokens. The syncer applies the eligibility rules; the
// factory just constructs.
type AdapterFactory func(profile domain.SourceProfile) (structured, legacy source.Adapter)

// Status is the terminal outcome of one Sync call.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Result is everything a caller observes about a run.
type Result struct {
	RunID          string
	Status         Status
	Attempts       int
	MissingMetrics []string
	Advisory       string
}

// Retryable soft conditions inside one attempt.
var (
	errNoSources     = errors.New("no data sources connected")
	errNoSourceData  = errors.New("no source could be contacted")
	errAmbiguousZero = errors.New("legacy source returned an ambiguous zero")
)

// Option configures optional behaviour for the Syncer.
type Option func(*Syncer)

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Syncer) { s.logger = logger }
}

// WithPlanner overrides the window planner, e.g. to change the finalize cutoff.
func WithPlanner(planner timewindow.Planner) Option {
	return func(s *Syncer) { s.planner = planner }
}

// WithRetry overrides the whole-run retry policy.
func WithRetry(maxAttempts int, base time.Duration) Option {
	return func(s *Syncer) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if base > 0 {
			s.retryBase = base
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// WithSleep overrides the backoff sleeper.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(s *Syncer) { s.sleep = sleep }
}

// Syncer runs the reconciliation state machine. One Syncer serves all users;
// the in-flight map provides per-user mutual exclusion without blocking.
type Syncer struct {
	store    Store
	notifier Notifier
	adapters AdapterFactory

	planner     timewindow.Planner
	maxAttempts int
	retryBase   time.Duration

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	logger   *log.Logger
	inFlight sync.Map
}

// New constructs a Syncer.
func New(store Store, notifier Notifier, adapters AdapterFactory, opts ...Option) *Syncer {
	s := &Syncer{
		store:       store,
		notifier:    notifier,
		adapters:    adapters,
		maxAttempts: defaultMaxAttempts,
		retryBase:   defaultRetryBase,
		now:         time.Now,
		sleep:       sleepCtx,
		logger:      log.New(log.Writer(), "[syncer] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Sync runs one reconciliation for the user. A call while another run for the
// same user is in flight returns StatusSkipped immediately; it neither queues
// nor double-writes. Both the on-demand and the scheduled trigger enter here.
func (s *Syncer) Sync(ctx context.Context, userID string) Result {
	if _, loaded := s.inFlight.LoadOrStore(userID, struct{}{}); loaded {
		runsCounter.WithLabelValues(string(StatusSkipped)).Inc()
		return Result{Status: StatusSkipped}
	}
	defer s.inFlight.Delete(userID)

	result := Result{RunID: uuid.NewString()}

	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		result.Attempts++

		missing, err := s.attempt(ctx, userID, attempt)
		if err == nil {
			result.Status = StatusSucceeded
			result.MissingMetrics = missing
			observability.RecordSyncSucceeded(s.now())
			runsCounter.WithLabelValues(string(StatusSucceeded)).Inc()
			return result
		}

		if errors.Is(err, source.ErrPermissionDenied) {
			// Fatal: retrying cannot help, and repeating the call risks
			// tripping provider-side abuse detection.
			s.logger.Printf("sync failed on permissions (user=%s, run=%s): %v", userID, result.RunID, err)
			result.Advisory = s.advise(ctx, userID, events.AdvisoryPermissionRequired,
				"a connected data source rejected its permission grant")
			result.Status = StatusFailed
			runsCounter.WithLabelValues(string(StatusFailed)).Inc()
			return result
		}

		if errors.Is(err, errNoSources) {
			result.Advisory = s.adviseNoSources(ctx, userID)
			result.Status = StatusFailed
			runsCounter.WithLabelValues(string(StatusFailed)).Inc()
			return result
		}

		lastErr = err
		if attempt+1 < s.maxAttempts {
			retryCounter.Inc()
			delay := s.retryBase << uint(attempt+1)
			s.logger.Printf("sync attempt %d failed (user=%s, run=%s), retrying in %s: %v",
				attempt+1, userID, result.RunID, delay, err)
			if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
				lastErr = sleepErr
				break
			}
		}
	}

	s.logger.Printf("sync exhausted retries (user=%s, run=%s): %v", userID, result.RunID, lastErr)
	result.Advisory = s.advise(ctx, userID, events.AdvisorySyncFailed,
		fmt.Sprintf("sync did not complete after %d attempts", result.Attempts))
	result.Status = StatusFailed
	runsCounter.WithLabelValues(string(StatusFailed)).Inc()
	return result
}

// attempt performs one pass of the state machine: plan, read, merge, persist.
// It returns the missing-metric list on success, or an error classifying why
// the pass failed.
func (s *Syncer) attempt(ctx context.Context, userID string, attempt int) ([]string, error) {
	profile, err := s.store.GetSourceProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load source profile: %w", err)
	}
	if profile == nil || !profile.AnyEligible() {
		return nil, errNoSources
	}

	loc := profile.Location()
	win := s.planner.Plan(s.now(), loc)

	structuredAdapter, legacyAdapter := s.adapters(*profile)
	if !profile.StructuredEligible() {
		// Never attempted without opt-in plus grant: an unauthorised call is
		// a hard security failure at the provider.
		structuredAdapter = nil
	}
	if !profile.LegacyEligible() {
		legacyAdapter = nil
	}

	structuredResult, err := s.readSource(ctx, structuredAdapter, win)
	if err != nil {
		return nil, err
	}
	legacyResult, err := s.readSource(ctx, legacyAdapter, win)
	if err != nil {
		return nil, err
	}

	outcome := merge.Resolve(structuredResult, legacyResult, win, loc)

	if !outcome.AnyData {
		return nil, errNoSourceData
	}
	if outcome.LegacyZero && attempt == 0 {
		// A legacy zero can mean "device not synced yet"; re-check once
		// after the backoff before trusting it.
		return nil, errAmbiguousZero
	}

	if attempt == 0 && len(outcome.MissingMetrics) > 0 {
		for _, metric := range outcome.MissingMetrics {
			missingMetricCounter.WithLabelValues(metric).Inc()
		}
		s.logger.Printf("sources returned no data for %v (user=%s)", outcome.MissingMetrics, userID)
	}

	if err := s.persist(ctx, userID, win, outcome); err != nil {
		return nil, err
	}
	return outcome.MissingMetrics, nil
}

// readSource issues every read for one adapter. Individual read failures are
// recorded and do not abort the other source; permission failures abort the
// run immediately.
func (s *Syncer) readSource(ctx context.Context, adapter source.Adapter, win timewindow.Windows) (merge.SourceResult, error) {
	if adapter == nil {
		return merge.SourceResult{}, nil
	}

	result := merge.SourceResult{Tag: adapter.Tag(), Attempted: true}

	// The structured provider filters sleep sessions internally and gets the
	// wide window; the legacy provider is told the target day explicitly.
	sleepWindow := win.SleepTarget
	if adapter.Tag() == domain.SourceStructured {
		sleepWindow = win.SleepQuery
	}

	if steps, err := adapter.ReadSteps(ctx, win.TodayRange.Start, win.StepsQueryEnd); err != nil {
		if permission(err) {
			return result, err
		}
		s.noteReadError(adapter.Tag(), "steps", err)
	} else {
		result.Steps = merge.IntReading{OK: true, Value: steps}
	}

	if calories, err := adapter.ReadCalories(ctx, win.TodayRange.Start, win.TodayRange.End); err != nil {
		if permission(err) {
			return result, err
		}
		s.noteReadError(adapter.Tag(), "calories", err)
	} else {
		result.Calories = merge.IntReading{OK: true, Value: calories}
	}

	if sessions, err := adapter.ReadSleep(ctx, sleepWindow.Start, sleepWindow.End); err != nil {
		if permission(err) {
			return result, err
		}
		s.noteReadError(adapter.Tag(), "sleep", err)
	} else {
		result.Sleep = merge.SleepReading{OK: true, Sessions: sessions}
	}

	if workouts, err := adapter.ReadWorkouts(ctx, win.WorkoutQuery.Start, win.WorkoutQuery.End); err != nil {
		if permission(err) {
			return result, err
		}
		s.noteReadError(adapter.Tag(), "workouts", err)
	} else {
		result.Workouts = merge.WorkoutReading{OK: true, Entries: workouts}
	}

	// Late-sync catch-up: yesterday's totals may still be moving.
	if steps, err := adapter.ReadSteps(ctx, win.YesterdayRange.Start, win.YesterdayRange.End); err != nil {
		if permission(err) {
			return result, err
		}
		s.noteReadError(adapter.Tag(), "steps_yesterday", err)
	} else {
		result.YesterdaySteps = merge.IntReading{OK: true, Value: steps}
	}

	if calories, err := adapter.ReadCalories(ctx, win.YesterdayRange.Start, win.YesterdayRange.End); err != nil {
		if permission(err) {
			return result, err
		}
		s.noteReadError(adapter.Tag(), "calories_yesterday", err)
	} else {
		result.YesterdayCalories = merge.IntReading{OK: true, Value: calories}
	}

	return result, nil
}

func (s *Syncer) persist(ctx context.Context, userID string, win timewindow.Windows, outcome merge.Outcome) error {
	// A metric no source managed to read stays nil so the gateway's COALESCE
	// leaves the stored value alone.
	var update domain.RecordUpdate
	if outcome.StepsRead {
		update.Steps = &outcome.Steps
	}
	if outcome.CaloriesRead {
		update.Calories = &outcome.Calories
	}
	if err := s.store.UpsertDailyRecord(ctx, userID, win.Today, update); err != nil {
		return fmt.Errorf("persist daily record: %w", err)
	}

	if outcome.HasYesterday {
		yesterdayUpdate := domain.RecordUpdate{
			Steps:     &outcome.YesterdaySteps,
			Calories:  &outcome.YesterdayCalories,
			OnlyRaise: true,
		}
		if err := s.store.UpsertDailyRecord(ctx, userID, win.Yesterday, yesterdayUpdate); err != nil {
			return fmt.Errorf("persist yesterday record: %w", err)
		}
	}

	if outcome.Sleep != nil {
		if err := s.store.UpsertSleepSession(ctx, userID, win.Today, outcome.SleepSource, *outcome.Sleep); err != nil {
			return fmt.Errorf("persist sleep session: %w", err)
		}
	}

	for _, routed := range outcome.Workouts {
		if err := s.store.UpsertWorkout(ctx, userID, routed.Date, routed.Source, routed.Workout); err != nil {
			return fmt.Errorf("persist workout: %w", err)
		}
	}

	return nil
}

func (s *Syncer) noteReadError(sourceTag, metric string, err error) {
	sourceErrorCounter.WithLabelValues(sourceTag, metric).Inc()
	s.logger.Printf("source read failed (source=%s, metric=%s): %v", sourceTag, metric, err)
}

// adviseNoSources distinguishes "nothing configured" from "configured but not
// usable" so the client can deep-link the right screen.
func (s *Syncer) adviseNoSources(ctx context.Context, userID string) string {
	profile, err := s.store.GetSourceProfile(ctx, userID)
	if err == nil && profile != nil && (profile.StructuredEnabled || profile.LegacyAllowed) {
		return s.advise(ctx, userID, events.AdvisorySourceNotConnected,
			"a data source is enabled but missing its permission grant")
	}
	return s.advise(ctx, userID, events.AdvisoryNoSources,
		"connect a fitness tracker to sync health data")
}

func (s *Syncer) advise(ctx context.Context, userID, category, detail string) string {
	if s.notifier == nil {
		return category
	}
	advisory := events.SyncAdvisory{
		UserID:     userID,
		Category:   category,
		Detail:     detail,
		OccurredAt: s.now().UTC(),
	}
	if err := s.notifier.PublishAdvisory(ctx, advisory); err != nil {
		s.logger.Printf("advisory publish failed (user=%s, category=%s): %v", userID, category, err)
	}
	return category
}

func permission(err error) bool {
	return errors.Is(err, source.ErrPermissionDenied)
}
