// Package postgres provides the Postgres-backed persistence gateway for daily
// records, their entries, and source connection profiles.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/events"
	"example.com/healthsync/internal/observability"
)

// ErrVerificationMismatch means a record write committed but the read-back did
// not match the values just written. The orchestrator treats it as transient
// and retries the whole run.
var ErrVerificationMismatch = errors.New("record verification mismatch")

const (
	defaultWriteAttempts = 5
	defaultWriteDelay    = 500 * time.Millisecond
)

// Gateway performs idempotent reads and writes against the document store.
// Transient write failures are retried locally with a linearly increasing
// delay before surfacing to the caller.
type Gateway struct {
	pool          *pgxpool.Pool
	writeAttempts int
	writeDelay    time.Duration
	sleep         func(context.Context, time.Duration) error
}

// NewGateway constructs a Gateway with default retry tunables.
func NewGateway(pool *pgxpool.Pool) *Gateway {
	return &Gateway{
		pool:          pool,
		writeAttempts: defaultWriteAttempts,
		writeDelay:    defaultWriteDelay,
		sleep:         sleepCtx,
	}
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

// GetDailyRecord fetches the record for one user/date. Returns
// domain.ErrRecordNotFound when none exists.
func (g *Gateway) GetDailyRecord(ctx context.Context, userID string, date domain.Date) (*domain.DailyRecord, error) {
	const query = `SELECT steps, calories_burned, updated_at
        FROM daily_records WHERE user_id=$1 AND record_date=$2`

	record := domain.DailyRecord{UserID: userID, Date: date}
	row := g.pool.QueryRow(ctx, query, userID, date.String())
	if err := row.Scan(&record.Steps, &record.CaloriesBurned, &record.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

// UpsertDailyRecord merge-writes only the fields present in update, records a
// dailyrecord.updated outbox event in the same transaction, and verifies the
// committed numeric fields by reading them back.
func (g *Gateway) UpsertDailyRecord(ctx context.Context, userID string, date domain.Date, update domain.RecordUpdate) error {
	if update.Empty() {
		return nil
	}

	var written domain.DailyRecord
	err := g.withRetry(ctx, "upsert daily record", func(ctx context.Context) error {
		var txErr error
		written, txErr = g.upsertRecordTx(ctx, userID, date, update)
		return txErr
	})
	if err != nil {
		return err
	}

	stored, err := g.GetDailyRecord(ctx, userID, date)
	if err != nil {
		return err
	}
	if stored.Steps != written.Steps || stored.CaloriesBurned != written.CaloriesBurned {
		return fmt.Errorf("%w: wrote steps=%d calories=%d, read steps=%d calories=%d",
			ErrVerificationMismatch, written.Steps, written.CaloriesBurned, stored.Steps, stored.CaloriesBurned)
	}

	observability.RecordDailyPersisted(written.UpdatedAt)
	return nil
}

func (g *Gateway) upsertRecordTx(ctx context.Context, userID string, date domain.Date, update domain.RecordUpdate) (domain.DailyRecord, error) {
	record := domain.DailyRecord{UserID: userID, Date: date}

	tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return record, err
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO daily_records (user_id, record_date, steps, calories_burned, updated_at)
        VALUES ($1, $2, COALESCE($3, 0), COALESCE($4, 0), NOW())
        ON CONFLICT (user_id, record_date) DO UPDATE SET
            steps = COALESCE($3, daily_records.steps),
            calories_burned = COALESCE($4, daily_records.calories_burned),
            updated_at = NOW()
        RETURNING steps, calories_burned, updated_at`

	if update.OnlyRaise {
		query = `INSERT INTO daily_records (user_id, record_date, steps, calories_burned, updated_at)
        VALUES ($1, $2, COALESCE($3, 0), COALESCE($4, 0), NOW())
        ON CONFLICT (user_id, record_date) DO UPDATE SET
            steps = GREATEST(daily_records.steps, COALESCE($3, 0)),
            calories_burned = GREATEST(daily_records.calories_burned, COALESCE($4, 0)),
            updated_at = NOW()
        RETURNING steps, calories_burned, updated_at`
	}

	row := tx.QueryRow(ctx, query, userID, date.String(), update.Steps, update.Calories)
	if err := row.Scan(&record.Steps, &record.CaloriesBurned, &record.UpdatedAt); err != nil {
		return record, err
	}

	if err := insertOutbox(ctx, tx, "dailyrecord.updated", userID, events.DailyRecordUpdated{
		UserID:         userID,
		Date:           date.String(),
		Steps:          record.Steps,
		CaloriesBurned: record.CaloriesBurned,
		UpdatedAt:      record.UpdatedAt,
	}); err != nil {
		return record, err
	}

	return record, tx.Commit(ctx)
}

// UpsertSleepSession replaces the auto-synced sleep session for the date.
// Rows carrying the reserved auto-sleep prefix are deleted first, then the
// new session is written under its deterministic id, so re-running a sync
// updates in place instead of duplicating.
func (g *Gateway) UpsertSleepSession(ctx context.Context, userID string, date domain.Date, sourceTag string, session domain.SleepSession) error {
	entryID := domain.SleepEntryID(sourceTag, date)
	payload, err := json.Marshal(sleepPayload{
		StartTime: session.StartTime.UTC(),
		EndTime:   session.EndTime.UTC(),
		Quality:   session.Quality,
	})
	if err != nil {
		return err
	}

	return g.withRetry(ctx, "upsert sleep session", func(ctx context.Context) error {
		tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx,
			`DELETE FROM day_entries WHERE user_id=$1 AND record_date=$2 AND kind=$3 AND entry_id LIKE 'autosleep-%'`,
			userID, date.String(), domain.KindSleep,
		); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO day_entries (user_id, record_date, entry_id, kind, source, payload, created_at, updated_at)
             VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())`,
			userID, date.String(), entryID, domain.KindSleep, sourceTag, payload,
		); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
}

// UpsertWorkout writes a workout under its deterministic id. A materially
// unchanged existing entry is left alone; a changed one is deleted and
// rewritten under the same id.
func (g *Gateway) UpsertWorkout(ctx context.Context, userID string, date domain.Date, sourceTag string, workout domain.WorkoutEntry) error {
	entryID := domain.WorkoutEntryID(sourceTag, date, workout.StartTime, workout.ActivityType)
	payload, err := json.Marshal(workoutPayload{
		ActivityType: workout.ActivityType,
		DurationMin:  workout.DurationMinutes,
		Calories:     workout.CaloriesBurned,
		StartedAt:    workout.StartTime.UTC(),
	})
	if err != nil {
		return err
	}

	return g.withRetry(ctx, "upsert workout", func(ctx context.Context) error {
		tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		var existing []byte
		err = tx.QueryRow(ctx,
			`SELECT payload FROM day_entries WHERE user_id=$1 AND record_date=$2 AND entry_id=$3`,
			userID, date.String(), entryID,
		).Scan(&existing)

		switch {
		case err == nil:
			var stored workoutPayload
			if unmarshalErr := json.Unmarshal(existing, &stored); unmarshalErr == nil &&
				stored.toEntry().SameActivity(workout) {
				// Materially unchanged; skip the write.
				return nil
			}
			if _, err := tx.Exec(ctx,
				`DELETE FROM day_entries WHERE user_id=$1 AND record_date=$2 AND entry_id=$3`,
				userID, date.String(), entryID,
			); err != nil {
				return err
			}
		case errors.Is(err, pgx.ErrNoRows):
			// New entry.
		default:
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO day_entries (user_id, record_date, entry_id, kind, source, payload, created_at, updated_at)
             VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())`,
			userID, date.String(), entryID, domain.KindWorkout, sourceTag, payload,
		); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
}

// DeleteEntry removes one entry from a daily record.
func (g *Gateway) DeleteEntry(ctx context.Context, userID string, date domain.Date, entryID string) error {
	return g.withRetry(ctx, "delete entry", func(ctx context.Context) error {
		_, err := g.pool.Exec(ctx,
			`DELETE FROM day_entries WHERE user_id=$1 AND record_date=$2 AND entry_id=$3`,
			userID, date.String(), entryID,
		)
		return err
	})
}

// ListEntries returns the sleep and workout entries stored under a record,
// ordered by entry id for stable output.
func (g *Gateway) ListEntries(ctx context.Context, userID string, date domain.Date) ([]domain.Entry, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT entry_id, kind, source, payload FROM day_entries
         WHERE user_id=$1 AND record_date=$2 ORDER BY entry_id`,
		userID, date.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var (
			entry   domain.Entry
			payload []byte
		)
		if err := rows.Scan(&entry.EntryID, &entry.Kind, &entry.Source, &payload); err != nil {
			return nil, err
		}

		switch entry.Kind {
		case domain.KindSleep:
			var p sleepPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, fmt.Errorf("corrupt sleep payload for %s: %w", entry.EntryID, err)
			}
			session := p.toSession()
			entry.Sleep = &session
		case domain.KindWorkout:
			var p workoutPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, fmt.Errorf("corrupt workout payload for %s: %w", entry.EntryID, err)
			}
			workout := p.toEntry()
			entry.Workout = &workout
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// withRetry runs fn up to the configured attempt count, waiting attempt*delay
// between failures.
func (g *Gateway) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= g.writeAttempts; attempt++ {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if attempt == g.writeAttempts {
			break
		}
		if err := g.sleep(ctx, time.Duration(attempt)*g.writeDelay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, g.writeAttempts, lastErr)
}

type sleepPayload struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Quality   string    `json:"quality"`
}

func (p sleepPayload) toSession() domain.SleepSession {
	return domain.SleepSession{StartTime: p.StartTime, EndTime: p.EndTime, Quality: p.Quality}
}

type workoutPayload struct {
	ActivityType string    `json:"activity_type"`
	DurationMin  int       `json:"duration_min"`
	Calories     int       `json:"calories"`
	StartedAt    time.Time `json:"started_at"`
}

func (p workoutPayload) toEntry() domain.WorkoutEntry {
	return domain.WorkoutEntry{
		ActivityType:    p.ActivityType,
		DurationMinutes: p.DurationMin,
		CaloriesBurned:  p.Calories,
		StartTime:       p.StartedAt,
	}
}
