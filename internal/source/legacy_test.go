package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLegacyReadStepsUsesMillisecondRange(t *testing.T) {
	var gotPath, gotFrom, gotTo string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFrom = r.URL.Query().Get("from")
		gotTo = r.URL.Query().Get("to")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total": 8000}`))
	}))
	defer srv.Close()

	client := NewLegacyClient(srv.URL, "legacy-tok")

	start := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC)

	steps, err := client.ReadSteps(context.Background(), start, end)
	require.NoError(t, err)
	require.Equal(t, 8000, steps)

	require.Equal(t, "/fitness/v2/aggregate/steps", gotPath)
	require.Equal(t, strconv.FormatInt(start.UnixMilli(), 10), gotFrom)
	require.Equal(t, strconv.FormatInt(end.UnixMilli(), 10), gotTo)
}

func TestLegacyZeroTotalIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total": 0}`))
	}))
	defer srv.Close()

	client := NewLegacyClient(srv.URL, "tok")
	calories, err := client.ReadCalories(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Zero(t, calories)
}

func TestLegacyReadSleepSegments(t *testing.T) {
	start := time.Date(2026, time.March, 9, 23, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.March, 10, 6, 30, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fitness/v2/sleep", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		body := `{"segments": [{"start_ms": ` + strconv.FormatInt(start.UnixMilli(), 10) +
			`, "end_ms": ` + strconv.FormatInt(end.UnixMilli(), 10) + `}]}`
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	client := NewLegacyClient(srv.URL, "tok")
	sessions, err := client.ReadSleep(context.Background(), time.Now().Add(-24*time.Hour), time.Now())
	require.NoError(t, err)

	require.Len(t, sessions, 1)
	require.True(t, sessions[0].StartTime.Equal(start))
	require.True(t, sessions[0].EndTime.Equal(end))
}

func TestLegacyReadWorkoutsDerivesDuration(t *testing.T) {
	start := time.Date(2026, time.March, 10, 18, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fitness/v2/sessions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		body := `{"sessions": [{"type": "cycling", "start_ms": ` + strconv.FormatInt(start.UnixMilli(), 10) +
			`, "end_ms": ` + strconv.FormatInt(end.UnixMilli(), 10) + `, "calories": 410}]}`
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	client := NewLegacyClient(srv.URL, "tok")
	workouts, err := client.ReadWorkouts(context.Background(), time.Now().Add(-24*time.Hour), time.Now())
	require.NoError(t, err)

	require.Len(t, workouts, 1)
	require.Equal(t, "cycling", workouts[0].ActivityType)
	require.Equal(t, 45, workouts[0].DurationMinutes)
	require.Equal(t, 410, workouts[0].CaloriesBurned)
}

func TestLegacyPermissionDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "permission revoked", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewLegacyClient(srv.URL, "tok")
	_, err := client.ReadSteps(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.ErrorIs(t, err, ErrPermissionDenied)
}
