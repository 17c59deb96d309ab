package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"example.com/healthsync/internal/domain"
)

// StructuredClient reads from the structured provider's REST API. The
// provider enforces per-metric grants server-side; the orchestrator is
// responsible for never constructing a client for a user who has not opted
// in, because an unauthorised call is a hard security failure upstream.
type StructuredClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewStructuredClient constructs a client with sane defaults.
func NewStructuredClient(baseURL, token string) *StructuredClient {
	return &StructuredClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Tag identifies the provider.
func (c *StructuredClient) Tag() string { return domain.SourceStructured }

// ReadSteps returns the step total for the range.
func (c *StructuredClient) ReadSteps(ctx context.Context, start, end time.Time) (int, error) {
	var payload struct {
		Steps int `json:"steps"`
	}
	if err := c.get(ctx, "/v1/metrics/steps", start, end, &payload); err != nil {
		return 0, err
	}
	return payload.Steps, nil
}

// ReadCalories returns active calories burned over the range.
func (c *StructuredClient) ReadCalories(ctx context.Context, start, end time.Time) (int, error) {
	var payload struct {
		Calories int `json:"calories"`
	}
	if err := c.get(ctx, "/v1/metrics/calories", start, end, &payload); err != nil {
		return 0, err
	}
	return payload.Calories, nil
}

// ReadSleep returns sleep sessions overlapping the range. The structured
// provider filters sessions internally, so the caller passes the wide window.
func (c *StructuredClient) ReadSleep(ctx context.Context, start, end time.Time) ([]domain.SleepSession, error) {
	var payload struct {
		Sessions []struct {
			StartTime time.Time `json:"start_time"`
			EndTime   time.Time `json:"end_time"`
		} `json:"sessions"`
	}
	if err := c.get(ctx, "/v1/sleep/sessions", start, end, &payload); err != nil {
		return nil, err
	}

	sessions := make([]domain.SleepSession, 0, len(payload.Sessions))
	for _, s := range payload.Sessions {
		if !s.EndTime.After(s.StartTime) {
			continue
		}
		sessions = append(sessions, domain.SleepSession{
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			Quality:   domain.AutoSleepQuality,
		})
	}
	return sessions, nil
}

// ReadWorkouts returns workouts started within the range.
func (c *StructuredClient) ReadWorkouts(ctx context.Context, start, end time.Time) ([]domain.WorkoutEntry, error) {
	var payload struct {
		Workouts []struct {
			ActivityType string    `json:"activity_type"`
			DurationMin  int       `json:"duration_min"`
			Calories     int       `json:"calories"`
			StartedAt    time.Time `json:"started_at"`
		} `json:"workouts"`
	}
	if err := c.get(ctx, "/v1/workouts", start, end, &payload); err != nil {
		return nil, err
	}

	workouts := make([]domain.WorkoutEntry, 0, len(payload.Workouts))
	for _, w := range payload.Workouts {
		workouts = append(workouts, domain.WorkoutEntry{
			ActivityType:    w.ActivityType,
			DurationMinutes: w.DurationMin,
			CaloriesBurned:  w.Calories,
			StartTime:       w.StartedAt,
		})
	}
	return workouts, nil
}

func (c *StructuredClient) get(ctx context.Context, path string, start, end time.Time, out any) error {
	query := url.Values{}
	query.Set("start", start.UTC().Format(time.RFC3339))
	query.Set("end", end.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// checkStatus maps provider HTTP statuses onto the adapter error taxonomy.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrPermissionDenied, resp.StatusCode, body)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrSourceUnavailable, resp.StatusCode, body)
	}
}
