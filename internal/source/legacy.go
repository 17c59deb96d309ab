package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"example.com/healthsync/internal/domain"
)

// LegacyClient reads from the legacy provider's aggregate API. The provider
// only offers a coarse permission, and its zeroes are ambiguous: zero may
// mean "no activity" or "device not yet synced", so callers must re-check a
// zero after a short delay before trusting it.
type LegacyClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewLegacyClient constructs a client with sane defaults.
func NewLegacyClient(baseURL, token string) *LegacyClient {
	return &LegacyClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Tag identifies the provider.
func (c *LegacyClient) Tag() string { return domain.SourceLegacy }

// ReadSteps returns the aggregated step total for the range.
func (c *LegacyClient) ReadSteps(ctx context.Context, start, end time.Time) (int, error) {
	return c.readTotal(ctx, "steps", start, end)
}

// ReadCalories returns the aggregated calorie total for the range.
func (c *LegacyClient) ReadCalories(ctx context.Context, start, end time.Time) (int, error) {
	return c.readTotal(ctx, "calories", start, end)
}

func (c *LegacyClient) readTotal(ctx context.Context, metric string, start, end time.Time) (int, error) {
	var payload struct {
		Total int `json:"total"`
	}
	if err := c.get(ctx, "/fitness/v2/aggregate/"+metric, start, end, &payload); err != nil {
		return 0, err
	}
	return payload.Total, nil
}

// ReadSleep returns sleep segments within the range. Unlike the structured
// provider, the legacy API does no day assignment of its own; the caller
// passes the narrow target window to state which day the sleep counts for.
func (c *LegacyClient) ReadSleep(ctx context.Context, start, end time.Time) ([]domain.SleepSession, error) {
	var payload struct {
		Segments []struct {
			StartMillis int64 `json:"start_ms"`
			EndMillis   int64 `json:"end_ms"`
		} `json:"segments"`
	}
	if err := c.get(ctx, "/fitness/v2/sleep", start, end, &payload); err != nil {
		return nil, err
	}

	sessions := make([]domain.SleepSession, 0, len(payload.Segments))
	for _, seg := range payload.Segments {
		if seg.EndMillis <= seg.StartMillis {
			continue
		}
		sessions = append(sessions, domain.SleepSession{
			StartTime: time.UnixMilli(seg.StartMillis).UTC(),
			EndTime:   time.UnixMilli(seg.EndMillis).UTC(),
			Quality:   domain.AutoSleepQuality,
		})
	}
	return sessions, nil
}

// ReadWorkouts returns workout sessions started within the range. Duration
// is derived from the segment bounds since the legacy API reports no explicit
// duration field.
func (c *LegacyClient) ReadWorkouts(ctx context.Context, start, end time.Time) ([]domain.WorkoutEntry, error) {
	var payload struct {
		Sessions []struct {
			Type        string `json:"type"`
			StartMillis int64  `json:"start_ms"`
			EndMillis   int64  `json:"end_ms"`
			Calories    int    `json:"calories"`
		} `json:"sessions"`
	}
	if err := c.get(ctx, "/fitness/v2/sessions", start, end, &payload); err != nil {
		return nil, err
	}

	workouts := make([]domain.WorkoutEntry, 0, len(payload.Sessions))
	for _, s := range payload.Sessions {
		if s.EndMillis <= s.StartMillis {
			continue
		}
		started := time.UnixMilli(s.StartMillis).UTC()
		minutes := int(time.Duration(s.EndMillis-s.StartMillis) * time.Millisecond / time.Minute)
		workouts = append(workouts, domain.WorkoutEntry{
			ActivityType:    s.Type,
			DurationMinutes: minutes,
			CaloriesBurned:  s.Calories,
			StartTime:       started,
		})
	}
	return workouts, nil
}

func (c *LegacyClient) get(ctx context.Context, path string, start, end time.Time, out any) error {
	query := url.Values{}
	query.Set("from", strconv.FormatInt(start.UnixMilli(), 10))
	query.Set("to", strconv.FormatInt(end.UnixMilli(), 10))

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
