package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/syncer"
)

type mockStore struct {
	record  *domain.DailyRecord
	entries []domain.Entry
	profile *domain.SourceProfile

	deleted []string
	saved   *domain.SourceProfile
}

func (m *mockStore) GetDailyRecord(_ context.Context, _ string, _ domain.Date) (*domain.DailyRecord, error) {
	if m.record == nil {
		return nil, domain.ErrRecordNotFound
	}
	return m.record, nil
}

func (m *mockStore) ListEntries(_ context.Context, _ string, _ domain.Date) ([]domain.Entry, error) {
	return m.entries, nil
}

func (m *mockStore) DeleteEntry(_ context.Context, _ string, _ domain.Date, entryID string) error {
	m.deleted = append(m.deleted, entryID)
	return nil
}

func (m *mockStore) GetSourceProfile(_ context.Context, _ string) (*domain.SourceProfile, error) {
	return m.profile, nil
}

func (m *mockStore) UpsertSourceProfile(_ context.Context, profile domain.SourceProfile) error {
	m.saved = &profile
	return nil
}

type mockRunner struct {
	result syncer.Result
	users  []string
}

func (m *mockRunner) Sync(_ context.Context, userID string) syncer.Result {
	m.users = append(m.users, userID)
	return m.result
}

func authedRequest(req *http.Request, scopes ...string) *http.Request {
	claims := &auth.Claims{
		Subject:   "user-1",
		Scopes:    map[string]struct{}{},
		ExpiresAt: time.Now().Add(time.Hour),
	}
	for _, scope := range scopes {
		claims.Scopes[scope] = struct{}{}
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func TestTriggerSyncSuccess(t *testing.T) {
	runner := &mockRunner{result: syncer.Result{
		RunID:    "run-1",
		Status:   syncer.StatusSucceeded,
		Attempts: 2,
	}}
	handler := NewHandler(&mockStore{}, runner)

	req := httptest.NewRequest(http.MethodPost, "/v1/sync", nil)
	req = authedRequest(req, auth.ScopeSyncTrigger)

	rr := httptest.NewRecorder()
	handler.triggerSync(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp TriggerSyncResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "succeeded" || resp.Attempts != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(runner.users) != 1 || runner.users[0] != "user-1" {
		t.Fatalf("runner not invoked for token subject: %v", runner.users)
	}
}

func TestTriggerSyncSkippedReturnsConflict(t *testing.T) {
	runner := &mockRunner{result: syncer.Result{Status: syncer.StatusSkipped}}
	handler := NewHandler(&mockStore{}, runner)

	req := httptest.NewRequest(http.MethodPost, "/v1/sync", nil)
	req = authedRequest(req, auth.ScopeSyncTrigger)

	rr := httptest.NewRecorder()
	handler.triggerSync(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rr.Code)
	}
}

func TestTriggerSyncRequiresScope(t *testing.T) {
	handler := NewHandler(&mockStore{}, &mockRunner{})

	req := httptest.NewRequest(http.MethodPost, "/v1/sync", nil)
	req = authedRequest(req, auth.ScopeHealthRead)

	rr := httptest.NewRecorder()
	handler.triggerSync(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestDailyRecordReturnsRecordAndEntries(t *testing.T) {
	updated := time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC)
	sleepStart := time.Date(2026, time.March, 9, 23, 0, 0, 0, time.UTC)
	sleepEnd := time.Date(2026, time.March, 10, 7, 0, 0, 0, time.UTC)

	store := &mockStore{
		record: &domain.DailyRecord{
			UserID:         "user-1",
			Steps:          9500,
			CaloriesBurned: 420,
			UpdatedAt:      updated,
		},
		entries: []domain.Entry{
			{
				EntryID: "autosleep-structured-2026-03-10",
				Kind:    domain.KindSleep,
				Source:  domain.SourceStructured,
				Sleep: &domain.SleepSession{
					StartTime: sleepStart,
					EndTime:   sleepEnd,
					Quality:   domain.AutoSleepQuality,
				},
			},
		},
	}
	handler := NewHandler(store, &mockRunner{})

	req := httptest.NewRequest(http.MethodGet, "/v1/daily-records?user_id=user-1&date=2026-03-10", nil)
	req = authedRequest(req, auth.ScopeHealthRead)

	rr := httptest.NewRecorder()
	handler.dailyRecord(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp DailyRecordResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Steps != 9500 || resp.CaloriesBurned != 420 {
		t.Fatalf("unexpected totals: %+v", resp)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Kind != domain.KindSleep {
		t.Fatalf("unexpected entries: %+v", resp.Entries)
	}
	if resp.Entries[0].Quality != domain.AutoSleepQuality {
		t.Fatalf("expected auto quality, got %q", resp.Entries[0].Quality)
	}
}

func TestDailyRecordRejectsBadDate(t *testing.T) {
	handler := NewHandler(&mockStore{}, &mockRunner{})

	req := httptest.NewRequest(http.MethodGet, "/v1/daily-records?date=10-03-2026", nil)
	req = authedRequest(req, auth.ScopeHealthRead)

	rr := httptest.NewRecorder()
	handler.dailyRecord(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestDailyRecordNotFound(t *testing.T) {
	handler := NewHandler(&mockStore{}, &mockRunner{})

	req := httptest.NewRequest(http.MethodGet, "/v1/daily-records?date=2026-03-10", nil)
	req = authedRequest(req, auth.ScopeHealthRead)

	rr := httptest.NewRecorder()
	handler.dailyRecord(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestDeleteEntry(t *testing.T) {
	store := &mockStore{}
	handler := NewHandler(store, &mockRunner{})

	req := httptest.NewRequest(http.MethodDelete, "/v1/daily-records/entries/workout-abc?date=2026-03-10", nil)
	req = authedRequest(req, auth.ScopeHealthWrite)

	rr := httptest.NewRecorder()
	handler.entryByID(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d: %s", rr.Code, rr.Body.String())
	}
	if len(store.deleted) != 1 || store.deleted[0] != "workout-abc" {
		t.Fatalf("unexpected deletions: %v", store.deleted)
	}
}

func TestDeleteEntryRequiresWriteScope(t *testing.T) {
	handler := NewHandler(&mockStore{}, &mockRunner{})

	req := httptest.NewRequest(http.MethodDelete, "/v1/daily-records/entries/workout-abc?date=2026-03-10", nil)
	req = authedRequest(req, auth.ScopeHealthRead)

	rr := httptest.NewRecorder()
	handler.entryByID(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestPutSourceProfileValidation(t *testing.T) {
	handler := NewHandler(&mockStore{}, &mockRunner{})

	body := `{"structured_enabled": false, "structured_granted": true}`
	req := httptest.NewRequest(http.MethodPut, "/v1/source-profile", strings.NewReader(body))
	req = authedRequest(req, auth.ScopeHealthWrite)

	rr := httptest.NewRecorder()
	handler.sourceProfile(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestPutSourceProfilePersists(t *testing.T) {
	store := &mockStore{}
	handler := NewHandler(store, &mockRunner{})

	body := `{"timezone": "America/New_York", "structured_enabled": true, "structured_granted": true, "legacy_allowed": true}`
	req := httptest.NewRequest(http.MethodPut, "/v1/source-profile", strings.NewReader(body))
	req = authedRequest(req, auth.ScopeHealthWrite)

	rr := httptest.NewRecorder()
	handler.sourceProfile(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if store.saved == nil || store.saved.UserID != "user-1" || !store.saved.StructuredGranted {
		t.Fatalf("profile not saved correctly: %+v", store.saved)
	}
}
