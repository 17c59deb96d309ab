// Package api exposes HTTP handlers for the health sync service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/syncer"
)

// RecordStore is the slice of the persistence gateway the handlers read from.
type RecordStore interface {
	GetDailyRecord(ctx context.Context, userID string, date domain.Date) (*domain.DailyRecord, error)
	ListEntries(ctx context.Context, userID string, date domain.Date) ([]domain.Entry, error)
	DeleteEntry(ctx context.Context, userID string, date domain.Date, entryID string) error
	GetSourceProfile(ctx context.Context, userID string) (*domain.SourceProfile, error)
	UpsertSourceProfile(ctx context.Context, profile domain.SourceProfile) error
}

// SyncRunner triggers a reconciliation run for a user.
type SyncRunner interface {
	Sync(ctx context.Context, userID string) syncer.Result
}

// Handler coordinates HTTP requests with the sync engine and the store.
type Handler struct {
	store  RecordStore
	runner SyncRunner
}

// NewHandler builds a Handler.
func NewHandler(store RecordStore, runner SyncRunner) *Handler {
	return &Handler{store: store, runner: runner}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sync", h.triggerSync)
	mux.HandleFunc("/v1/daily-records", h.dailyRecord)
	mux.HandleFunc("/v1/daily-records/entries/", h.entryByID)
	mux.HandleFunc("/v1/source-profile", h.sourceProfile)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSyncTrigger) {
		writeError(w, http.StatusForbidden, "forbidden", "scope sync:trigger required")
		return
	}

	var req TriggerSyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = claims.Subject
	}

	result := h.runner.Sync(r.Context(), userID)

	resp := TriggerSyncResponse{
		RunID:          result.RunID,
		Status:         string(result.Status),
		Attempts:       result.Attempts,
		MissingMetrics: result.MissingMetrics,
		Advisory:       result.Advisory,
	}

	status := http.StatusOK
	if result.Status == syncer.StatusSkipped {
		status = http.StatusConflict
	}
	writeJSON(w, status, resp)
}

func (h *Handler) dailyRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeHealthRead) && !claims.HasScope(auth.ScopeHealthWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope health:read required")
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = claims.Subject
	}

	date, err := domain.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
		return
	}

	record, err := h.store.GetDailyRecord(r.Context(), userID, date)
	if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	entries, err := h.store.ListEntries(r.Context(), userID, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	if record == nil && len(entries) == 0 {
		writeError(w, http.StatusNotFound, "not_found", "no record for that day")
		return
	}

	resp := DailyRecordResponse{
		UserID:  userID,
		Date:    date.String(),
		Entries: make([]EntryView, 0, len(entries)),
	}
	if record != nil {
		resp.Steps = record.Steps
		resp.CaloriesBurned = record.CaloriesBurned
		resp.UpdatedAt = &record.UpdatedAt
	}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, toEntryView(entry))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) entryByID(w http.ResponseWriter, r *http.Request) {
	entryID := strings.TrimPrefix(r.URL.Path, "/v1/daily-records/entries/")
	if entryID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing entry id")
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeHealthWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope health:write required")
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = claims.Subject
	}

	date, err := domain.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
		return
	}

	if err := h.store.DeleteEntry(r.Context(), userID, date, entryID); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sourceProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getSourceProfile(w, r, claims)
	case http.MethodPut:
		h.putSourceProfile(w, r, claims)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getSourceProfile(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	if !claims.HasScope(auth.ScopeHealthRead) && !claims.HasScope(auth.ScopeHealthWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope health:read required")
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = claims.Subject
	}

	profile, err := h.store.GetSourceProfile(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "not_found", "no source profile")
		return
	}

	writeJSON(w, http.StatusOK, toProfileView(*profile))
}

func (h *Handler) putSourceProfile(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	if !claims.HasScope(auth.ScopeHealthWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope health:write required")
		return
	}

	var req SourceProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = claims.Subject
	}

	profile := domain.SourceProfile{
		UserID:            userID,
		Timezone:          req.Timezone,
		StructuredEnabled: req.StructuredEnabled,
		StructuredGranted: req.StructuredGranted,
		StructuredToken:   req.StructuredToken,
		LegacyAllowed:     req.LegacyAllowed,
		LegacyToken:       req.LegacyToken,
	}
	if err := h.store.UpsertSourceProfile(r.Context(), profile); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toProfileView(profile))
}

// TriggerSyncRequest is the payload for POST /v1/sync.
type TriggerSyncRequest struct {
	UserID string `json:"user_id"`
}

// TriggerSyncResponse describes a completed or skipped run.
type TriggerSyncResponse struct {
	RunID          string   `json:"run_id,omitempty"`
	Status         string   `json:"status"`
	Attempts       int      `json:"attempts"`
	MissingMetrics []string `json:"missing_metrics,omitempty"`
	Advisory       string   `json:"advisory,omitempty"`
}

// DailyRecordResponse packages the canonical day together with its entries.
type DailyRecordResponse struct {
	UserID         string      `json:"user_id"`
	Date           string      `json:"date"`
	Steps          int         `json:"steps"`
	CaloriesBurned int         `json:"calories_burned"`
	UpdatedAt      *time.Time  `json:"updated_at,omitempty"`
	Entries        []EntryView `json:"entries"`
}

// EntryView exposes one sleep or workout entry.
type EntryView struct {
	EntryID         string     `json:"entry_id"`
	Kind            string     `json:"kind"`
	Source          string     `json:"source"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Quality         string     `json:"quality,omitempty"`
	ActivityType    string     `json:"activity_type,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	CaloriesBurned  int        `json:"calories_burned,omitempty"`
}

// SourceProfileRequest is the payload for PUT /v1/source-profile.
type SourceProfileRequest struct {
	UserID            string `json:"user_id"`
	Timezone          string `json:"timezone"`
	StructuredEnabled bool   `json:"structured_enabled"`
	StructuredGranted bool   `json:"structured_granted"`
	StructuredToken   string `json:"structured_token"`
	LegacyAllowed     bool   `json:"legacy_allowed"`
	LegacyToken       string `json:"legacy_token"`
}

// Validate ensures request correctness.
func (r SourceProfileRequest) Validate() error {
	if r.Timezone != "" {
		if _, err := time.LoadLocation(r.Timezone); err != nil {
			return errors.New("timezone must be a valid IANA name")
		}
	}
	if r.StructuredGranted && !r.StructuredEnabled {
		return errors.New("structured_granted requires structured_enabled")
	}
	return nil
}

// SourceProfileView is the response shape for source profile reads.
type SourceProfileView struct {
	UserID            string `json:"user_id"`
	Timezone          string `json:"timezone,omitempty"`
	StructuredEnabled bool   `json:"structured_enabled"`
	StructuredGranted bool   `json:"structured_granted"`
	LegacyAllowed     bool   `json:"legacy_allowed"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toEntryView(entry domain.Entry) EntryView {
	view := EntryView{
		EntryID: entry.EntryID,
		Kind:    entry.Kind,
		Source:  entry.Source,
	}
	switch {
	case entry.Sleep != nil:
		start := entry.Sleep.StartTime
		end := entry.Sleep.EndTime
		view.StartTime = &start
		view.EndTime = &end
		view.Quality = entry.Sleep.Quality
	case entry.Workout != nil:
		start := entry.Workout.StartTime
		view.StartTime = &start
		view.ActivityType = entry.Workout.ActivityType
		view.DurationMinutes = entry.Workout.DurationMinutes
		view.CaloriesBurned = entry.Workout.CaloriesBurned
	}
	return view
}

func toProfileView(profile domain.SourceProfile) SourceProfileView {
	return SourceProfileView{
		UserID:            profile.UserID,
		Timezone:          profile.Timezone,
		StructuredEnabled: profile.StructuredEnabled,
		StructuredGranted: profile.StructuredGranted,
		LegacyAllowed:     profile.LegacyAllowed,
	}
}
