package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"example.com/healthsync/internal/events"
	"example.com/healthsync/internal/syncer"
)

// SyncRunner is the orchestrator surface the handler needs.
type SyncRunner interface {
	Sync(ctx context.Context, userID string) syncer.Result
}

// SyncRequestHandler invokes a sync run for each sync.requested event. Other
// event types on the topic are acknowledged and skipped so a mixed topic does
// not wedge the consumer.
type SyncRequestHandler struct {
	runner SyncRunner
	logger *log.Logger
}

// NewSyncRequestHandler constructs the handler.
func NewSyncRequestHandler(runner SyncRunner) *SyncRequestHandler {
	return &SyncRequestHandler{
		runner: runner,
		logger: log.New(log.Writer(), "[sync-requests] ", log.LstdFlags),
	}
}

// Handle runs the sync for the requested user. A skipped run (already in
// flight) commits cleanly: the in-flight run is doing the work requested.
func (h *SyncRequestHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != "sync.requested" {
		return nil
	}

	var request events.SyncRequested
	if err := json.Unmarshal(msg.Payload, &request); err != nil {
		return fmt.Errorf("malformed sync request: %w", err)
	}
	if strings.TrimSpace(request.UserID) == "" {
		return fmt.Errorf("sync request missing user_id")
	}

	result := h.runner.Sync(ctx, request.UserID)
	switch result.Status {
	case syncer.StatusSucceeded:
		h.logger.Printf("sync completed (user=%s, trigger=%s, attempts=%d)",
			request.UserID, request.Trigger, result.Attempts)
	case syncer.StatusSkipped:
		h.logger.Printf("sync already running (user=%s, trigger=%s)", request.UserID, request.Trigger)
	case syncer.StatusFailed:
		// The orchestrator already exhausted its retry budget or hit a
		// permission failure; re-delivering the request would repeat the
		// outcome.
		h.logger.Printf("sync failed (user=%s, trigger=%s, attempts=%d, advisory=%s)",
			request.UserID, request.Trigger, result.Attempts, result.Advisory)
	}
	return nil
}
