package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/healthsync/internal/events"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"dailyrecord.updated": {
		Topic:         "daily_record_events",
		SchemaSubject: "daily_record_events-value",
	},
	"sync.advisory": {
		Topic:         "sync_advisories",
		SchemaSubject: "sync_advisories-value",
	},
}

// insertOutbox records an event row inside the caller's transaction. The
// dedupe key collapses repeat emissions of the same logical event.
func insertOutbox(ctx context.Context, tx pgx.Tx, eventType, userID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s:%d", userID, eventType, time.Now().UnixNano())

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"daily_record",
		userID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		userID,
		body,
		dedupeKey,
	)
	return err
}

// PublishAdvisory records a sync advisory as a durable outbox event. The
// dispatcher delivers it to the notification service asynchronously, so a
// Kafka outage never blocks a sync run.
func (g *Gateway) PublishAdvisory(ctx context.Context, advisory events.SyncAdvisory) error {
	tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertOutbox(ctx, tx, "sync.advisory", advisory.UserID, advisory); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
