// Package audit records significant write actions (entry and category
// creation, updates, media uploads). Events are written asynchronously so
// that logging never blocks or fails API requests.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/GyroZepelix/cornerstone/internal/database"
)

// Repository writes events to the audit_log table.
type Repository struct {
	db *database.DB
}

// NewRepository creates a new audit Repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a single audit event. An empty ContentType and a zero
// EntryID are stored as NULL.
func (r *Repository) Insert(ctx context.Context, event Event) error {
	var payloadJSON []byte
	if event.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("marshaling audit payload: %w", err)
		}
	}

	_, err := r.db.Pool().Exec(ctx,
		`INSERT INTO audit_log (action, content_type, entry_id, payload)
		 VALUES ($1, $2, $3, $4)`,
		event.Action,
		nullIfEmpty(event.ContentType),
		nullIfZero(event.EntryID),
		nullableJSON(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// LogWriter writes events to a zerolog logger. It stands in for Repository
// when no database is configured.
type LogWriter struct {
	Log zerolog.Logger
}

// Insert implements Writer.
func (w LogWriter) Insert(_ context.Context, event Event) error {
	w.Log.Info().
		Str("action", event.Action).
		Str("content_type", event.ContentType).
		Int64("entry_id", event.EntryID).
		Interface("payload", event.Payload).
		Msg("audit")
	return nil
}

// nullIfEmpty maps an empty string to SQL NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullIfZero maps a zero id to SQL NULL.
func nullIfZero(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

// nullableJSON returns nil for empty JSON so the payload column stays NULL.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
