// Package audit records intake lifecycle transitions. Records are append-only:
// nothing in the platform updates or deletes a written event.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/db"
)

// Event captures a single status transition. Metadata is restricted to
// operational flags (channel, reason present, bulk batch id) and must never
// contain answer payload content.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Action     string            `json:"action"`
	IntakeID   uuid.UUID         `json:"intake_id"`
	ActorID    string            `json:"actor_id"`
	ActorRole  string            `json:"actor_role"`
	FromStatus string            `json:"from_status"`
	ToStatus   string            `json:"to_status"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Recorded   time.Time         `json:"recorded"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Recorder is the audit sink boundary. Implementations must not surface
// failures into transition callers; the engine logs and moves on.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
}

// NewTransitionEvent builds an Event for a completed status transition.
func NewTransitionEvent(action string, intakeID uuid.UUID, actorID, actorRole, from, to string) *Event {
	return &Event{
		Action:     action,
		IntakeID:   intakeID,
		ActorID:    actorID,
		ActorRole:  actorRole,
		FromStatus: from,
		ToStatus:   to,
		Recorded:   time.Now().UTC(),
	}
}

// PGRecorder writes audit events to the intake_audit table.
type PGRecorder struct {
	pool *pgxpool.Pool
}

// NewPGRecorder creates a Recorder backed by the given connection pool.
func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

func (r *PGRecorder) Record(ctx context.Context, event *Event) error {
	if event.Recorded.IsZero() {
		event.Recorded = time.Now().UTC()
	}

	var meta []byte
	if len(event.Metadata) > 0 {
		var err error
		meta, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("audit: marshal metadata: %w", err)
		}
	}

	const query = `
		INSERT INTO intake_audit (
			action, intake_id, actor_id, actor_role,
			from_status, to_status, metadata, recorded
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, created_at`

	args := []any{
		event.Action, event.IntakeID, event.ActorID, event.ActorRole,
		event.FromStatus, event.ToStatus, meta, event.Recorded,
	}

	if tx := db.TxFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, query, args...).Scan(&event.ID, &event.CreatedAt)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("audit: acquire connection: %w", err)
	}
	defer conn.Release()

	return conn.QueryRow(ctx, query, args...).Scan(&event.ID, &event.CreatedAt)
}

// LogRecorder writes audit events to the structured log only. Used in
// development and tests where no database is available.
type LogRecorder struct {
	logger zerolog.Logger
}

// NewLogRecorder creates a Recorder that logs events instead of persisting them.
func NewLogRecorder(logger zerolog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(_ context.Context, event *Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	r.logger.Info().
		Str("action", event.Action).
		Str("intake_id", event.IntakeID.String()).
		Str("actor_id", event.ActorID).
		Str("actor_role", event.ActorRole).
		Str("from_status", event.FromStatus).
		Str("to_status", event.ToStatus).
		Interface("metadata", event.Metadata).
		Msg("audit")
	return nil
}
