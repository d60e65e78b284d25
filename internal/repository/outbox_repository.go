package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examflow/examflow-backend/internal/model"
)

// OutboxRepository persists outbound events in the same database as the
// state they describe. Rows are delivered to the bus by the publisher and
// marked published afterwards; a crash in between redelivers.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// InsertTx enqueues an envelope inside the caller's transaction.
func (r *OutboxRepository) InsertTx(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID, env model.EventEnvelope) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox (event_id, session_id, topic, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		env.ID, sessionID, env.Type, []byte(env.Payload), env.OccurredAt,
	)
	return err
}

// FetchUnpublished returns undelivered entries in enqueue order. Ordering by
// the serial sequence preserves per-session event order.
func (r *OutboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]model.OutboxEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT seq, event_id, session_id, topic, payload, occurred_at
		 FROM outbox
		 WHERE published_at IS NULL
		 ORDER BY seq
		 LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.OutboxEntry
	for rows.Next() {
		var e model.OutboxEntry
		var payload []byte
		if err := rows.Scan(&e.Seq, &e.Envelope.ID, &e.SessionID, &e.Envelope.Type, &payload, &e.Envelope.OccurredAt); err != nil {
			return nil, err
		}
		e.Envelope.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkPublished records that an entry reached the bus. Until this commits
// the entry stays eligible for redelivery, which is what makes delivery
// at-least-once rather than at-most-once.
func (r *OutboxRepository) MarkPublished(ctx context.Context, seq int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE outbox SET published_at = NOW() WHERE seq = $1 AND published_at IS NULL`, seq)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox entry %d already published or missing", seq)
	}
	return nil
}
