package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRepository is the idempotency ledger: it records which
// (consumer, event) pairs have been applied. Claims are single conditional
// writes — there is no read-then-write window.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// TryClaim atomically claims an event for a consumer. Returns true when this
// call inserted the claim, false when the event was already processed.
func (r *LedgerRepository) TryClaim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO processed_events (consumer, event_id)
		 VALUES ($1, $2)
		 ON CONFLICT (consumer, event_id) DO NOTHING`,
		consumer, eventID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// TryClaimTx is TryClaim inside the caller's transaction. The claim commits
// or rolls back together with the side effects it guards.
func (r *LedgerRepository) TryClaimTx(ctx context.Context, tx pgx.Tx, consumer string, eventID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx,
		`INSERT INTO processed_events (consumer, event_id)
		 VALUES ($1, $2)
		 ON CONFLICT (consumer, event_id) DO NOTHING`,
		consumer, eventID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AlreadyProcessed is a read-only pre-check so consumers can skip expensive
// work on obvious redeliveries. The authoritative check is still the claim.
func (r *LedgerRepository) AlreadyProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM processed_events WHERE consumer = $1 AND event_id = $2
		)`, consumer, eventID,
	).Scan(&exists)
	return exists, err
}
