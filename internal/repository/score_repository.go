package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examflow/examflow-backend/internal/model"
)

// ScoreRepository persists grading outcomes. Records are append-only; a
// correction inserts a superseding row, never an UPDATE.
type ScoreRepository struct {
	pool   *pgxpool.Pool
	ledger *LedgerRepository
	outbox *OutboxRepository
}

// NewScoreRepository creates a new ScoreRepository.
func NewScoreRepository(pool *pgxpool.Pool, ledger *LedgerRepository, outbox *OutboxRepository) *ScoreRepository {
	return &ScoreRepository{pool: pool, ledger: ledger, outbox: outbox}
}

// SaveWithEvent commits the ledger claim, the score record and the
// score.calculated outbox entry as one transaction. If anything fails the
// claim rolls back too, so a redelivery can retry safely. Returns false when
// the event was already claimed by this consumer.
func (r *ScoreRepository) SaveWithEvent(ctx context.Context, consumer string, eventID uuid.UUID, rec *model.ScoreRecord, env model.EventEnvelope) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	claimed, err := r.ledger.TryClaimTx(ctx, tx, consumer, eventID)
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}
	if !claimed {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO score_records
		   (id, session_id, exam_id, user_id, total_score, max_score, percentage, passed, computed_at, supersedes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.SessionID, rec.ExamID, rec.UserID,
		rec.TotalScore, rec.MaxScore, rec.Percentage, rec.Passed, rec.ComputedAt, rec.Supersedes,
	)
	if err != nil {
		return false, fmt.Errorf("insert score record: %w", err)
	}

	if err := r.outbox.InsertTx(ctx, tx, rec.SessionID, env); err != nil {
		return false, fmt.Errorf("enqueue score event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// LatestBySession returns the current (non-superseded) score record for a
// session, or model.ErrScoreNotFound when grading has not finished yet.
func (r *ScoreRepository) LatestBySession(ctx context.Context, sessionID uuid.UUID) (*model.ScoreRecord, error) {
	rec := &model.ScoreRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, session_id, exam_id, user_id, total_score, max_score, percentage, passed, computed_at, supersedes
		 FROM score_records
		 WHERE session_id = $1
		 ORDER BY computed_at DESC
		 LIMIT 1`, sessionID,
	).Scan(&rec.ID, &rec.SessionID, &rec.ExamID, &rec.UserID,
		&rec.TotalScore, &rec.MaxScore, &rec.Percentage, &rec.Passed, &rec.ComputedAt, &rec.Supersedes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrScoreNotFound
		}
		return nil, err
	}
	return rec, nil
}
