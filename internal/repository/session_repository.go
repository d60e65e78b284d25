package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examflow/examflow-backend/internal/model"
)

// SessionRepository owns the mutable state of quiz attempts. Every mutation
// runs inside a transaction that first locks the session row, so writes to
// one session are serialized while different sessions never contend.
type SessionRepository struct {
	pool   *pgxpool.Pool
	outbox *OutboxRepository
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool, outbox *OutboxRepository) *SessionRepository {
	return &SessionRepository{pool: pool, outbox: outbox}
}

// Create inserts a new session in IN_PROGRESS state and enqueues the
// session.started event in the same transaction.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO sessions (id, exam_id, user_id, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING started_at`,
		s.ID, s.ExamID, s.UserID, model.SessionStatusInProgress,
	).Scan(&s.StartedAt)
	if err != nil {
		return err
	}

	env, err := model.NewEnvelope(model.TopicSessionStarted, model.StartEvent{
		SessionID: s.ID,
		ExamID:    s.ExamID,
		UserID:    s.UserID,
		StartedAt: s.StartedAt,
	})
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}
	if err := r.outbox.InsertTx(ctx, tx, s.ID, env); err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a session together with its retained answers.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	s := &model.Session{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, user_id, status, started_at, submitted_at
		 FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.ExamID, &s.UserID, &s.Status, &s.StartedAt, &s.SubmittedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrSessionNotFound
		}
		return nil, err
	}

	answers, err := r.loadAnswers(ctx, r.pool, id)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	s.Answers = answers
	return s, nil
}

// UpsertAnswer records one answer under the session's row lock. A second
// answer for the same question replaces the first (last write wins, ordered
// by arrival at the lock). Rejected once the session is submitted.
func (r *SessionRepository) UpsertAnswer(ctx context.Context, sessionID uuid.UUID, ans model.Answer) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	status, err := lockSession(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	if status != model.SessionStatusInProgress {
		return model.ErrInvalidState
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO session_answers (session_id, question_id, selected, answered_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, question_id)
		 DO UPDATE SET selected = EXCLUDED.selected, answered_at = EXCLUDED.answered_at`,
		sessionID, ans.QuestionID, ans.Selected, ans.AnsweredAt,
	)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}

	return tx.Commit(ctx)
}

// Complete transitions the session to SUBMITTED and enqueues the
// session.submitted event in the same transaction (outbox pattern), so the
// state change and its notification commit or fail together. A repeat call
// on an already-submitted session returns the session unchanged and reports
// emitted=false without writing anything.
func (r *SessionRepository) Complete(ctx context.Context, sessionID uuid.UUID) (*model.Session, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	s := &model.Session{}
	err = tx.QueryRow(ctx,
		`SELECT id, exam_id, user_id, status, started_at, submitted_at
		 FROM sessions WHERE id = $1 FOR UPDATE`, sessionID,
	).Scan(&s.ID, &s.ExamID, &s.UserID, &s.Status, &s.StartedAt, &s.SubmittedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, model.ErrSessionNotFound
		}
		return nil, false, err
	}

	answers, err := r.loadAnswers(ctx, tx, sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("load answers: %w", err)
	}
	s.Answers = answers

	if s.Status == model.SessionStatusSubmitted {
		return s, false, nil
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET status = $1, submitted_at = $2 WHERE id = $3`,
		model.SessionStatusSubmitted, now, sessionID,
	); err != nil {
		return nil, false, fmt.Errorf("mark submitted: %w", err)
	}
	s.Status = model.SessionStatusSubmitted
	s.SubmittedAt = &now

	env, err := model.NewEnvelope(model.TopicSessionSubmitted, model.SubmissionEvent{
		SessionID:   s.ID,
		ExamID:      s.ExamID,
		UserID:      s.UserID,
		Answers:     s.Answers,
		SubmittedAt: now,
	})
	if err != nil {
		return nil, false, fmt.Errorf("build event: %w", err)
	}
	if err := r.outbox.InsertTx(ctx, tx, s.ID, env); err != nil {
		return nil, false, fmt.Errorf("enqueue event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// ExpiredSession identifies an IN_PROGRESS session whose allotted time ran out.
type ExpiredSession struct {
	SessionID uuid.UUID
	UserID    string
}

// FindExpired returns sessions still IN_PROGRESS past the exam duration plus
// the given grace period. Used by the expiration sweep.
func (r *SessionRepository) FindExpired(ctx context.Context, grace time.Duration, limit int) ([]ExpiredSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.user_id
		 FROM sessions s
		 JOIN exams e ON e.id = s.exam_id
		 WHERE s.status = $1
		   AND s.started_at + make_interval(mins => e.duration_minutes, secs => $2) < NOW()
		 ORDER BY s.started_at
		 LIMIT $3`,
		model.SessionStatusInProgress, grace.Seconds(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []ExpiredSession
	for rows.Next() {
		var e ExpiredSession
		if err := rows.Scan(&e.SessionID, &e.UserID); err != nil {
			return nil, err
		}
		expired = append(expired, e)
	}
	return expired, rows.Err()
}

// lockSession locks the session row and returns its status.
func lockSession(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID) (model.SessionStatus, error) {
	var status model.SessionStatus
	err := tx.QueryRow(ctx,
		`SELECT status FROM sessions WHERE id = $1 FOR UPDATE`, sessionID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", model.ErrSessionNotFound
		}
		return "", err
	}
	return status, nil
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *SessionRepository) loadAnswers(ctx context.Context, q querier, sessionID uuid.UUID) ([]model.Answer, error) {
	rows, err := q.Query(ctx,
		`SELECT question_id, selected, answered_at
		 FROM session_answers
		 WHERE session_id = $1
		 ORDER BY answered_at, question_id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.QuestionID, &a.Selected, &a.AnsweredAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
