package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examflow/examflow-backend/internal/model"
)

// SessionStore owns mutable attempt state. Implementations must serialize
// writes per session (the Postgres one uses a row lock) and must commit the
// SUBMITTED transition together with its outbox entry.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	UpsertAnswer(ctx context.Context, sessionID uuid.UUID, ans model.Answer) error
	// Complete reports emitted=true only on the first transition; retries
	// return the same session with emitted=false.
	Complete(ctx context.Context, sessionID uuid.UUID) (*model.Session, bool, error)
}

// ExamDirectory is the exam collaborator's read contract.
type ExamDirectory interface {
	GetExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error)
}

// ScoreReader exposes persisted grading outcomes for result display.
type ScoreReader interface {
	LatestBySession(ctx context.Context, sessionID uuid.UUID) (*model.ScoreRecord, error)
}

// SessionService is the submission coordinator: the per-session state
// machine between start, answer submissions and the final complete.
type SessionService struct {
	sessions SessionStore
	exams    ExamDirectory
	scores   ScoreReader
	log      zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(sessions SessionStore, exams ExamDirectory, scores ScoreReader, log zerolog.Logger) *SessionService {
	return &SessionService{
		sessions: sessions,
		exams:    exams,
		scores:   scores,
		log:      log.With().Str("component", "session_service").Logger(),
	}
}

// Start creates a new IN_PROGRESS session for the user after confirming the
// exam exists.
func (s *SessionService) Start(ctx context.Context, examID uuid.UUID, userID string) (*model.Session, error) {
	if _, err := s.exams.GetExam(ctx, examID); err != nil {
		return nil, err
	}

	session := &model.Session{
		ID:     uuid.New(),
		ExamID: examID,
		UserID: userID,
		Status: model.SessionStatusInProgress,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("exam_id", examID.String()).
		Str("user_id", userID).
		Msg("session started")
	return session, nil
}

// SubmitAnswer records one answer. Only the last submission per question is
// retained, ordered by arrival at the store's per-session lock. Rejected
// with model.ErrInvalidState once the session is submitted.
func (s *SessionService) SubmitAnswer(ctx context.Context, sessionID uuid.UUID, userID string, questionID uuid.UUID, selected []int) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return model.ErrNotOwner
	}

	// Reject answers to questions outside the exam up front so grading
	// stays total over its input.
	exam, err := s.exams.GetExam(ctx, session.ExamID)
	if err != nil {
		return err
	}
	if !slices.Contains(exam.QuestionIDs, questionID) {
		return model.ErrQuestionNotFound
	}

	ans := model.Answer{
		QuestionID: questionID,
		Selected:   normalizeSelection(selected),
		AnsweredAt: time.Now().UTC(),
	}
	return s.sessions.UpsertAnswer(ctx, sessionID, ans)
}

// Complete transitions the session to SUBMITTED. Idempotent: a retried call
// on an already-submitted session returns the same outcome and emits nothing.
func (s *SessionService) Complete(ctx context.Context, sessionID uuid.UUID, userID string) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, model.ErrNotOwner
	}

	session, emitted, err := s.sessions.Complete(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if emitted {
		s.log.Info().
			Str("session_id", sessionID.String()).
			Int("answers", len(session.Answers)).
			Msg("session submitted")
	}
	return session, nil
}

// Get returns the session view for its owner.
func (s *SessionService) Get(ctx context.Context, sessionID uuid.UUID, userID string) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, model.ErrNotOwner
	}
	return session, nil
}

// Result returns the persisted score record for an owned session, or
// model.ErrScoreNotFound while grading is still pending.
func (s *SessionService) Result(ctx context.Context, sessionID uuid.UUID, userID string) (*model.ScoreRecord, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, model.ErrNotOwner
	}
	return s.scores.LatestBySession(ctx, sessionID)
}

// normalizeSelection sorts and deduplicates option indices so answers and
// correctness keys compare by value.
func normalizeSelection(selected []int) []int {
	out := slices.Clone(selected)
	slices.Sort(out)
	return slices.Compact(out)
}
