package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examflow/examflow-backend/internal/model"
)

// ConsumerScoring is the ledger consumer name of the scoring engine.
const ConsumerScoring = "scoring"

// QuestionBank is the question-bank collaborator's read contract. Missing
// identifiers are reported, not silently dropped.
type QuestionBank interface {
	GetCorrectness(ctx context.Context, questionIDs []uuid.UUID) (map[uuid.UUID]model.QuestionKey, []uuid.UUID, error)
}

// Ledger answers whether an event was already applied by a consumer.
type Ledger interface {
	AlreadyProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	TryClaim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
}

// ScoreSink atomically claims the event and persists the score record plus
// its score.calculated outbox entry. A false return means the event was
// already claimed.
type ScoreSink interface {
	SaveWithEvent(ctx context.Context, consumer string, eventID uuid.UUID, rec *model.ScoreRecord, env model.EventEnvelope) (bool, error)
}

// ScoringService grades submitted sessions. It tolerates redelivery and
// out-of-order arrival: every effect is guarded by the idempotency ledger.
type ScoringService struct {
	bank   QuestionBank
	exams  ExamDirectory
	ledger Ledger
	sink   ScoreSink
	policy GradePolicy
	log    zerolog.Logger
}

// NewScoringService creates a new ScoringService. The policy's PassThreshold
// acts as the default; exams carrying their own threshold override it.
func NewScoringService(bank QuestionBank, exams ExamDirectory, ledger Ledger, sink ScoreSink, policy GradePolicy, log zerolog.Logger) *ScoringService {
	return &ScoringService{
		bank:   bank,
		exams:  exams,
		ledger: ledger,
		sink:   sink,
		policy: policy,
		log:    log.With().Str("component", "scoring_service").Logger(),
	}
}

// Process handles one session.submitted envelope. Errors wrapping
// ErrTransient must be requeued by the caller; every other outcome
// (success, duplicate, poison) acknowledges the delivery.
func (s *ScoringService) Process(ctx context.Context, env model.EventEnvelope) error {
	if env.Type != model.TopicSessionSubmitted {
		return poison("unexpected event type %q", env.Type)
	}
	if env.ID == uuid.Nil {
		return poison("envelope missing event id")
	}

	var ev model.SubmissionEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return poison("undecodable payload: %v", err)
	}
	if !ev.Valid() {
		return poison("submission event missing required fields")
	}

	// Cheap duplicate check before any collaborator lookups. The
	// authoritative claim happens inside the sink's transaction.
	done, err := s.ledger.AlreadyProcessed(ctx, ConsumerScoring, env.ID)
	if err != nil {
		return transient(err)
	}
	if done {
		s.log.Debug().Str("event_id", env.ID.String()).Msg("duplicate delivery discarded")
		return nil
	}

	exam, err := s.exams.GetExam(ctx, ev.ExamID)
	if err != nil {
		if errors.Is(err, model.ErrExamNotFound) {
			return poison("exam %s unknown", ev.ExamID)
		}
		return transient(err)
	}

	keys, missing, err := s.correctnessFor(ctx, ev, exam)
	if err != nil {
		return transient(err)
	}
	if len(missing) > 0 {
		// Partial correctness data is a local failure: retry the delivery
		// instead of emitting a partial score.
		return transient(errors.New("correctness data missing for " + missing[0].String()))
	}

	policy := s.policy
	if exam.PassThreshold != nil {
		policy.PassThreshold = *exam.PassThreshold
	}
	outcome := Grade(ev.Answers, keys, policy)

	now := time.Now().UTC()
	rec := &model.ScoreRecord{
		ID:         uuid.New(),
		SessionID:  ev.SessionID,
		ExamID:     ev.ExamID,
		UserID:     ev.UserID,
		TotalScore: outcome.TotalScore,
		MaxScore:   outcome.MaxScore,
		Percentage: outcome.Percentage,
		Passed:     outcome.Passed,
		ComputedAt: now,
	}

	scoreEnv, err := model.NewEnvelope(model.TopicScoreCalculated, model.ScoreEvent{
		SessionID:  rec.SessionID,
		ExamID:     rec.ExamID,
		UserID:     rec.UserID,
		TotalScore: rec.TotalScore,
		MaxScore:   rec.MaxScore,
		Percentage: rec.Percentage,
		Passed:     rec.Passed,
		ComputedAt: rec.ComputedAt,
	})
	if err != nil {
		return transient(err)
	}

	inserted, err := s.sink.SaveWithEvent(ctx, ConsumerScoring, env.ID, rec, scoreEnv)
	if err != nil {
		return transient(err)
	}
	if !inserted {
		s.log.Debug().Str("event_id", env.ID.String()).Msg("lost claim race, discarding")
		return nil
	}

	s.log.Info().
		Str("session_id", rec.SessionID.String()).
		Int("total", rec.TotalScore).
		Int("max", rec.MaxScore).
		Float64("percentage", rec.Percentage).
		Bool("passed", rec.Passed).
		Msg("score computed")
	return nil
}

// correctnessFor fetches keys for the answered questions, widening to the
// whole exam when unanswered questions count toward the maximum.
func (s *ScoringService) correctnessFor(ctx context.Context, ev model.SubmissionEvent, exam *model.ExamDefinition) (map[uuid.UUID]model.QuestionKey, []uuid.UUID, error) {
	var ids []uuid.UUID
	if s.policy.CountUnansweredInMax {
		ids = exam.QuestionIDs
	} else {
		ids = make([]uuid.UUID, 0, len(ev.Answers))
		for _, ans := range ev.Answers {
			ids = append(ids, ans.QuestionID)
		}
	}
	return s.bank.GetCorrectness(ctx, ids)
}
