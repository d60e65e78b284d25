package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examflow/examflow-backend/internal/memory"
	"github.com/examflow/examflow-backend/internal/model"
)

type scoringFixture struct {
	svc    *ScoringService
	bank   *memory.QuestionBank
	ledger *memory.Ledger
	sink   *memory.ScoreSink
	examID uuid.UUID
	qA, qB uuid.UUID
}

func newScoringFixture(t *testing.T, policy GradePolicy, threshold *float64) *scoringFixture {
	t.Helper()

	f := &scoringFixture{examID: uuid.New(), qA: uuid.New(), qB: uuid.New()}
	exam := model.ExamDefinition{
		ID:            f.examID,
		Title:         "Basics",
		QuestionIDs:   []uuid.UUID{f.qA, f.qB},
		PassThreshold: threshold,
	}
	f.bank = memory.NewQuestionBank(
		model.QuestionKey{QuestionID: f.qA, Points: 1, CorrectOptions: []int{0}},
		model.QuestionKey{QuestionID: f.qB, Points: 2, CorrectOptions: []int{1}},
	)
	f.ledger = memory.NewLedger()
	f.sink = memory.NewScoreSink(f.ledger)
	f.svc = NewScoringService(f.bank, memory.NewExamDirectory(exam), f.ledger, f.sink, policy, zerolog.Nop())
	return f
}

func (f *scoringFixture) submission(t *testing.T, answers []model.Answer) model.EventEnvelope {
	t.Helper()
	env, err := model.NewEnvelope(model.TopicSessionSubmitted, model.SubmissionEvent{
		SessionID:   uuid.New(),
		ExamID:      f.examID,
		UserID:      "user-1",
		Answers:     answers,
		SubmittedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return env
}

func TestProcessGradesSubmission(t *testing.T) {
	f := newScoringFixture(t, GradePolicy{PassThreshold: 70}, nil)
	env := f.submission(t, []model.Answer{answer(f.qA, 0), answer(f.qB, 0)})

	require.NoError(t, f.svc.Process(context.Background(), env))

	records := f.sink.Records()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, 1, rec.TotalScore)
	assert.Equal(t, 3, rec.MaxScore)
	assert.InDelta(t, 33.33, rec.Percentage, 0.001)
	assert.False(t, rec.Passed)

	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.TopicScoreCalculated, events[0].Type)
}

func TestProcessRedeliveryIsIdempotent(t *testing.T) {
	f := newScoringFixture(t, GradePolicy{PassThreshold: 70}, nil)
	env := f.submission(t, []model.Answer{answer(f.qA, 0)})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.Process(ctx, env))
	}

	assert.Len(t, f.sink.Records(), 1, "redeliveries never duplicate the record")
	assert.Len(t, f.sink.Events(), 1, "redeliveries never duplicate the event")
}

func TestProcessMissingCorrectnessIsTransient(t *testing.T) {
	f := newScoringFixture(t, GradePolicy{PassThreshold: 70}, nil)
	env := f.submission(t, []model.Answer{answer(uuid.New(), 0)})

	err := f.svc.Process(context.Background(), env)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Empty(t, f.sink.Records(), "no partial score is ever emitted")
}

func TestProcessBankOutageIsTransient(t *testing.T) {
	f := newScoringFixture(t, GradePolicy{PassThreshold: 70}, nil)
	f.bank.Err = errors.New("connection refused")
	env := f.submission(t, []model.Answer{answer(f.qA, 0)})

	err := f.svc.Process(context.Background(), env)
	assert.ErrorIs(t, err, ErrTransient)

	// Claim was never taken, so a retry after recovery succeeds.
	f.bank.Err = nil
	require.NoError(t, f.svc.Process(context.Background(), env))
	assert.Len(t, f.sink.Records(), 1)
}

func TestProcessPersistFailureLeavesNoClaim(t *testing.T) {
	f := newScoringFixture(t, GradePolicy{PassThreshold: 70}, nil)
	env := f.submission(t, []model.Answer{answer(f.qA, 0)})

	f.sink.FailNext = errors.New("write timeout")
	err := f.svc.Process(context.Background(), env)
	assert.ErrorIs(t, err, ErrTransient)

	done, err := f.ledger.AlreadyProcessed(context.Background(), ConsumerScoring, env.ID)
	require.NoError(t, err)
	assert.False(t, done, "failed persist rolls the claim back")

	require.NoError(t, f.svc.Process(context.Background(), env))
	assert.Len(t, f.sink.Records(), 1)
}

func TestProcessMalformedPayloadIsPoison(t *testing.T) {
	f := newScoringFixture(t, GradePolicy{PassThreshold: 70}, nil)

	env := model.EventEnvelope{
		ID:         uuid.New(),
		Type:       model.TopicSessionSubmitted,
		OccurredAt: time.Now().UTC(),
		Payload:    []byte(`{"session_id": 42}`),
	}
	err := f.svc.Process(context.Background(), env)
	assert.ErrorIs(t, err, ErrPoisonMessage)
	assert.NotErrorIs(t, err, ErrTransient)
	assert.Empty(t, f.sink.Records())
}

func TestProcessWrongTypeIsPoison(t *testing.T) {
	f := newScoringFixture(t, GradePolicy{PassThreshold: 70}, nil)
	env := f.submission(t, []model.Answer{answer(f.qA, 0)})
	env.Type = model.TopicScoreCalculated

	err := f.svc.Process(context.Background(), env)
	assert.ErrorIs(t, err, ErrPoisonMessage)
}

func TestProcessUnknownExamIsPoison(t *testing.T) {
	f := newScoringFixture(t, GradePolicy{PassThreshold: 70}, nil)
	env, err := model.NewEnvelope(model.TopicSessionSubmitted, model.SubmissionEvent{
		SessionID:   uuid.New(),
		ExamID:      uuid.New(),
		UserID:      "user-1",
		Answers:     []model.Answer{answer(f.qA, 0)},
		SubmittedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	err = f.svc.Process(context.Background(), env)
	assert.ErrorIs(t, err, ErrPoisonMessage)
}

func TestProcessExamThresholdOverride(t *testing.T) {
	threshold := 30.0
	f := newScoringFixture(t, GradePolicy{PassThreshold: 70}, &threshold)
	env := f.submission(t, []model.Answer{answer(f.qA, 0), answer(f.qB, 0)})

	require.NoError(t, f.svc.Process(context.Background(), env))

	records := f.sink.Records()
	require.Len(t, records, 1)
	assert.InDelta(t, 33.33, records[0].Percentage, 0.001)
	assert.True(t, records[0].Passed, "exam threshold overrides the default")
}
