// Package memory holds in-memory implementations of the storage contracts.
// They honor the same semantics as the Postgres implementations — per
// session serialization, last-write-wins answers, complete-once with an
// outbox entry, atomic ledger claims — so service-level tests exercise the
// real state machine without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/examflow/examflow-backend/internal/model"
)

// SessionStore is an in-memory service.SessionStore.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.Session
	outbox   []model.OutboxEntry
	seq      int64
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uuid.UUID]*model.Session)}
}

func (s *SessionStore) Create(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	cp.StartedAt = time.Now().UTC()
	s.sessions[sess.ID] = &cp
	sess.StartedAt = cp.StartedAt

	env, err := model.NewEnvelope(model.TopicSessionStarted, model.StartEvent{
		SessionID: cp.ID,
		ExamID:    cp.ExamID,
		UserID:    cp.UserID,
		StartedAt: cp.StartedAt,
	})
	if err != nil {
		return err
	}
	s.seq++
	s.outbox = append(s.outbox, model.OutboxEntry{Seq: s.seq, SessionID: cp.ID, Envelope: env})
	return nil
}

func (s *SessionStore) GetByID(_ context.Context, id uuid.UUID) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return copySession(sess), nil
}

func (s *SessionStore) UpsertAnswer(_ context.Context, sessionID uuid.UUID, ans model.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return model.ErrSessionNotFound
	}
	if sess.Status != model.SessionStatusInProgress {
		return model.ErrInvalidState
	}
	for i := range sess.Answers {
		if sess.Answers[i].QuestionID == ans.QuestionID {
			sess.Answers[i] = ans
			return nil
		}
	}
	sess.Answers = append(sess.Answers, ans)
	return nil
}

func (s *SessionStore) Complete(_ context.Context, sessionID uuid.UUID) (*model.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, false, model.ErrSessionNotFound
	}
	if sess.Status == model.SessionStatusSubmitted {
		return copySession(sess), false, nil
	}

	now := time.Now().UTC()
	sess.Status = model.SessionStatusSubmitted
	sess.SubmittedAt = &now

	env, err := model.NewEnvelope(model.TopicSessionSubmitted, model.SubmissionEvent{
		SessionID:   sess.ID,
		ExamID:      sess.ExamID,
		UserID:      sess.UserID,
		Answers:     copySession(sess).Answers,
		SubmittedAt: now,
	})
	if err != nil {
		return nil, false, err
	}
	s.seq++
	s.outbox = append(s.outbox, model.OutboxEntry{Seq: s.seq, SessionID: sess.ID, Envelope: env})
	return copySession(sess), true, nil
}

// Outbox returns the entries enqueued so far.
func (s *SessionStore) Outbox() []model.OutboxEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.OutboxEntry, len(s.outbox))
	copy(out, s.outbox)
	return out
}

func copySession(sess *model.Session) *model.Session {
	cp := *sess
	cp.Answers = make([]model.Answer, len(sess.Answers))
	copy(cp.Answers, sess.Answers)
	return &cp
}

// ExamDirectory is an in-memory service.ExamDirectory.
type ExamDirectory struct {
	mu    sync.RWMutex
	exams map[uuid.UUID]model.ExamDefinition
}

// NewExamDirectory creates an ExamDirectory serving the given exams.
func NewExamDirectory(exams ...model.ExamDefinition) *ExamDirectory {
	d := &ExamDirectory{exams: make(map[uuid.UUID]model.ExamDefinition, len(exams))}
	for _, e := range exams {
		d.exams[e.ID] = e
	}
	return d
}

func (d *ExamDirectory) GetExam(_ context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.exams[examID]
	if !ok {
		return nil, model.ErrExamNotFound
	}
	return &e, nil
}

// QuestionBank is an in-memory service.QuestionBank. Set Err to simulate a
// collaborator outage.
type QuestionBank struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]model.QuestionKey
	Err  error
}

// NewQuestionBank creates a QuestionBank serving the given keys.
func NewQuestionBank(keys ...model.QuestionKey) *QuestionBank {
	b := &QuestionBank{keys: make(map[uuid.UUID]model.QuestionKey, len(keys))}
	for _, k := range keys {
		b.keys[k.QuestionID] = k
	}
	return b
}

func (b *QuestionBank) GetCorrectness(_ context.Context, questionIDs []uuid.UUID) (map[uuid.UUID]model.QuestionKey, []uuid.UUID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.Err != nil {
		return nil, nil, b.Err
	}
	keys := make(map[uuid.UUID]model.QuestionKey, len(questionIDs))
	var missing []uuid.UUID
	for _, id := range questionIDs {
		if k, ok := b.keys[id]; ok {
			keys[id] = k
		} else {
			missing = append(missing, id)
		}
	}
	return keys, missing, nil
}

// Ledger is an in-memory service.Ledger.
type Ledger struct {
	mu      sync.Mutex
	claimed map[string]bool
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{claimed: make(map[string]bool)}
}

func (l *Ledger) key(consumer string, eventID uuid.UUID) string {
	return consumer + ":" + eventID.String()
}

func (l *Ledger) AlreadyProcessed(_ context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.claimed[l.key(consumer, eventID)], nil
}

func (l *Ledger) TryClaim(_ context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := l.key(consumer, eventID)
	if l.claimed[k] {
		return false, nil
	}
	l.claimed[k] = true
	return true, nil
}

// ScoreSink is an in-memory service.ScoreSink sharing a Ledger. The claim
// and the record commit together: a simulated failure leaves no claim
// behind, mirroring the transactional rollback of the Postgres sink.
type ScoreSink struct {
	mu      sync.Mutex
	ledger  *Ledger
	records []*model.ScoreRecord
	events  []model.EventEnvelope
	// FailNext makes the next save fail with the given error.
	FailNext error
}

// NewScoreSink creates a ScoreSink guarded by the given ledger.
func NewScoreSink(ledger *Ledger) *ScoreSink {
	return &ScoreSink{ledger: ledger}
}

func (s *ScoreSink) SaveWithEvent(ctx context.Context, consumer string, eventID uuid.UUID, rec *model.ScoreRecord, env model.EventEnvelope) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailNext; err != nil {
		s.FailNext = nil
		return false, err
	}
	claimed, err := s.ledger.TryClaim(ctx, consumer, eventID)
	if err != nil || !claimed {
		return false, err
	}
	cp := *rec
	s.records = append(s.records, &cp)
	s.events = append(s.events, env)
	return true, nil
}

// Records returns the persisted score records.
func (s *ScoreSink) Records() []*model.ScoreRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.ScoreRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Events returns the emitted score.calculated envelopes.
func (s *ScoreSink) Events() []model.EventEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.EventEnvelope, len(s.events))
	copy(out, s.events)
	return out
}

// LatestBySession implements service.ScoreReader.
func (s *ScoreSink) LatestBySession(_ context.Context, sessionID uuid.UUID) (*model.ScoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].SessionID == sessionID {
			cp := *s.records[i]
			return &cp, nil
		}
	}
	return nil, model.ErrScoreNotFound
}

// OutboxSource is an in-memory worker.OutboxSource for publisher tests.
type OutboxSource struct {
	mu        sync.Mutex
	entries   []model.OutboxEntry
	published map[int64]bool
}

// NewOutboxSource creates an OutboxSource holding the given entries.
func NewOutboxSource(entries ...model.OutboxEntry) *OutboxSource {
	return &OutboxSource{entries: entries, published: make(map[int64]bool)}
}

func (o *OutboxSource) FetchUnpublished(_ context.Context, limit int) ([]model.OutboxEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []model.OutboxEntry
	for _, e := range o.entries {
		if o.published[e.Seq] {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (o *OutboxSource) MarkPublished(_ context.Context, seq int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published[seq] = true
	return nil
}

// Unpublished reports how many entries are still awaiting delivery.
func (o *OutboxSource) Unpublished() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, e := range o.entries {
		if !o.published[e.Seq] {
			n++
		}
	}
	return n
}
