package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examflow/examflow-backend/internal/bus"
	"github.com/examflow/examflow-backend/internal/config"
	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/service"
)

// ConsumerRanking is the ledger consumer name of the ranking aggregator.
const ConsumerRanking = "ranking"

const (
	rankPollTimeout  = 1 * time.Second
	rankRetryBackoff = 500 * time.Millisecond
)

// Leaderboard records ranked entries. Recording the same session twice must
// replace, not append.
type Leaderboard interface {
	Record(ctx context.Context, ev model.ScoreEvent) error
}

// RankingWorker consumes score.calculated events and maintains per-exam
// leaderboards. Redelivery is harmless twice over: the ledger filters known
// event ids, and the leaderboard keys entries by session id.
type RankingWorker struct {
	queue       EventQueue
	ledger      service.Ledger
	leaderboard Leaderboard
	log         zerolog.Logger
}

// NewRankingWorker creates a new RankingWorker.
func NewRankingWorker(queue EventQueue, ledger service.Ledger, leaderboard Leaderboard, log zerolog.Logger) *RankingWorker {
	return &RankingWorker{
		queue:       queue,
		ledger:      ledger,
		leaderboard: leaderboard,
		log:         log.With().Str("component", "ranking_worker").Logger(),
	}
}

// Start runs the consume loop until the context is cancelled.
func (w *RankingWorker) Start(ctx context.Context) {
	w.log.Info().Msg("RankingWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("RankingWorker stopped")
			return
		default:
		}

		env, err := w.queue.Pop(ctx, config.QueueKey.ScoreCalculatedQueue, rankPollTimeout)
		if err != nil {
			if errors.Is(err, bus.ErrEmpty) || ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("pop failed")
			sleepCtx(ctx, rankRetryBackoff)
			continue
		}

		if err := w.handle(ctx, env); err != nil {
			w.log.Warn().Err(err).Str("event_id", env.ID.String()).Msg("transient failure, requeueing")
			if rqErr := requeueWithRetry(ctx, w.queue, config.QueueKey.ScoreCalculatedQueue, env, w.log); rqErr != nil {
				w.log.Error().Err(rqErr).Str("event_id", env.ID.String()).Msg("requeue abandoned at shutdown, event needs replay")
			}
			sleepCtx(ctx, rankRetryBackoff)
		}
	}
}

// handle applies one envelope. A non-nil return means requeue; poison
// messages are logged here and return nil.
func (w *RankingWorker) handle(ctx context.Context, env model.EventEnvelope) error {
	if env.Type != model.TopicScoreCalculated || env.ID == uuid.Nil {
		w.log.Error().Str("type", env.Type).Msg("dropping poison message")
		return nil
	}

	var ev model.ScoreEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		w.log.Error().Err(err).Str("event_id", env.ID.String()).Msg("dropping undecodable score event")
		return nil
	}
	if !ev.Valid() {
		w.log.Error().Str("event_id", env.ID.String()).Msg("dropping score event missing required fields")
		return nil
	}

	done, err := w.ledger.AlreadyProcessed(ctx, ConsumerRanking, env.ID)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	// Record before claiming: recording is an idempotent replace, so an
	// unclaimed rerun after a crash converges on the same entry.
	if err := w.leaderboard.Record(ctx, ev); err != nil {
		return err
	}
	if _, err := w.ledger.TryClaim(ctx, ConsumerRanking, env.ID); err != nil {
		w.log.Warn().Err(err).Str("event_id", env.ID.String()).Msg("claim failed after record")
	}

	w.log.Info().
		Str("exam_id", ev.ExamID.String()).
		Str("session_id", ev.SessionID.String()).
		Float64("percentage", ev.Percentage).
		Msg("leaderboard updated")
	return nil
}
