package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/examflow/examflow-backend/internal/bus"
	"github.com/examflow/examflow-backend/internal/config"
	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/service"
)

const (
	scorePollTimeout  = 1 * time.Second
	scoreRetryBackoff = 500 * time.Millisecond
)

// EventQueue is the consuming side of the bus.
type EventQueue interface {
	Pop(ctx context.Context, queue string, timeout time.Duration) (model.EventEnvelope, error)
	Requeue(ctx context.Context, queue string, env model.EventEnvelope) error
}

// requeueWithRetry puts an envelope back on its queue, retrying with bounded
// backoff until it lands or the context ends. Popping already consumed the
// delivery, so a dropped requeue would lose the event outright; only
// shutdown is allowed to interrupt it.
func requeueWithRetry(ctx context.Context, queue EventQueue, name string, env model.EventEnvelope, log zerolog.Logger) error {
	backoff := publishBackoffMin
	for {
		err := queue.Requeue(ctx, name, env)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		log.Warn().Err(err).Str("queue", name).Dur("backoff", backoff).Msg("requeue failed, retrying")
		sleepCtx(ctx, backoff)
		if backoff *= 2; backoff > publishBackoffMax {
			backoff = publishBackoffMax
		}
	}
}

// ScoringWorker consumes session.submitted events and drives the scoring
// engine. Transient failures requeue the delivery; poison messages are
// logged and dropped; duplicates are filtered by the engine's ledger.
type ScoringWorker struct {
	queue   EventQueue
	scoring *service.ScoringService
	log     zerolog.Logger
}

// NewScoringWorker creates a new ScoringWorker.
func NewScoringWorker(queue EventQueue, scoring *service.ScoringService, log zerolog.Logger) *ScoringWorker {
	return &ScoringWorker{
		queue:   queue,
		scoring: scoring,
		log:     log.With().Str("component", "scoring_worker").Logger(),
	}
}

// Start runs the consume loop until the context is cancelled.
func (w *ScoringWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ScoringWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ScoringWorker stopped")
			return
		default:
		}

		env, err := w.queue.Pop(ctx, config.QueueKey.SessionSubmittedQueue, scorePollTimeout)
		if err != nil {
			if errors.Is(err, bus.ErrEmpty) || ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("pop failed")
			sleepCtx(ctx, scoreRetryBackoff)
			continue
		}

		w.handle(ctx, env)
	}
}

func (w *ScoringWorker) handle(ctx context.Context, env model.EventEnvelope) {
	err := w.scoring.Process(ctx, env)
	if err == nil {
		return
	}

	if errors.Is(err, service.ErrTransient) {
		w.log.Warn().Err(err).Str("event_id", env.ID.String()).Msg("transient failure, requeueing")
		if rqErr := requeueWithRetry(ctx, w.queue, config.QueueKey.SessionSubmittedQueue, env, w.log); rqErr != nil {
			// Shutdown interrupted the requeue. The outbox row is already
			// marked published, so flag the loss for operator replay.
			w.log.Error().Err(rqErr).Str("event_id", env.ID.String()).Msg("requeue abandoned at shutdown, event needs replay")
		}
		sleepCtx(ctx, scoreRetryBackoff)
		return
	}

	// Poison: structurally invalid, retrying can never succeed.
	w.log.Error().Err(err).Str("event_id", env.ID.String()).Msg("dropping poison message")
}
