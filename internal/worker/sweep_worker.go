package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/repository"
)

const sweepBatchSize = 100

// ExpiredFinder lists sessions whose allotted time ran out.
type ExpiredFinder interface {
	FindExpired(ctx context.Context, grace time.Duration, limit int) ([]repository.ExpiredSession, error)
}

// Completer is the coordinator's idempotent complete transition.
type Completer interface {
	Complete(ctx context.Context, sessionID uuid.UUID, userID string) (*model.Session, error)
}

// SweepWorker force-completes sessions abandoned past the exam duration. It
// reuses the coordinator's Complete, so a racing submit from the taker and a
// sweep never double-emit: whoever wins the row lock submits, the other
// sees an already-submitted session.
type SweepWorker struct {
	finder      ExpiredFinder
	coordinator Completer
	interval    time.Duration
	grace       time.Duration
	log         zerolog.Logger
}

// NewSweepWorker creates a new SweepWorker.
func NewSweepWorker(finder ExpiredFinder, coordinator Completer, interval, grace time.Duration, log zerolog.Logger) *SweepWorker {
	return &SweepWorker{
		finder:      finder,
		coordinator: coordinator,
		interval:    interval,
		grace:       grace,
		log:         log.With().Str("component", "sweep_worker").Logger(),
	}
}

// Start runs the sweep loop until the context is cancelled.
func (w *SweepWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Dur("grace", w.grace).Msg("SweepWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("SweepWorker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SweepWorker) sweep(ctx context.Context) {
	expired, err := w.finder.FindExpired(ctx, w.grace, sweepBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("expired scan failed")
		return
	}

	for _, e := range expired {
		if _, err := w.coordinator.Complete(ctx, e.SessionID, e.UserID); err != nil {
			w.log.Warn().Err(err).Str("session_id", e.SessionID.String()).Msg("force-complete failed")
			continue
		}
		w.log.Info().Str("session_id", e.SessionID.String()).Msg("expired session force-completed")
	}
}
