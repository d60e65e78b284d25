package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/examflow/examflow-backend/internal/config"
	"github.com/examflow/examflow-backend/internal/model"
)

const (
	publishBackoffMin = 200 * time.Millisecond
	publishBackoffMax = 5 * time.Second
)

// OutboxSource is the durable queue of undelivered events.
type OutboxSource interface {
	FetchUnpublished(ctx context.Context, limit int) ([]model.OutboxEntry, error)
	MarkPublished(ctx context.Context, seq int64) error
}

// EventBus is the transport the publisher delivers onto.
type EventBus interface {
	Publish(ctx context.Context, queue string, env model.EventEnvelope) error
	Announce(ctx context.Context, channel string, env model.EventEnvelope) error
}

// OutboxPublisher drains the transactional outbox onto the bus, preserving
// enqueue order and never dropping an entry. Delivery is at-least-once: a
// crash after RPUSH but before the mark republishes the same envelope, and
// consumers dedup by event id.
type OutboxPublisher struct {
	source       OutboxSource
	bus          EventBus
	pollInterval time.Duration
	batchSize    int
	log          zerolog.Logger
}

// NewOutboxPublisher creates a new OutboxPublisher.
func NewOutboxPublisher(source OutboxSource, bus EventBus, pollInterval time.Duration, batchSize int, log zerolog.Logger) *OutboxPublisher {
	return &OutboxPublisher{
		source:       source,
		bus:          bus,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		log:          log.With().Str("component", "outbox_publisher").Logger(),
	}
}

// Start runs the publish loop until the context is cancelled.
func (p *OutboxPublisher) Start(ctx context.Context) {
	p.log.Info().Msg("OutboxPublisher started")

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("OutboxPublisher stopped")
			return
		default:
		}

		n, err := p.publishBatch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.log.Error().Err(err).Msg("outbox scan failed")
			}
			sleepCtx(ctx, publishBackoffMax)
			continue
		}
		if n == 0 {
			sleepCtx(ctx, p.pollInterval)
		}
	}
}

// publishBatch delivers one batch and returns how many entries it delivered.
func (p *OutboxPublisher) publishBatch(ctx context.Context) (int, error) {
	entries, err := p.source.FetchUnpublished(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, entry := range entries {
		queue := config.QueueKey.ForTopic(entry.Envelope.Type)
		if queue == "" {
			// An entry with no route is never retired: the row stays
			// unpublished so a code fix or operator replay can recover it.
			// Skipping past it keeps the rest of the stream moving.
			p.log.Error().
				Str("topic", entry.Envelope.Type).
				Int64("seq", entry.Seq).
				Msg("no queue for topic, leaving unpublished")
			continue
		}

		if err := p.deliver(ctx, queue, entry.Envelope); err != nil {
			// Entry stays unpublished; the next scan retries it. Returning
			// here keeps per-session ordering intact.
			return delivered, err
		}

		if entry.Envelope.Type == model.TopicScoreCalculated {
			p.announceScore(ctx, entry.Envelope)
		}

		if err := p.source.MarkPublished(ctx, entry.Seq); err != nil {
			// The envelope is already on the bus; a failed mark means one
			// extra delivery, which consumers dedup.
			p.log.Warn().Err(err).Int64("seq", entry.Seq).Msg("mark published failed")
		}
		delivered++
	}
	return delivered, nil
}

// deliver pushes one envelope, retrying with bounded backoff while the
// context lives.
func (p *OutboxPublisher) deliver(ctx context.Context, queue string, env model.EventEnvelope) error {
	backoff := publishBackoffMin
	for {
		err := p.bus.Publish(ctx, queue, env)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		p.log.Warn().Err(err).Str("queue", queue).Dur("backoff", backoff).Msg("publish failed, retrying")
		sleepCtx(ctx, backoff)
		if backoff *= 2; backoff > publishBackoffMax {
			backoff = publishBackoffMax
		}
	}
}

// announceScore relays a score.calculated envelope to the exam's live
// results channel. Best effort only.
func (p *OutboxPublisher) announceScore(ctx context.Context, env model.EventEnvelope) {
	var ev model.ScoreEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		p.log.Warn().Err(err).Msg("score payload undecodable, skipping announce")
		return
	}
	channel := config.CacheKey.ResultsChannel(ev.ExamID.String())
	if err := p.bus.Announce(ctx, channel, env); err != nil {
		p.log.Warn().Err(err).Str("channel", channel).Msg("announce failed")
	}
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
