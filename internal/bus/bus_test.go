package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/examflow/examflow-backend/internal/model"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb)
}

func testEnvelope(t *testing.T) model.EventEnvelope {
	t.Helper()
	env, err := model.NewEnvelope(model.TopicSessionSubmitted, model.SubmissionEvent{
		SessionID:   uuid.New(),
		ExamID:      uuid.New(),
		UserID:      "user-1",
		SubmittedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	return env
}

func TestPublishPopOrder(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	first := testEnvelope(t)
	second := testEnvelope(t)
	if err := b.Publish(ctx, "q", first); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := b.Publish(ctx, "q", second); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, err := b.Pop(ctx, "q", time.Second)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("pop returned %s, want first published %s", got.ID, first.ID)
	}

	got, err = b.Pop(ctx, "q", time.Second)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("pop returned %s, want %s", got.ID, second.ID)
	}
}

func TestPopEmptyQueue(t *testing.T) {
	b := newTestBus(t)

	_, err := b.Pop(context.Background(), "q", 50*time.Millisecond)
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("pop on idle queue: got %v, want ErrEmpty", err)
	}
}

func TestRequeuePutsEnvelopeBack(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	env := testEnvelope(t)
	if err := b.Publish(ctx, "q", env); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err := b.Pop(ctx, "q", time.Second)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}

	if err := b.Requeue(ctx, "q", got); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	again, err := b.Pop(ctx, "q", time.Second)
	if err != nil {
		t.Fatalf("pop after requeue: %v", err)
	}
	if again.ID != env.ID {
		t.Errorf("requeued envelope %s, want %s", again.ID, env.ID)
	}
	if string(again.Payload) != string(env.Payload) {
		t.Errorf("payload changed across requeue")
	}
}
