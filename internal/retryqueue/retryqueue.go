// Package retryqueue is the at-least-once channel used to re-attempt the
// mapping bookkeeping write, independently of the original event's own
// redelivery. Only the bookkeeping step travels here; the target-system
// mutation is never re-run through this path.
package retryqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/k1networth/syncbridge/internal/events"
	"github.com/k1networth/syncbridge/internal/telemetry"
)

// Producer is the outbound transport; satisfied by kafkax.Producer.
type Producer interface {
	Produce(ctx context.Context, key, value []byte, timeout time.Duration) error
}

type Queue struct {
	producer Producer
	tel      telemetry.Recorder
	log      *slog.Logger
}

func New(producer Producer, tel telemetry.Recorder, log *slog.Logger) *Queue {
	return &Queue{producer: producer, tel: tel, log: log}
}

// Enqueue publishes msg wrapped in a RETRY_CREATE_MAPPING envelope and
// returns the generated message id. A send failure is terminal for this
// attempt: it is signalled for operator follow-up and returned, never
// auto-retried, since retrying a retry-enqueue risks unbounded loops.
func (q *Queue) Enqueue(ctx context.Context, msg events.RetryMessage, attempt int) (string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode retry message: %w", err)
	}

	env := events.Envelope{
		Type:    events.TypeRetryCreateMapping,
		Message: string(body),
		Attempt: attempt,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode retry envelope: %w", err)
	}

	id := uuid.NewString()
	if err := q.producer.Produce(ctx, []byte(id), value, 0); err != nil {
		q.tel.Track(fmt.Sprintf("send-message-%s-failed", events.TypeRetryCreateMapping), map[string]string{
			"messageId":  id,
			"entityName": msg.EntityName,
			"reason":     err.Error(),
		})
		q.log.Error("retry_enqueue_failed",
			slog.String("message_id", id),
			slog.String("entity", msg.EntityName),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("enqueue retry for %s: %w", msg.EntityName, err)
	}

	q.log.Info("retry_enqueued",
		slog.String("message_id", id),
		slog.String("entity", msg.EntityName),
		slog.Int("attempt", attempt),
	)
	return id, nil
}
