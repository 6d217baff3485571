// Package syncer implements the idempotent create/sync protocol that
// keeps the target system consistent with upstream change events:
// check-not-exists, transform-and-apply, record a mapping, and on a
// bookkeeping failure hand only that last step to the durable retry
// queue. The protocol guarantees that no more than one target-system
// entity is ever created per distinct source-system change, even under
// redelivery of the same event.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/k1networth/syncbridge/internal/events"
	"github.com/k1networth/syncbridge/internal/mapping"
	"github.com/k1networth/syncbridge/internal/telemetry"
)

// Context carries one synchronization attempt. Built once per event by
// the domain handler, executed once, then discarded.
type Context struct {
	// Name labels the domain in telemetry signal names, e.g. "visit".
	Name string
	// Attributes are attached to every signal emitted for this attempt.
	Attributes map[string]string
	// ExistenceCheck is the idempotency guard: a non-nil mapping means
	// this change was already processed.
	ExistenceCheck func(ctx context.Context) (*mapping.Mapping, error)
	// Transform fetches the canonical entity, applies the business
	// mapping and performs the non-idempotent create against the target
	// system. A nil mapping with nil error is a deliberate "not
	// applicable" decision, not a failure.
	Transform func(ctx context.Context) (*mapping.Mapping, error)
	// PersistMapping records the id correspondence in the mapping store.
	PersistMapping func(ctx context.Context, m mapping.Mapping) error
}

// RetryEnqueuer re-queues the bookkeeping write; satisfied by
// retryqueue.Queue.
type RetryEnqueuer interface {
	Enqueue(ctx context.Context, msg events.RetryMessage, attempt int) (string, error)
}

type Engine struct {
	queue RetryEnqueuer
	tel   telemetry.Recorder
	log   *slog.Logger
}

func New(queue RetryEnqueuer, tel telemetry.Recorder, log *slog.Logger) *Engine {
	return &Engine{queue: queue, tel: tel, log: log}
}

// CreateAndMap runs the create/sync protocol for one event.
//
// A transform failure propagates so the transport redelivers the whole
// event; that is safe because the existence check turns the eventual
// retry into a no-op once the mapping is persisted. A bookkeeping
// failure never propagates: re-running the transform would create a
// duplicate target-system entity, so only the mapping write is retried,
// through the durable queue.
func (e *Engine) CreateAndMap(ctx context.Context, sc Context) error {
	existing, err := sc.ExistenceCheck(ctx)
	if err != nil {
		return fmt.Errorf("%s: existence check: %w", sc.Name, err)
	}
	if existing != nil {
		e.track(sc.Name+"-create-duplicate", sc.Attributes, map[string]string{
			"sourceId": existing.SourceID,
			"targetId": existing.TargetID,
		})
		return nil
	}

	m, err := sc.Transform(ctx)
	if err != nil {
		e.track(sc.Name+"-create-failed", sc.Attributes, map[string]string{"reason": err.Error()})
		return fmt.Errorf("%s: transform: %w", sc.Name, err)
	}
	if m == nil {
		e.track(sc.Name+"-create-ignored", sc.Attributes, nil)
		return nil
	}

	if err := sc.PersistMapping(ctx, *m); err != nil {
		e.handleMappingFailure(ctx, sc, *m, err)
		return nil
	}

	e.track(sc.Name+"-create-success", sc.Attributes, map[string]string{
		"sourceId": m.SourceID,
		"targetId": m.TargetID,
	})
	return nil
}

func (e *Engine) handleMappingFailure(ctx context.Context, sc Context, m mapping.Mapping, err error) {
	var conflict *mapping.ConflictError
	if errors.As(err, &conflict) {
		// Another delivery won the race; the system is already
		// consistent, so there is nothing to retry.
		e.track(sc.Name+"-create-mapping-duplicate", sc.Attributes, map[string]string{
			"existingSourceId":  conflict.Existing.SourceID,
			"existingTargetId":  conflict.Existing.TargetID,
			"duplicateSourceId": conflict.Attempted.SourceID,
			"duplicateTargetId": conflict.Attempted.TargetID,
		})
		return
	}

	e.track(sc.Name+"-mapping-create-failed", sc.Attributes, map[string]string{
		"sourceId": m.SourceID,
		"targetId": m.TargetID,
		"reason":   err.Error(),
	})
	e.log.Error("mapping_create_failed",
		slog.String("entity", sc.Name),
		slog.String("source_id", m.SourceID),
		slog.String("err", err.Error()),
	)

	body, merr := json.Marshal(m)
	if merr != nil {
		e.log.Error("retry_message_encode_failed", slog.String("entity", sc.Name), slog.String("err", merr.Error()))
		return
	}
	// Enqueue failure is terminal for this attempt; the queue signals it
	// for operator follow-up.
	_, _ = e.queue.Enqueue(ctx, events.RetryMessage{
		Mapping:             body,
		TelemetryAttributes: sc.Attributes,
		EntityName:          sc.Name,
	}, 1)
}

// RetryCreateMapping re-runs only the bookkeeping write. A conflict means
// an earlier attempt (or a racing delivery) already recorded it and is
// treated as success. Any other failure propagates so the transport
// redelivers the retry message.
func (e *Engine) RetryCreateMapping(ctx context.Context, name string, attrs map[string]string, persist func(ctx context.Context) error) error {
	err := persist(ctx)
	if err == nil {
		e.track(name+"-create-mapping-retry-success", attrs, nil)
		return nil
	}
	var conflict *mapping.ConflictError
	if errors.As(err, &conflict) {
		e.track(name+"-create-mapping-retry-duplicate", attrs, map[string]string{
			"existingSourceId": conflict.Existing.SourceID,
			"existingTargetId": conflict.Existing.TargetID,
		})
		return nil
	}
	return fmt.Errorf("%s: retry create mapping: %w", name, err)
}

func (e *Engine) track(name string, base, extra map[string]string) {
	attrs := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		attrs[k] = v
	}
	for k, v := range extra {
		attrs[k] = v
	}
	e.tel.Track(name, attrs)
}
