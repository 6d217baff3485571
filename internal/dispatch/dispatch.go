// Package dispatch decodes inbound envelopes and routes them: domain
// events to their registered handler (behind a per-domain feature
// switch), retry envelopes back into the synchronization engine's
// bookkeeping path. Returning a nil error acknowledges the transport
// message; any business effect happens inside the handler.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/k1networth/syncbridge/internal/events"
	"github.com/k1networth/syncbridge/internal/featureswitch"
	"github.com/k1networth/syncbridge/internal/telemetry"
)

// Handler is one domain's entry point into the sync engine.
type Handler interface {
	// Domain labels the handler for feature switches and retry routing.
	Domain() string
	// HandleEvent processes one enabled domain event. Its error is the
	// dispatch outcome: non-nil means the transport must redeliver.
	HandleEvent(ctx context.Context, ev events.DomainEvent) error
	// RetryCreateMapping re-attempts only the mapping bookkeeping write
	// carried by msg.
	RetryCreateMapping(ctx context.Context, msg events.RetryMessage) error
}

// RetryEnqueuer re-queues a failed bookkeeping retry with a bumped
// attempt counter.
type RetryEnqueuer interface {
	Enqueue(ctx context.Context, msg events.RetryMessage, attempt int) (string, error)
}

// DeadLetterStore parks retry messages that exhausted their attempts for
// manual operator intervention.
type DeadLetterStore interface {
	Insert(ctx context.Context, msg events.RetryMessage, attempts int, reason string) error
}

type Dispatcher struct {
	byEventType map[string]Handler
	byDomain    map[string]Handler
	switches    *featureswitch.Switches
	queue       RetryEnqueuer
	deadLetters DeadLetterStore
	maxAttempts int
	tel         telemetry.Recorder
	log         *slog.Logger
}

func New(switches *featureswitch.Switches, queue RetryEnqueuer, deadLetters DeadLetterStore, maxAttempts int, tel telemetry.Recorder, log *slog.Logger) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Dispatcher{
		byEventType: make(map[string]Handler),
		byDomain:    make(map[string]Handler),
		switches:    switches,
		queue:       queue,
		deadLetters: deadLetters,
		maxAttempts: maxAttempts,
		tel:         tel,
		log:         log,
	}
}

// Register wires a handler for the given upstream event types. Called at
// startup only; the registry is read-only afterwards.
func (d *Dispatcher) Register(h Handler, eventTypes ...string) {
	d.byDomain[h.Domain()] = h
	for _, t := range eventTypes {
		d.byEventType[t] = h
	}
}

// Dispatch processes one raw transport message. A nil return acknowledges
// it; an error leaves it to the transport's redelivery.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) error {
	env, err := events.DecodeEnvelope(raw)
	if err != nil {
		// Malformed input is fatal for this message; redelivery would
		// only fail the same way.
		d.log.Error("envelope_decode_failed", slog.String("err", err.Error()))
		return nil
	}

	if env.Type == events.TypeRetryCreateMapping {
		return d.dispatchRetry(ctx, env)
	}
	return d.dispatchDomainEvent(ctx, env)
}

func (d *Dispatcher) dispatchDomainEvent(ctx context.Context, env events.Envelope) error {
	ev, err := events.DecodeDomainEvent(env.Message)
	if err != nil {
		d.log.Error("domain_event_decode_failed", slog.String("err", err.Error()))
		return nil
	}

	h, ok := d.byEventType[ev.EventType]
	if !ok {
		// New upstream event types must never crash the consumer.
		d.log.Info("event_type_unknown", slog.String("event_type", ev.EventType))
		return nil
	}

	if !d.switches.Enabled(ev.EventType, h.Domain()) {
		d.log.Info("event_switched_off",
			slog.String("event_type", ev.EventType),
			slog.String("domain", h.Domain()),
		)
		return nil
	}

	return h.HandleEvent(ctx, ev)
}

func (d *Dispatcher) dispatchRetry(ctx context.Context, env events.Envelope) error {
	msg, err := events.DecodeRetryMessage(env.Message)
	if err != nil {
		d.log.Error("retry_message_decode_failed", slog.String("err", err.Error()))
		return nil
	}

	h, ok := d.byDomain[msg.EntityName]
	if !ok {
		d.log.Error("retry_domain_unknown", slog.String("entity", msg.EntityName))
		return nil
	}

	attempt := env.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	if err := h.RetryCreateMapping(ctx, msg); err != nil {
		d.tel.Track("create-mapping-retry-failure", retryAttrs(msg, attempt, err))
		d.log.Error("create_mapping_retry_failed",
			slog.String("entity", msg.EntityName),
			slog.Int("attempt", attempt),
			slog.String("err", err.Error()),
		)

		if attempt >= d.maxAttempts {
			return d.deadLetter(ctx, msg, attempt, err)
		}

		// Re-enqueue with a bumped counter so the bound is explicit
		// rather than left to transport defaults. If even that fails,
		// let the transport redeliver this envelope.
		if _, qerr := d.queue.Enqueue(ctx, msg, attempt+1); qerr != nil {
			return fmt.Errorf("requeue retry for %s: %w", msg.EntityName, qerr)
		}
	}
	return nil
}

func (d *Dispatcher) deadLetter(ctx context.Context, msg events.RetryMessage, attempt int, cause error) error {
	d.tel.Track("create-mapping-retry-dead-letter", retryAttrs(msg, attempt, cause))
	if err := d.deadLetters.Insert(ctx, msg, attempt, cause.Error()); err != nil {
		return fmt.Errorf("dead-letter retry for %s: %w", msg.EntityName, err)
	}
	d.log.Error("create_mapping_retry_dead_lettered",
		slog.String("entity", msg.EntityName),
		slog.Int("attempts", attempt),
	)
	return nil
}

func retryAttrs(msg events.RetryMessage, attempt int, cause error) map[string]string {
	attrs := make(map[string]string, len(msg.TelemetryAttributes)+4)
	for k, v := range msg.TelemetryAttributes {
		attrs[k] = v
	}
	attrs["entityName"] = msg.EntityName
	attrs["mapping"] = string(msg.Mapping)
	attrs["attempt"] = fmt.Sprintf("%d", attempt)
	attrs["reason"] = cause.Error()
	return attrs
}
