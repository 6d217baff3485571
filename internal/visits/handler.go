package visits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/k1networth/syncbridge/internal/backoff"
	"github.com/k1networth/syncbridge/internal/events"
	"github.com/k1networth/syncbridge/internal/mapping"
	"github.com/k1networth/syncbridge/internal/remote"
	"github.com/k1networth/syncbridge/internal/syncer"
	"github.com/k1networth/syncbridge/internal/telemetry"
)

const (
	EventVisitCreated   = "prison-visit.created"
	EventVisitCancelled = "prison-visit.cancelled"

	mappingTypeVisit = "VISIT_CREATED"
)

// EventTypes lists the upstream events this handler subscribes to.
func EventTypes() []string {
	return []string{EventVisitCreated, EventVisitCancelled}
}

// Source reads canonical visits; satisfied by SourceClient.
type Source interface {
	GetVisit(ctx context.Context, id string) (Visit, error)
}

// Target mutates the legacy system; satisfied by TargetClient.
type Target interface {
	CreateVisit(ctx context.Context, req CreateVisitRequest) (CreateVisitResponse, error)
	CancelVisit(ctx context.Context, offenderNo, visitID string) error
}

type Handler struct {
	source Source
	target Target
	store  mapping.Store
	engine *syncer.Engine
	policy backoff.Policy
	tel    telemetry.Recorder
	log    *slog.Logger
}

func NewHandler(source Source, target Target, store mapping.Store, engine *syncer.Engine, policy backoff.Policy, tel telemetry.Recorder, log *slog.Logger) *Handler {
	return &Handler{
		source: source,
		target: target,
		store:  store,
		engine: engine,
		policy: policy,
		tel:    tel,
		log:    log,
	}
}

func (h *Handler) Domain() string { return "visit" }

func (h *Handler) HandleEvent(ctx context.Context, ev events.DomainEvent) error {
	visitID := ev.AdditionalInformation["visitId"]
	if visitID == "" {
		h.log.Error("visit_event_missing_id", slog.String("event_type", ev.EventType))
		return nil
	}
	offenderNo := ev.PersonReference.Identifier("NOMS")

	switch ev.EventType {
	case EventVisitCreated:
		return h.engine.CreateAndMap(ctx, h.syncContext(visitID, offenderNo))
	case EventVisitCancelled:
		return h.cancel(ctx, visitID, offenderNo)
	default:
		h.log.Info("visit_event_ignored", slog.String("event_type", ev.EventType))
		return nil
	}
}

// syncContext builds the per-invocation protocol steps for one visit.
// Repair and the normal event path share it.
func (h *Handler) syncContext(visitID, offenderNo string) syncer.Context {
	attrs := map[string]string{"visitId": visitID}
	if offenderNo != "" {
		attrs["offenderNo"] = offenderNo
	}

	return syncer.Context{
		Name:       "visit",
		Attributes: attrs,
		ExistenceCheck: func(ctx context.Context) (*mapping.Mapping, error) {
			m, err := h.store.Get(ctx, visitID)
			if err != nil {
				if errors.Is(err, mapping.ErrNotFound) {
					return nil, nil
				}
				return nil, err
			}
			return &m, nil
		},
		Transform: func(ctx context.Context) (*mapping.Mapping, error) {
			visit, err := backoff.Call(ctx, h.policy, func() (Visit, error) {
				return h.source.GetVisit(ctx, visitID)
			})
			if err != nil {
				if errors.Is(err, remote.ErrNotFound) {
					// Gone upstream before we processed the event; not
					// an error, there is nothing to sync.
					return nil, nil
				}
				return nil, err
			}

			resp, err := backoff.Call(ctx, h.policy, func() (CreateVisitResponse, error) {
				return h.target.CreateVisit(ctx, CreateVisitRequest{
					OffenderNo: visit.OffenderNo,
					PrisonID:   visit.PrisonID,
					StartTime:  visit.StartTime,
					EndTime:    visit.EndTime,
					VisitType:  visit.VisitType,
				})
			})
			if err != nil {
				return nil, err
			}

			return &mapping.Mapping{
				SourceID:    visitID,
				TargetID:    resp.VisitID,
				MappingType: mappingTypeVisit,
				CreatedAt:   time.Now().UTC(),
			}, nil
		},
		PersistMapping: func(ctx context.Context, m mapping.Mapping) error {
			return h.store.Create(ctx, m)
		},
	}
}

func (h *Handler) cancel(ctx context.Context, visitID, offenderNo string) error {
	m, err := h.store.Get(ctx, visitID)
	if err != nil {
		if errors.Is(err, mapping.ErrNotFound) {
			// Never synced, so there is nothing to cancel downstream.
			h.tel.Track("visit-cancelled-ignored", map[string]string{"visitId": visitID})
			return nil
		}
		return fmt.Errorf("visit cancel %s: %w", visitID, err)
	}

	_, err = backoff.Call(ctx, h.policy, func() (struct{}, error) {
		return struct{}{}, h.target.CancelVisit(ctx, offenderNo, m.TargetID)
	})
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		h.tel.Track("visit-cancelled-failed", map[string]string{
			"visitId": visitID,
			"reason":  err.Error(),
		})
		return fmt.Errorf("visit cancel %s: %w", visitID, err)
	}

	if err := h.store.Delete(ctx, visitID); err != nil {
		return fmt.Errorf("visit cancel %s: delete mapping: %w", visitID, err)
	}
	h.tel.Track("visit-cancelled-success", map[string]string{
		"visitId":  visitID,
		"targetId": m.TargetID,
	})
	return nil
}

// RetryCreateMapping re-attempts only the bookkeeping write carried by a
// retry message; the visit itself was already created downstream.
func (h *Handler) RetryCreateMapping(ctx context.Context, msg events.RetryMessage) error {
	var m mapping.Mapping
	if err := json.Unmarshal(msg.Mapping, &m); err != nil {
		return fmt.Errorf("visit: decode retry mapping: %w", err)
	}
	return h.engine.RetryCreateMapping(ctx, "visit", msg.TelemetryAttributes, func(ctx context.Context) error {
		return h.store.Create(ctx, m)
	})
}

// Repair re-runs the create/sync protocol for one visit outside the
// normal event flow, for operator use when an event was lost.
func (h *Handler) Repair(ctx context.Context, visitID string) error {
	return h.engine.CreateAndMap(ctx, h.syncContext(visitID, ""))
}
