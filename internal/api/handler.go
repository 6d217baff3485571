// Package api is the operational surface: per-domain reconciliation
// triggers, the manual repair trigger, and dead-letter inspection. The
// triggers return immediately with 202; outcomes are observable only
// through telemetry.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/k1networth/syncbridge/internal/deadletter"
	"github.com/k1networth/syncbridge/internal/events"
	"github.com/k1networth/syncbridge/internal/shared/httpx"
)

// ReconcileFunc runs one full reconciliation sweep for a domain.
type ReconcileFunc func(ctx context.Context)

// RepairFunc re-runs the sync protocol for one id in a domain.
type RepairFunc func(ctx context.Context, id string) error

// DeadLetters is the admin view over parked retry messages; satisfied by
// deadletter.Store.
type DeadLetters interface {
	List(ctx context.Context, limit int) ([]deadletter.Record, error)
	Get(ctx context.Context, id int64) (deadletter.Record, error)
	Delete(ctx context.Context, id int64) error
}

// RetryEnqueuer re-submits a parked retry message to the queue.
type RetryEnqueuer interface {
	Enqueue(ctx context.Context, msg events.RetryMessage, attempt int) (string, error)
}

type Handler struct {
	Log         *slog.Logger
	Reconcilers map[string]ReconcileFunc
	Repairers   map[string]RepairFunc
	DeadLetters DeadLetters
	Queue       RetryEnqueuer
}

func (h *Handler) TriggerReconcile(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	run, ok := h.Reconcilers[domain]
	if !ok {
		httpx.WriteError(w, r, http.StatusNotFound, "unknown_domain", "no reconciliation registered for "+domain)
		return
	}

	h.Log.Info("reconciliation_triggered", slog.String("domain", domain))
	// Fire and forget; the run outlives this request.
	go run(context.Background())

	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "domain": domain})
}

func (h *Handler) TriggerRepair(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	id := r.PathValue("id")

	repair, ok := h.Repairers[domain]
	if !ok {
		httpx.WriteError(w, r, http.StatusNotFound, "unknown_domain", "no repair registered for "+domain)
		return
	}

	h.Log.Info("repair_triggered", slog.String("domain", domain), slog.String("id", id))
	go func() {
		if err := repair(context.Background(), id); err != nil {
			h.Log.Error("repair_failed",
				slog.String("domain", domain),
				slog.String("id", id),
				slog.String("err", err.Error()),
			)
		}
	}()

	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "domain": domain, "id": id})
}

func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	recs, err := h.DeadLetters.List(r.Context(), limit)
	if err != nil {
		h.Log.Error("dead_letter_list_failed", slog.String("err", err.Error()))
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if recs == nil {
		recs = []deadletter.Record{}
	}
	httpx.WriteJSON(w, http.StatusOK, recs)
}

func (h *Handler) RequeueDeadLetter(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "invalid dead letter id")
		return
	}

	rec, err := h.DeadLetters.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, deadletter.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "not_found", "not found")
			return
		}
		h.Log.Error("dead_letter_get_failed", slog.String("err", err.Error()))
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	// Back onto the queue with a fresh attempt budget.
	if _, err := h.Queue.Enqueue(r.Context(), rec.Message(), 1); err != nil {
		h.Log.Error("dead_letter_requeue_failed", slog.Int64("id", id), slog.String("err", err.Error()))
		httpx.WriteError(w, r, http.StatusBadGateway, "queue_unavailable", "could not requeue message")
		return
	}
	if err := h.DeadLetters.Delete(r.Context(), id); err != nil {
		h.Log.Error("dead_letter_delete_failed", slog.Int64("id", id), slog.String("err", err.Error()))
	}

	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "requeued"})
}
