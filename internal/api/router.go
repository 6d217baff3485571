package api

import (
	"log/slog"
	"net/http"

	"github.com/k1networth/syncbridge/internal/shared/httpx"
)

func NewRouter(log *slog.Logger, h *Handler, httpMetrics *httpx.Metrics, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	mux.HandleFunc("POST /reconcile/{domain}", h.TriggerReconcile)
	mux.HandleFunc("POST /repair/{domain}/{id}", h.TriggerRepair)
	mux.HandleFunc("GET /deadletters", h.ListDeadLetters)
	mux.HandleFunc("POST /deadletters/{id}/requeue", h.RequeueDeadLetter)

	var handler http.Handler = mux
	if httpMetrics != nil {
		handler = httpMetrics.Middleware(mux)
	}
	handler = httpx.RequestID(handler)
	handler = httpx.AccessLog(log)(handler)

	return handler
}
