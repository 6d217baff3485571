package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/k1networth/syncbridge/internal/api"
	"github.com/k1networth/syncbridge/internal/deadletter"
	"github.com/k1networth/syncbridge/internal/events"
)

func testLogger() *slog.Logger {
	h := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h).With(
		slog.String("app", "test"),
		slog.String("env", "test"),
	)
}

type fakeDeadLetters struct {
	records map[int64]deadletter.Record
	deleted []int64
}

func (s *fakeDeadLetters) List(ctx context.Context, limit int) ([]deadletter.Record, error) {
	var out []deadletter.Record
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeDeadLetters) Get(ctx context.Context, id int64) (deadletter.Record, error) {
	r, ok := s.records[id]
	if !ok {
		return deadletter.Record{}, deadletter.ErrNotFound
	}
	return r, nil
}

func (s *fakeDeadLetters) Delete(ctx context.Context, id int64) error {
	s.deleted = append(s.deleted, id)
	delete(s.records, id)
	return nil
}

type fakeQueue struct {
	enqueued []events.RetryMessage
}

func (q *fakeQueue) Enqueue(ctx context.Context, msg events.RetryMessage, attempt int) (string, error) {
	q.enqueued = append(q.enqueued, msg)
	return "msg-1", nil
}

func newTestServer(started *atomic.Int64, release chan struct{}, dls *fakeDeadLetters, queue *fakeQueue) *httptest.Server {
	log := testLogger()

	if dls == nil {
		dls = &fakeDeadLetters{records: map[int64]deadletter.Record{}}
	}
	if queue == nil {
		queue = &fakeQueue{}
	}

	h := &api.Handler{
		Log: log,
		Reconcilers: map[string]api.ReconcileFunc{
			"visit": func(ctx context.Context) {
				if started != nil {
					started.Add(1)
				}
				if release != nil {
					<-release
				}
			},
		},
		Repairers: map[string]api.RepairFunc{
			"visit": func(ctx context.Context, id string) error { return nil },
		},
		DeadLetters: dls,
		Queue:       queue,
	}

	return httptest.NewServer(api.NewRouter(log, h, nil, nil))
}

func TestTriggerReconcileReturnsAcceptedImmediately(t *testing.T) {
	var started atomic.Int64
	release := make(chan struct{})
	srv := newTestServer(&started, release, nil, nil)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	resp, err := http.Post(srv.URL+"/reconcile/visit", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected %d, got %d", http.StatusAccepted, resp.StatusCode)
	}

	// The run starts in the background; the response never waits for it.
	deadline := time.After(2 * time.Second)
	for started.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("expected reconciliation run to start")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	if rid := resp.Header.Get("X-Request-Id"); rid == "" {
		t.Fatalf("expected X-Request-Id header to be set")
	}
}

func TestTriggerReconcileUnknownDomain404(t *testing.T) {
	srv := newTestServer(nil, nil, nil, nil)
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/reconcile/sentence", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, resp.StatusCode)
	}

	var er struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if er.Error.Code != "unknown_domain" {
		t.Fatalf("expected code %q, got %q", "unknown_domain", er.Error.Code)
	}
}

func TestTriggerRepairReturnsAccepted(t *testing.T) {
	srv := newTestServer(nil, nil, nil, nil)
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/repair/visit/42", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected %d, got %d", http.StatusAccepted, resp.StatusCode)
	}
}

func TestRequeueDeadLetter(t *testing.T) {
	dls := &fakeDeadLetters{records: map[int64]deadletter.Record{
		7: {
			ID:         7,
			EntityName: "visit",
			Mapping:    json.RawMessage(`{"sourceId":"42","targetId":"9001"}`),
			Attempts:   5,
		},
	}}
	queue := &fakeQueue{}
	srv := newTestServer(nil, nil, dls, queue)
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/deadletters/7/requeue", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected %d, got %d", http.StatusAccepted, resp.StatusCode)
	}
	if len(queue.enqueued) != 1 {
		t.Fatalf("expected 1 requeued message, got %d", len(queue.enqueued))
	}
	if queue.enqueued[0].EntityName != "visit" {
		t.Fatalf("expected entity name visit, got %q", queue.enqueued[0].EntityName)
	}
	if len(dls.deleted) != 1 || dls.deleted[0] != 7 {
		t.Fatalf("expected record 7 to be deleted, got %v", dls.deleted)
	}
}

func TestRequeueDeadLetterNotFound(t *testing.T) {
	srv := newTestServer(nil, nil, nil, nil)
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/deadletters/99/requeue", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestListDeadLetters(t *testing.T) {
	dls := &fakeDeadLetters{records: map[int64]deadletter.Record{
		1: {ID: 1, EntityName: "visit", Attempts: 5},
	}}
	srv := newTestServer(nil, nil, dls, nil)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/deadletters")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var got []deadletter.Record
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].EntityName != "visit" {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(nil, nil, nil, nil)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, resp.StatusCode)
	}
}
