package retryqueue_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k1networth/syncbridge/internal/events"
	"github.com/k1networth/syncbridge/internal/retryqueue"
	"github.com/k1networth/syncbridge/internal/telemetry"
)

type fakeProducer struct {
	keys   [][]byte
	values [][]byte
	err    error
}

func (p *fakeProducer) Produce(ctx context.Context, key, value []byte, timeout time.Duration) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestEnqueueWrapsMessageInRetryEnvelope(t *testing.T) {
	producer := &fakeProducer{}
	tel := telemetry.NewCapture()
	q := retryqueue.New(producer, tel, testLogger())

	msg := events.RetryMessage{
		Mapping:             json.RawMessage(`{"sourceId":"42","targetId":"9001"}`),
		TelemetryAttributes: map[string]string{"visitId": "42"},
		EntityName:          "visit",
	}

	id, err := q.Enqueue(context.Background(), msg, 2)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Len(t, producer.values, 1)
	assert.Equal(t, id, string(producer.keys[0]))

	var env events.Envelope
	require.NoError(t, json.Unmarshal(producer.values[0], &env))
	assert.Equal(t, events.TypeRetryCreateMapping, env.Type)
	assert.Equal(t, 2, env.Attempt)

	decoded, err := events.DecodeRetryMessage(env.Message)
	require.NoError(t, err)
	assert.Equal(t, "visit", decoded.EntityName)
	assert.Equal(t, "42", decoded.TelemetryAttributes["visitId"])
	assert.JSONEq(t, `{"sourceId":"42","targetId":"9001"}`, string(decoded.Mapping))

	assert.Empty(t, tel.Names())
}

func TestEnqueueSendFailureIsSignalledAndReturned(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker unreachable")}
	tel := telemetry.NewCapture()
	q := retryqueue.New(producer, tel, testLogger())

	_, err := q.Enqueue(context.Background(), events.RetryMessage{EntityName: "visit"}, 1)
	require.Error(t, err)

	require.Equal(t, 1, tel.Count("send-message-RETRY_CREATE_MAPPING-failed"))
	sig := tel.Signals()[0]
	assert.Equal(t, "visit", sig.Attrs["entityName"])
	assert.NotEmpty(t, sig.Attrs["reason"])
}
