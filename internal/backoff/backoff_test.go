package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k1networth/syncbridge/internal/backoff"
	"github.com/k1networth/syncbridge/internal/remote"
)

func fastPolicy() backoff.Policy {
	return backoff.Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestCallRetriesTransientFailures(t *testing.T) {
	calls := 0
	v, err := backoff.Call(context.Background(), fastPolicy(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", timeoutErr{}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestCallGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, err := backoff.Call(context.Background(), fastPolicy(), func() (string, error) {
		calls++
		return "", timeoutErr{}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestCallDoesNotRetryNonTransientFailures(t *testing.T) {
	boom := errors.New("validation failed")
	calls := 0
	_, err := backoff.Call(context.Background(), fastPolicy(), func() (int, error) {
		calls++
		return 0, boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "non-transient failures propagate immediately")
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	_, err := backoff.Call(context.Background(), fastPolicy(), func() (int, error) {
		calls++
		return 0, &remote.Error{Status: 400, Body: "bad request"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCallRetriesServerErrors(t *testing.T) {
	calls := 0
	_, err := backoff.Call(context.Background(), fastPolicy(), func() (int, error) {
		calls++
		return 0, &remote.Error{Status: 503, Body: "unavailable"}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestTransientClassification(t *testing.T) {
	assert.False(t, backoff.Transient(nil))
	assert.False(t, backoff.Transient(errors.New("nope")))
	assert.False(t, backoff.Transient(remote.ErrNotFound))
	assert.True(t, backoff.Transient(timeoutErr{}))
	assert.True(t, backoff.Transient(&remote.Error{Status: 502}))
	assert.False(t, backoff.Transient(&remote.Error{Status: 409}))
}
