// Package backoff wraps outbound calls to the source and target systems
// with bounded retry-with-delay. Only transient, network-class failures
// are retried; business and validation failures propagate immediately.
package backoff

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type Policy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy matches the per-call budget the remote clients are sized
// for: three tries, short waits.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// transienter lets error types opt in or out of retry themselves.
type transienter interface {
	Transient() bool
}

// Transient reports whether err is a network-class failure worth retrying.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var t transienter
	if errors.As(err, &t) {
		return t.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return false
}

// Call runs fn, retrying per the policy while the failure is transient.
// The final error is returned unwrapped so callers can still classify it.
func Call[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	op := func() (T, error) {
		v, err := fn()
		if err != nil && !Transient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(p.MaxAttempts),
	)
}
