// Package telemetry emits the named structured signals that are the
// system's primary observability surface. Every signal has a flat
// string-keyed attribute map; operators alert on signal names, tests
// assert on recorded signals directly.
package telemetry

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Recorder interface {
	Track(name string, attrs map[string]string)
}

// StdRecorder logs each signal as a structured slog record and counts it
// in a Prometheus counter labelled by signal name.
type StdRecorder struct {
	log     *slog.Logger
	signals *prometheus.CounterVec
}

func NewStdRecorder(log *slog.Logger, reg prometheus.Registerer) *StdRecorder {
	signals := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sync_telemetry_signals_total", Help: "Emitted telemetry signals."},
		[]string{"signal"},
	)
	reg.MustRegister(signals)
	return &StdRecorder{log: log, signals: signals}
}

func (r *StdRecorder) Track(name string, attrs map[string]string) {
	args := make([]any, 0, len(attrs)+1)
	args = append(args, slog.String("signal", name))
	for k, v := range attrs {
		args = append(args, slog.String(k, v))
	}
	r.log.Info("telemetry", args...)
	r.signals.WithLabelValues(name).Inc()
}

// Signal is one recorded event, kept in emission order by Capture.
type Signal struct {
	Name  string
	Attrs map[string]string
}

// Capture is an in-memory Recorder for tests.
type Capture struct {
	mu      sync.Mutex
	signals []Signal
}

func NewCapture() *Capture { return &Capture{} }

func (c *Capture) Track(name string, attrs map[string]string) {
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, Signal{Name: name, Attrs: copied})
}

// Signals returns a snapshot of everything tracked so far, in order.
func (c *Capture) Signals() []Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Signal, len(c.signals))
	copy(out, c.signals)
	return out
}

// Names returns just the signal names, in order.
func (c *Capture) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.signals))
	for i, s := range c.signals {
		out[i] = s.Name
	}
	return out
}

// Count returns how many signals with the given name were tracked.
func (c *Capture) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.signals {
		if s.Name == name {
			n++
		}
	}
	return n
}
