package config

import (
	"strings"
	"time"

	"github.com/k1networth/syncbridge/internal/shared/env"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string

	DatabaseURL string

	KafkaBrokers []string
	// EventTopic carries both upstream notifications and our own
	// RETRY_CREATE_MAPPING envelopes.
	EventTopic   string
	KafkaGroupID string

	SourceBaseURL string
	TargetBaseURL string
	RemoteTimeout time.Duration

	// RetryMaxAttempts bounds the bookkeeping retry path before a
	// message is dead-lettered.
	RetryMaxAttempts int

	ReconcilePageSize int64

	// DisabledEvents lists "eventType:domain" pairs the dispatcher must
	// drop, e.g. "prison-visit.created:visit".
	DisabledEvents []string
}

func Load() Config {
	loadDotEnv(".env")

	return Config{
		AppEnv:            env.String("APP_ENV", "dev"),
		HTTPAddr:          env.String("HTTP_ADDR", ":8080"),
		MetricsAddr:       env.String("METRICS_ADDR", ":9091"),
		DatabaseURL:       env.String("DATABASE_URL", ""),
		KafkaBrokers:      env.StringsCSV("KAFKA_BROKERS", []string{"localhost:9092"}),
		EventTopic:        env.String("KAFKA_EVENT_TOPIC", "domain.events"),
		KafkaGroupID:      env.String("KAFKA_GROUP_ID", "sync-worker"),
		SourceBaseURL:     env.String("SOURCE_BASE_URL", "http://localhost:8081"),
		TargetBaseURL:     env.String("TARGET_BASE_URL", "http://localhost:8082"),
		RemoteTimeout:     env.Duration("REMOTE_TIMEOUT", 10*time.Second),
		RetryMaxAttempts:  env.Int("RETRY_MAX_ATTEMPTS", 5),
		ReconcilePageSize: int64(env.Int("RECONCILE_PAGE_SIZE", 10)),
		DisabledEvents:    env.StringsCSV("DISABLED_EVENTS", nil),
	}
}

// DisabledPairs converts DisabledEvents into the shape the feature
// switch set takes: event type to the domains it is off for.
func (c Config) DisabledPairs() map[string][]string {
	out := make(map[string][]string)
	for _, pair := range c.DisabledEvents {
		eventType, domain, ok := strings.Cut(pair, ":")
		if !ok || eventType == "" || domain == "" {
			continue
		}
		out[eventType] = append(out[eventType], domain)
	}
	return out
}
