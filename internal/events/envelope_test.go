package events_test

import (
	"testing"

	"github.com/k1networth/syncbridge/internal/events"
)

func TestDecodeEnvelope(t *testing.T) {
	raw := []byte(`{"Type":"Notification","Message":"{\"eventType\":\"visit.created\"}"}`)

	env, err := events.DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Type != events.TypeNotification {
		t.Fatalf("expected type %q, got %q", events.TypeNotification, env.Type)
	}

	ev, err := events.DecodeDomainEvent(env.Message)
	if err != nil {
		t.Fatalf("decode domain event: %v", err)
	}
	if ev.EventType != "visit.created" {
		t.Fatalf("expected event type %q, got %q", "visit.created", ev.EventType)
	}
}

func TestDecodeEnvelopeRejectsMissingType(t *testing.T) {
	if _, err := events.DecodeEnvelope([]byte(`{"Message":"{}"}`)); err == nil {
		t.Fatalf("expected error for missing Type")
	}
	if _, err := events.DecodeEnvelope([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed input")
	}
}

func TestDecodeRetryMessage(t *testing.T) {
	msg, err := events.DecodeRetryMessage(`{"mapping":{"sourceId":"42"},"telemetryAttributes":{"visitId":"42"},"entityName":"visit"}`)
	if err != nil {
		t.Fatalf("decode retry message: %v", err)
	}
	if msg.EntityName != "visit" {
		t.Fatalf("expected entity name %q, got %q", "visit", msg.EntityName)
	}
	if msg.TelemetryAttributes["visitId"] != "42" {
		t.Fatalf("expected telemetry attribute to survive decoding")
	}

	if _, err := events.DecodeRetryMessage(`{"mapping":{}}`); err == nil {
		t.Fatalf("expected error for missing entityName")
	}
}

func TestPersonReferenceIdentifier(t *testing.T) {
	p := &events.PersonReference{Identifiers: []events.Identifier{
		{Type: "NOMS", Value: "A1234BC"},
		{Type: "CRN", Value: "X99"},
	}}

	if got := p.Identifier("NOMS"); got != "A1234BC" {
		t.Fatalf("expected NOMS identifier, got %q", got)
	}
	if got := p.Identifier("PNC"); got != "" {
		t.Fatalf("expected empty for unknown type, got %q", got)
	}

	var nilRef *events.PersonReference
	if got := nilRef.Identifier("NOMS"); got != "" {
		t.Fatalf("expected empty for nil reference, got %q", got)
	}
}
