package events

import (
	"encoding/json"
	"fmt"
)

const (
	// TypeNotification marks an upstream domain-change event.
	TypeNotification = "Notification"
	// TypeRetryCreateMapping marks a re-queued mapping bookkeeping write.
	TypeRetryCreateMapping = "RETRY_CREATE_MAPPING"
)

// Envelope is the transport-level wrapper every inbound message carries.
// Message is the inner payload encoded as a JSON string, matching the
// notification-wrapper format the upstream publisher uses.
type Envelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
	Attempt int    `json:"Attempt,omitempty"`
}

// DomainEvent is the decoded Message of a Notification envelope.
type DomainEvent struct {
	EventType             string            `json:"eventType"`
	AdditionalInformation map[string]string `json:"additionalInformation"`
	PersonReference       *PersonReference  `json:"personReference,omitempty"`
}

type PersonReference struct {
	Identifiers []Identifier `json:"identifiers"`
}

type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Identifier returns the person identifier of the given type, or "".
func (p *PersonReference) Identifier(typ string) string {
	if p == nil {
		return ""
	}
	for _, id := range p.Identifiers {
		if id.Type == typ {
			return id.Value
		}
	}
	return ""
}

// DecodeEnvelope parses the raw transport message.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing Type")
	}
	return env, nil
}

// DecodeDomainEvent parses the inner Message of a Notification envelope.
func DecodeDomainEvent(message string) (DomainEvent, error) {
	var ev DomainEvent
	if err := json.Unmarshal([]byte(message), &ev); err != nil {
		return DomainEvent{}, fmt.Errorf("decode domain event: %w", err)
	}
	if ev.EventType == "" {
		return DomainEvent{}, fmt.Errorf("decode domain event: missing eventType")
	}
	return ev, nil
}
