package events

import (
	"encoding/json"
	"fmt"
)

// RetryMessage asks the owning domain handler to re-attempt only the
// mapping bookkeeping write for an entity whose target-system copy was
// already created. Immutable once enqueued; Mapping stays opaque here
// because only the domain handler knows its shape.
type RetryMessage struct {
	Mapping             json.RawMessage   `json:"mapping"`
	TelemetryAttributes map[string]string `json:"telemetryAttributes"`
	EntityName          string            `json:"entityName"`
}

// DecodeRetryMessage parses the inner Message of a RETRY_CREATE_MAPPING
// envelope.
func DecodeRetryMessage(message string) (RetryMessage, error) {
	var msg RetryMessage
	if err := json.Unmarshal([]byte(message), &msg); err != nil {
		return RetryMessage{}, fmt.Errorf("decode retry message: %w", err)
	}
	if msg.EntityName == "" {
		return RetryMessage{}, fmt.Errorf("decode retry message: missing entityName")
	}
	return msg, nil
}
