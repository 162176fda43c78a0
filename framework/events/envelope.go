package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope сериализуемое представление события для внешних брокеров
type Envelope struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Metadata    EventMetadata   `json:"metadata,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Marshal сериализует событие в JSON envelope
func Marshal(event Event) ([]byte, error) {
	env := Envelope{
		EventID:     event.EventID(),
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Metadata:    event.Metadata(),
	}

	if ee, ok := event.(*EntityEvent); ok && ee.Payload != nil {
		payload, err := json.Marshal(ee.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload of %s: %w", event.EventType(), err)
		}
		env.Payload = payload
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", event.EventID(), err)
	}
	return data, nil
}

// Unmarshal восстанавливает envelope из JSON
func Unmarshal(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &env, nil
}
