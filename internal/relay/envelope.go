package relay

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kinoroom/server/internal/domain"
)

const (
	// StreamRoomEvents carries every relayed viewer event on a single
	// ordered stream, so multi-event bursts (resync) arrive in commit
	// order on every replica.
	StreamRoomEvents = "events:room"
	// StreamLifecycle carries upstream room lifecycle notifications.
	StreamLifecycle = "events:lifecycle"
)

// Envelope is the durable cross-process copy of a relayable event plus
// its correlation metadata.
type Envelope struct {
	EventType      string          `json:"event_type"`
	RoomId         string          `json:"room_id"`
	InstanceId     string          `json:"instance_id"`
	ExcludedConnId string          `json:"excluded_connection_id,omitempty"`
	Attempt        int             `json:"attempt"`
	Payload        json.RawMessage `json:"payload"`
}

func NewEnvelope(event domain.Event, instanceId, excludedConnId string) (*Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &Envelope{
		EventType:      event.EventType(),
		RoomId:         event.EventRoomId(),
		InstanceId:     instanceId,
		ExcludedConnId: excludedConnId,
		Payload:        payload,
	}, nil
}

func (e *Envelope) Event() (domain.Event, error) {
	return domain.UnmarshalEvent(e.EventType, e.Payload)
}

// Values flattens the envelope into broker stream values.
func (e *Envelope) Values() map[string]any {
	return map[string]any{
		"event_type":             e.EventType,
		"room_id":                e.RoomId,
		"instance_id":            e.InstanceId,
		"excluded_connection_id": e.ExcludedConnId,
		"attempt":                e.Attempt,
		"payload":                string(e.Payload),
	}
}

func envelopeFromValues(values map[string]any) (*Envelope, error) {
	env := Envelope{}

	var ok bool
	if env.EventType, ok = values["event_type"].(string); !ok {
		return nil, fmt.Errorf("message has no event_type")
	}
	env.RoomId, _ = values["room_id"].(string)
	env.InstanceId, _ = values["instance_id"].(string)
	env.ExcludedConnId, _ = values["excluded_connection_id"].(string)
	if attempt, ok := values["attempt"].(string); ok {
		env.Attempt, _ = strconv.Atoi(attempt)
	}
	if payload, ok := values["payload"].(string); ok {
		env.Payload = json.RawMessage(payload)
	}

	return &env, nil
}
