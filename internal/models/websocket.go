package models

import "encoding/json"

type EventName string

const (
	EventJoinChat          EventName = "join-chat"
	EventChatMessage       EventName = "chat-message"
	EventTypingStart       EventName = "typing-start"
	EventTypingStop        EventName = "typing-stop"
	EventBusLocationUpdate EventName = "busLocationUpdate"
)

// Envelope is the frame exchanged over the real-time channel.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload as the data of an envelope for event.
func NewEnvelope(event EventName, payload interface{}) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return env, err
	}
	env.Data = data
	return env, nil
}

type JoinChat struct {
	BusID  string `json:"busId"`
	TripID string `json:"tripId"`
}

// DecodeUserID reads the payload of a typing event: a bare user id, or an
// object carrying userId.
func DecodeUserID(data json.RawMessage) string {
	var id flexString
	if err := json.Unmarshal(data, &id); err == nil {
		return string(id)
	}
	var aux struct {
		UserID Ref `json:"userId"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return ""
	}
	return aux.UserID.Key()
}
