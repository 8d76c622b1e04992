package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// ChatMessage is one entry of a trip chat.
type ChatMessage struct {
	ID         string
	BusID      string
	TripID     string
	SenderID   string
	SenderRole Role
	SenderName string
	Message    string
	ImageURL   string
	CreatedAt  time.Time
	Status     MessageStatus
}

type chatMessageJSON struct {
	ID         string        `json:"_id,omitempty"`
	BusID      string        `json:"busId"`
	TripID     string        `json:"tripId"`
	SenderID   string        `json:"senderId"`
	SenderRole Role          `json:"senderRole"`
	SenderName string        `json:"senderName"`
	Message    string        `json:"message"`
	ImageURL   string        `json:"imageUrl,omitempty"`
	CreatedAt  string        `json:"createdAt,omitempty"`
	Status     MessageStatus `json:"status,omitempty"`
}

func (m ChatMessage) MarshalJSON() ([]byte, error) {
	out := chatMessageJSON{
		ID:         m.ID,
		BusID:      m.BusID,
		TripID:     m.TripID,
		SenderID:   m.SenderID,
		SenderRole: m.SenderRole,
		SenderName: m.SenderName,
		Message:    m.Message,
		ImageURL:   m.ImageURL,
		Status:     m.Status,
	}
	if !m.CreatedAt.IsZero() {
		out.CreatedAt = m.CreatedAt.UTC().Format(TimeLayout)
	}
	return json.Marshal(out)
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var aux struct {
		ObjectID   flexString `json:"_id"`
		AltID      flexString `json:"id"`
		BusID      Ref        `json:"busId"`
		TripID     Ref        `json:"tripId"`
		SenderID   Ref        `json:"senderId"`
		SenderRole string     `json:"senderRole"`
		SenderName string     `json:"senderName"`
		Message    string     `json:"message"`
		ImageURL   string     `json:"imageUrl"`
		CreatedAt  Timestamp  `json:"createdAt"`
		Status     string     `json:"status"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = ChatMessage{
		ID:         string(aux.ObjectID),
		BusID:      aux.BusID.Key(),
		TripID:     aux.TripID.Key(),
		SenderID:   aux.SenderID.Key(),
		SenderRole: ParseRole(aux.SenderRole),
		SenderName: aux.SenderName,
		Message:    aux.Message,
		ImageURL:   aux.ImageURL,
		CreatedAt:  time.Time(aux.CreatedAt),
		Status:     MessageStatus(strings.ToLower(aux.Status)),
	}
	if m.ID == "" {
		m.ID = string(aux.AltID)
	}
	if m.SenderName == "" {
		m.SenderName = aux.SenderID.Name
	}
	return nil
}

// SendMessageRequest is the body of POST /chats/{busId}/{tripId}.
type SendMessageRequest struct {
	SenderID   string `json:"senderId"`
	SenderRole Role   `json:"senderRole"`
	SenderName string `json:"senderName"`
	Message    string `json:"message"`
	ImageURL   string `json:"imageUrl,omitempty"`
}

// TimeLayout is the wire format of timestamps: RFC3339 with milliseconds.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp decodes an RFC3339 string or epoch milliseconds.
type Timestamp time.Time

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*t = Timestamp{}
			return nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			*t = Timestamp(time.UnixMilli(ms))
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		*t = Timestamp(parsed)
		return nil
	}
	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	*t = Timestamp(time.UnixMilli(int64(ms)))
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	tt := time.Time(t)
	if tt.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(tt.UTC().Format(TimeLayout))
}
