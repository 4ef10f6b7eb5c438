package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventUserRegistered  = "user.registered"
	EventUserDataUpdated = "user_data.updated"
)

// Event is the envelope for every message on the events queue.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

type UserRegisteredPayload struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type UserDataUpdatedPayload struct {
	UserID    int64     `json:"user_id"`
	Key       string    `json:"key"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewEvent(eventType string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   body,
		Timestamp: time.Now().UTC(),
	}, nil
}

func DecodeEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type")
	}
	return ev, nil
}
