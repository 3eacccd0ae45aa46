package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// JobMessage is the wire form of a deferred job. Payload is opaque to the
// broker layer; the worker hands it to the job's handler.
type JobMessage struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	UserID    int64           `json:"userId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewJobMessage(id, jobType string, userID int64, payload json.RawMessage) *JobMessage {
	return &JobMessage{
		ID:        id,
		Type:      jobType,
		UserID:    userID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *JobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// JobMessageFromJSON decodes a delivery body. A message without a type
// cannot be dispatched and is rejected.
func JobMessageFromJSON(data []byte) (*JobMessage, error) {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, errors.New("job message has no type")
	}
	return &msg, nil
}
