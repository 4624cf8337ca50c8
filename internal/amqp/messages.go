package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MaxAttempts bounds how many times a mirror sync is retried through the
// queue before the message is dropped. The reconcile processor picks up
// whatever is still unmirrored afterwards.
const MaxAttempts = 5

// MirrorSyncMessage asks a worker to re-run the sync of one allocation.
// Only the id travels; the worker reloads the allocation from the store.
type MirrorSyncMessage struct {
	AllocationID string    `json:"allocation_id"`
	Reason       string    `json:"reason,omitempty"`
	Attempt      int       `json:"attempt"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewMirrorSyncMessage creates a first-attempt sync message.
func NewMirrorSyncMessage(allocationID, reason string) *MirrorSyncMessage {
	return &MirrorSyncMessage{
		AllocationID: allocationID,
		Reason:       reason,
		Timestamp:    time.Now(),
	}
}

// Retry returns a copy scheduled for the next attempt.
func (m *MirrorSyncMessage) Retry(reason string) *MirrorSyncMessage {
	return &MirrorSyncMessage{
		AllocationID: m.AllocationID,
		Reason:       reason,
		Attempt:      m.Attempt + 1,
		Timestamp:    time.Now(),
	}
}

// Exhausted reports whether no further retry is allowed.
func (m *MirrorSyncMessage) Exhausted() bool {
	return m.Attempt+1 >= MaxAttempts
}

// ToJSON converts the message to JSON bytes
func (m *MirrorSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MirrorSyncMessageFromJSON creates a message from JSON bytes
func MirrorSyncMessageFromJSON(data []byte) (*MirrorSyncMessage, error) {
	var msg MirrorSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.AllocationID == "" {
		return nil, errors.New("mirror sync message without allocation_id")
	}
	if msg.Attempt < 0 {
		return nil, fmt.Errorf("mirror sync message with negative attempt %d", msg.Attempt)
	}
	return &msg, nil
}
