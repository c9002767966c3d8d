package amqp

import (
	"encoding/json"
	"time"
)

// CollectionChangedMessage tells peer instances that a collection was
// mutated. It carries no data: receivers re-read their own snapshot,
// which keeps the remote store the single source of truth.
type CollectionChangedMessage struct {
	Collection string    `json:"collection"`
	Origin     string    `json:"origin"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewCollectionChangedMessage creates a change notification for one
// collection, stamped with the publishing instance's id.
func NewCollectionChangedMessage(collection, origin string) *CollectionChangedMessage {
	return &CollectionChangedMessage{
		Collection: collection,
		Origin:     origin,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *CollectionChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CollectionChangedMessageFromJSON parses a change notification.
func CollectionChangedMessageFromJSON(data []byte) (*CollectionChangedMessage, error) {
	var msg CollectionChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
