package amqp

import "testing"

func TestCollectionChangedMessageRoundTrip(t *testing.T) {
	msg := NewCollectionChangedMessage("expenses", "instance-1")
	if msg.Timestamp.IsZero() {
		t.Fatalf("timestamp not set")
	}

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := CollectionChangedMessageFromJSON(body)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Collection != "expenses" || got.Origin != "instance-1" {
		t.Fatalf("round trip lost fields: %+v", got)
	}
}

func TestCollectionChangedMessageFromJSONRejectsGarbage(t *testing.T) {
	if _, err := CollectionChangedMessageFromJSON([]byte("{not json")); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
