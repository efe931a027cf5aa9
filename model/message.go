package model

import "encoding/json"

// MessageType discriminates the socket protocol's message union. Every
// wire message is one JSON object with a "type" field followed by a
// newline.
type MessageType string

const (
	MessageInitialState MessageType = "initial_state"
	MessageSample       MessageType = "sample"
	MessageLog          MessageType = "log"
)

// InitialStateMessage is sent once per connection, immediately on accept,
// before any SampleMessage.
type InitialStateMessage struct {
	Type         MessageType   `json:"type"`
	Samples      []SampleBatch `json:"samples"`
	SampleCount  int           `json:"sample_count"`
}

// NewInitialStateMessage builds an InitialStateMessage from the ring
// buffer's frozen window.
func NewInitialStateMessage(samples []SampleBatch) InitialStateMessage {
	return InitialStateMessage{
		Type:        MessageInitialState,
		Samples:     samples,
		SampleCount: len(samples),
	}
}

// SampleMessage carries one enriched SampleBatch, sent every tick.
type SampleMessage struct {
	Type  MessageType `json:"type"`
	Batch SampleBatch `json:"-"`
}

// MarshalJSON flattens SampleMessage so the wire object is the batch's own
// fields plus a "type" discriminant. Clients see one flat object per
// sample line, not a nested "batch" key.
func (m SampleMessage) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(m.Batch)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	typeJSON, err := json.Marshal(MessageSample)
	if err != nil {
		return nil, err
	}
	fields["type"] = typeJSON
	return json.Marshal(fields)
}

// NewSampleMessage wraps a batch for a single broadcast.
func NewSampleMessage(b SampleBatch) SampleMessage {
	return SampleMessage{Type: MessageSample, Batch: b}
}

// LogMessage is sent client→server at will and merged into the daemon's
// structured log.
type LogMessage struct {
	Type    MessageType       `json:"type"`
	Source  string            `json:"source"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}
