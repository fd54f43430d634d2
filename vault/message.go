package vault

import (
	"encoding/json"
	"fmt"

	"github.com/mage/mage-sdk-go/tome"
)

// Message is the wire form of a vault value as found in archivist events
// and raw command results. Value is nil when the server reports the value
// as deleted or absent.
type Message struct {
	Key            Key       `json:"key"`
	Value          *Payload  `json:"value,omitempty"`
	ExpirationTime *int64    `json:"expirationTime,omitempty"`
	Diff           []tome.Op `json:"diff,omitempty"`
}

type Payload struct {
	MediaType      string          `json:"mediaType"`
	Data           json.RawMessage `json:"data"`
	ExpirationTime *int64          `json:"expirationTime,omitempty"`
}

// ParseMessage decodes one vault message. Numbers in index values and diff
// operands are kept exact.
func ParseMessage(d []byte) (*Message, error) {
	var m Message
	if err := decodeJSON(d, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMessage, err)
	}
	if m.Key.Topic == "" {
		return nil, fmt.Errorf("%w: missing key topic", ErrMessage)
	}
	return &m, nil
}

// ParseMessages decodes a JSON array of vault messages.
func ParseMessages(d []byte) ([]*Message, error) {
	var raws []json.RawMessage
	if err := decodeJSON(d, &raws); err != nil {
		return nil, fmt.Errorf("%w: expected a list: %w", ErrMessage, err)
	}
	res := make([]*Message, 0, len(raws))
	for _, raw := range raws {
		m, err := ParseMessage(raw)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

// Expiration returns the expiration time of m: the top level one when set,
// otherwise that of the payload.
func (m *Message) Expiration() *int64 {
	if m.ExpirationTime != nil {
		return m.ExpirationTime
	}
	if m.Value != nil {
		return m.Value.ExpirationTime
	}
	return nil
}
