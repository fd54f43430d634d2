package command

import (
	"encoding/json"
	"fmt"
)

// Callback receives the result of one command. Exactly one of result and
// err is set.
type Callback func(result json.RawMessage, err error)

// Item is one queued command.
type Item struct {
	Name   string
	Params json.RawMessage
	cb     Callback
}

// Header is one batch header, such as the session credentials.
type Header struct {
	Name string `json:"name"`
	Key  string `json:"key,omitempty"`
}

// Batch is the unit of transmission: commands queued together and sent in
// one request identified by QueryID.
type Batch struct {
	QueryID int
	Header  []Header
	Items   []*Item
}

// SetHeader replaces or adds the header called name.
func (b *Batch) SetHeader(name, key string) {
	for i := range b.Header {
		if b.Header[i].Name == name {
			b.Header[i].Key = key
			return
		}
	}
	b.Header = append(b.Header, Header{Name: name, Key: key})
}

func (b *Batch) queue(name string, params any, cb Callback) error {
	if params == nil {
		params = map[string]any{}
	}
	d, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("command %s: %w", name, err)
	}
	b.Items = append(b.Items, &Item{Name: name, Params: d, cb: cb})
	return nil
}

// Response is the outcome of one command of a batch as read by a
// transport. Events holds the event list piggy-backed on the response.
type Response struct {
	Result json.RawMessage
	Err    error
	Events json.RawMessage
}
