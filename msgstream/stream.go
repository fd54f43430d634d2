// Package msgstream receives server messages in order and hands their
// events to an event sink.
//
// Messages are keyed by id. Ids above zero are delivered in ascending order
// without gaps and are confirmed back to the server by the transport; id 0
// carries events which need neither ordering nor confirmation.
package msgstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/mage/mage-sdk-go/debug"
)

var ErrMessages = errors.New("malformed messages")

// Sink receives the event list of each delivered message.
type Sink interface {
	EmitEventList(data json.RawMessage) error
}

// Stream orders incoming messages and tracks the ids to confirm.
type Stream struct {
	sink Sink
	log  *slog.Logger

	// delivering orders emission across AddMessages calls; mu guards
	// the fields below and is never held while the sink runs.
	delivering sync.Mutex

	mu        sync.Mutex
	current   int
	largest   int
	queue     map[int]json.RawMessage
	unordered []json.RawMessage
	confirm   []string
}

func NewStream(sink Sink, log *slog.Logger) *Stream {
	if log == nil {
		log = slog.Default()
	}
	s := &Stream{sink: sink, log: log.With("component", "msgstream")}
	s.reset()
	return s
}

// Reset forgets all queued messages and confirm ids, as when a session
// ends.
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Stream) reset() {
	s.current = -1
	s.largest = -1
	s.queue = map[int]json.RawMessage{}
	s.unordered = nil
	s.confirm = nil
}

// ConfirmIds returns the ids delivered but not yet confirmed.
func (s *Stream) ConfirmIds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.confirm)
}

// CleanConfirmIds drops ids which the server has acknowledged.
func (s *Stream) CleanConfirmIds(ids []string) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirm = slices.DeleteFunc(s.confirm, func(id string) bool {
		return slices.Contains(ids, id)
	})
}

// AddMessages parses a message object {"<id>": [events...], ...}, queues
// its messages and delivers every message which is next in order. Empty
// data is ignored. The sink runs without the stream locked and may call
// Reset, as session handlers do.
func (s *Stream) AddMessages(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var msgs map[string]json.RawMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return fmt.Errorf("%w: %w", ErrMessages, err)
	}
	ids := make(map[int]json.RawMessage, len(msgs))
	for k, v := range msgs {
		id, err := strconv.Atoi(k)
		if err != nil || id < 0 {
			return fmt.Errorf("%w: bad message id %q", ErrMessages, k)
		}
		ids[id] = v
	}

	s.delivering.Lock()
	defer s.delivering.Unlock()
	s.mu.Lock()
	s.add(ids)
	ready := s.process()
	s.mu.Unlock()
	for _, m := range ready {
		s.emit(m.id, m.events)
	}
	return nil
}

type delivery struct {
	id     int
	events json.RawMessage
}

func (s *Stream) add(msgs map[int]json.RawMessage) {
	lowest := -1
	for _, id := range slices.Sorted(maps.Keys(msgs)) {
		if id == 0 {
			s.unordered = append(s.unordered, msgs[0])
			continue
		}
		if id < s.current {
			if debug.Stream() {
				debug.Logf("msgstream: drop %d (current %d)\n", id, s.current)
			}
			continue
		}
		s.largest = max(s.largest, id)
		if lowest == -1 || id < lowest {
			lowest = id
		}
		if _, ok := s.queue[id]; !ok {
			s.queue[id] = msgs[id]
		}
	}
	if s.current == -1 {
		s.current = lowest
	}
}

// process dequeues the messages ready for delivery and marks them for
// confirmation.
func (s *Stream) process() []delivery {
	var ready []delivery
	for s.current != -1 && s.current <= s.largest {
		msg, ok := s.queue[s.current]
		if !ok {
			s.log.Debug("gap in message ids", "waiting", s.current, "largest", s.largest)
			break
		}
		ready = append(ready, delivery{id: s.current, events: msg})
		s.confirm = append(s.confirm, strconv.Itoa(s.current))
		delete(s.queue, s.current)
		s.current++
	}
	for _, msg := range s.unordered {
		ready = append(ready, delivery{events: msg})
	}
	s.unordered = nil
	return ready
}

func (s *Stream) emit(id int, msg json.RawMessage) {
	if debug.Stream() {
		debug.Logf("msgstream: deliver %d %s\n", id, msg)
	}
	if err := s.sink.EmitEventList(msg); err != nil {
		s.log.Error("cannot emit message events", "id", id, "error", err)
	}
}
