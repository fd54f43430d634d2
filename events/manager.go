package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mage/mage-sdk-go/debug"
)

var ErrEventList = errors.New("malformed event list")

// Manager is the emitter of server events. Event data is passed on as the
// raw JSON it arrived as; it is nil for events without data.
type Manager struct {
	Emitter[json.RawMessage]
	log *slog.Logger

	taps hook
}

type hook struct {
	mu  sync.Mutex
	fns []func(string, json.RawMessage)
}

func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{log: log.With("component", "events")}
}

// Tap registers fn to see every event of an event list before its tag's
// handlers run. Taps cannot be removed.
func (m *Manager) Tap(fn func(tag string, data json.RawMessage)) {
	m.taps.mu.Lock()
	defer m.taps.mu.Unlock()
	m.taps.fns = append(m.taps.fns, fn)
}

func (m *Manager) tapped() []func(string, json.RawMessage) {
	m.taps.mu.Lock()
	defer m.taps.mu.Unlock()
	return m.taps.fns
}

// EmitEventList emits each event of a list [[tag, data?], ...] in order.
// Entries without a string tag or with more than two elements are logged
// and skipped. An error is returned only when data is not a list.
func (m *Manager) EmitEventList(data json.RawMessage) error {
	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("%w: %w", ErrEventList, err)
	}
	for i, raw := range list {
		tag, ev, err := parseEvent(raw)
		if err != nil {
			m.log.Error("invalid event format", "index", i, "event", string(raw), "error", err)
			continue
		}
		if debug.Events() {
			debug.Logf("events: emit %s %s\n", tag, ev)
		}
		m.log.Debug("emitting", "tag", tag)
		for _, fn := range m.tapped() {
			fn(tag, ev)
		}
		m.Emit(tag, ev)
	}
	return nil
}

func parseEvent(raw json.RawMessage) (string, json.RawMessage, error) {
	var item []json.RawMessage
	if err := json.Unmarshal(raw, &item); err != nil {
		return "", nil, err
	}
	if len(item) == 0 || len(item) > 2 {
		return "", nil, fmt.Errorf("%w: %d elements", ErrEventList, len(item))
	}
	var tag string
	if err := json.Unmarshal(item[0], &tag); err != nil {
		return "", nil, fmt.Errorf("%w: tag: %w", ErrEventList, err)
	}
	if len(item) == 1 || bytes.Equal(bytes.TrimSpace(item[1]), []byte("null")) {
		return tag, nil, nil
	}
	return tag, item[1], nil
}
