package vault

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/mage/mage-sdk-go/format"
	"github.com/mage/mage-sdk-go/tome"
)

// Value is one cached vault value: the data of a (topic, index) pair held as
// a tome document, along with its media type and expiry.
type Value struct {
	topic string
	index Index
	log   *slog.Logger
	now   func() time.Time

	mu        sync.Mutex
	mediaType string
	doc       *tome.Document
	writtenAt time.Time
	expiresAt *time.Time
}

type Option func(*Value)

func WithLogger(log *slog.Logger) Option {
	return func(v *Value) {
		v.log = log
	}
}

// WithClock sets the time source used for WrittenAt and expiry.
func WithClock(now func() time.Time) Option {
	return func(v *Value) {
		v.now = now
	}
}

func NewValue(topic string, index Index, opts ...Option) *Value {
	v := &Value{
		topic: topic,
		index: maps.Clone(index),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.log == nil {
		v.log = slog.Default()
	}
	v.log = v.log.With("component", "vault", "key", v.Key().String())
	return v
}

func (v *Value) Topic() string { return v.topic }
func (v *Value) Index() Index  { return maps.Clone(v.index) }
func (v *Value) Key() Key      { return Key{Topic: v.topic, Index: v.index} }

func (v *Value) MediaType() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mediaType
}

// Document returns the document holding the data, or nil when the value
// has no data.
func (v *Value) Document() *tome.Document {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.doc
}

// Data returns the root node of the data, or nil when the value has no
// data.
func (v *Value) Data() tome.Node {
	d := v.Document()
	if d == nil {
		return nil
	}
	return d.Root()
}

// WrittenAt returns when data was last set, diffed or touched.
func (v *Value) WrittenAt() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.writtenAt
}

func (v *Value) ExpiresAt() (time.Time, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.expiresAt == nil {
		return time.Time{}, false
	}
	return *v.expiresAt, true
}

func (v *Value) Expired(now time.Time) bool {
	at, ok := v.ExpiresAt()
	return ok && !now.Before(at)
}

// Age returns the time since the value was written.
func (v *Value) Age() time.Duration {
	return v.now().Sub(v.WrittenAt())
}

// SetData replaces the data of v. String and byte payloads are parsed
// according to mediaType; structured payloads are used as they are. On
// error the previous data is kept.
func (v *Value) SetData(mediaType string, data any) error {
	f, err := format.FromMediaType(mediaType)
	if err != nil {
		return err
	}
	raw, err := decodeData(f, data)
	if err != nil {
		return fmt.Errorf("%s: %w", v.Key(), err)
	}
	doc, err := tome.New(raw, tome.WithLogger(v.log))
	if err != nil {
		return fmt.Errorf("%s: %w", v.Key(), err)
	}

	v.mu.Lock()
	old := v.doc
	v.doc = doc
	v.mediaType = mediaType
	v.writtenAt = v.now()
	v.mu.Unlock()

	if old != nil {
		old.Destroy()
	}
	return nil
}

func decodeData(f format.Format, data any) (any, error) {
	switch d := data.(type) {
	case json.RawMessage:
		x, err := format.JSONFormat.Decode(d)
		if err != nil {
			return nil, err
		}
		if s, ok := x.(string); ok && !f.IsText() {
			return f.Decode([]byte(s))
		}
		return x, nil
	case []byte:
		return f.Decode(d)
	case string:
		return f.Decode([]byte(d))
	}
	return data, nil
}

// Del destroys the data of v.
func (v *Value) Del() {
	v.mu.Lock()
	old := v.doc
	v.doc = nil
	v.mediaType = ""
	v.writtenAt = v.now()
	v.mu.Unlock()

	if old != nil {
		old.Destroy()
	}
}

// Touch sets the expiration time, in seconds since the epoch. A nil
// expirationTime makes the value permanent.
func (v *Value) Touch(expirationTime *int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if expirationTime == nil {
		v.expiresAt = nil
		return
	}
	at := time.Unix(*expirationTime, 0)
	v.expiresAt = &at
}

// ApplyDiff applies a tome diff batch to the data of v, whatever its
// media type: data of every media type is held as a tome.
func (v *Value) ApplyDiff(ops []tome.Op) error {
	v.mu.Lock()
	doc := v.doc
	v.mu.Unlock()

	if doc == nil {
		return fmt.Errorf("%s: %w", v.Key(), ErrNoData)
	}
	if err := doc.ApplyDiff(ops); err != nil {
		return err
	}
	v.mu.Lock()
	v.writtenAt = v.now()
	v.mu.Unlock()
	return nil
}

// Snapshot returns the raw data of v, or nil when it has none.
func (v *Value) Snapshot() any {
	d := v.Document()
	if d == nil {
		return nil
	}
	return d.Snapshot()
}
