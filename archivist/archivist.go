// Package archivist keeps a client side cache of vault values.
//
// Values enter the cache from archivist server events (archivist:set,
// archivist:del, archivist:touch and archivist:applyDiff) and from the raw
// read commands issued by Get, MGet and MGetMap on a cache miss. Every
// change to a cached value is re-emitted on the Archivist as
// "<topic>:<event>" with the value, for example "player:applyDiff".
package archivist

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/mage/mage-sdk-go/events"
	"github.com/mage/mage-sdk-go/vault"
)

// Commander sends one command and waits for its result; *command.Center
// implements it.
type Commander interface {
	Call(ctx context.Context, name string, params any) (json.RawMessage, error)
}

type Config struct {
	Commander Commander
	// Events, when set, is subscribed to the archivist server events.
	Events *events.Manager
	Log    *slog.Logger
	Now    func() time.Time
}

type Archivist struct {
	events.Emitter[*vault.Value]

	cmd Commander
	log *slog.Logger
	now func() time.Time

	mu    sync.Mutex
	cache map[string]*vault.Value

	manager *events.Manager
	subs    map[string]events.Subscription
}

func New(cfg *Config) *Archivist {
	a := &Archivist{
		cmd:   cfg.Commander,
		log:   cfg.Log,
		now:   cfg.Now,
		cache: map[string]*vault.Value{},
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	a.log = a.log.With("component", "archivist")
	if a.now == nil {
		a.now = time.Now
	}
	if cfg.Events != nil {
		a.Listen(cfg.Events)
	}
	return a
}

// Listen subscribes a to the archivist events of m, replacing any earlier
// subscription.
func (a *Archivist) Listen(m *events.Manager) {
	a.Close()
	handlers := map[string]func(*vault.Message) error{
		"archivist:set":       a.setOrDel,
		"archivist:del":       func(msg *vault.Message) error { return a.del(msg.Key) },
		"archivist:touch":     a.touch,
		"archivist:applyDiff": a.applyDiff,
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.manager = m
	a.subs = map[string]events.Subscription{}
	for tag, fn := range handlers {
		a.subs[tag] = m.On(tag, func(data json.RawMessage) {
			msg, err := vault.ParseMessage(data)
			if err != nil {
				a.log.Error("invalid event", "tag", tag, "error", err)
				return
			}
			if err := fn(msg); err != nil {
				a.log.Error("event not applied", "tag", tag, "key", msg.Key.String(), "error", err)
			}
		})
	}
}

// Close unsubscribes from server events.
func (a *Archivist) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.manager == nil {
		return
	}
	for tag, s := range a.subs {
		a.manager.Off(tag, s)
	}
	a.manager = nil
	a.subs = nil
}

// Cache returns a copy of the cache, by cache key.
func (a *Archivist) Cache() map[string]*vault.Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.cache)
}

func (a *Archivist) ClearCache() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.cache)
}

func (a *Archivist) DeleteCacheItem(topic string, index vault.Index) {
	a.DeleteCacheKey(vault.CacheKey(topic, index))
}

func (a *Archivist) DeleteCacheKey(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log.Debug("deleting cache item", "key", key)
	delete(a.cache, key)
}

// cached returns the cached value for key when it holds data, has not
// expired and is not older than maxAge. A zero maxAge accepts any age.
func (a *Archivist) cached(key string, maxAge time.Duration) *vault.Value {
	a.mu.Lock()
	v := a.cache[key]
	a.mu.Unlock()
	if v == nil || v.Document() == nil || v.Expired(a.now()) {
		return nil
	}
	if maxAge > 0 && v.Age() > maxAge {
		return nil
	}
	return v
}

func (a *Archivist) lookup(key vault.Key) *vault.Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cache[key.String()]
}

func (a *Archivist) setOrDel(msg *vault.Message) error {
	if msg.Value == nil {
		return a.del(msg.Key)
	}
	return a.set(msg)
}

func (a *Archivist) set(msg *vault.Message) error {
	ck := msg.Key.String()
	a.mu.Lock()
	v := a.cache[ck]
	if v == nil {
		v = vault.NewValue(msg.Key.Topic, msg.Key.Index, vault.WithLogger(a.log), vault.WithClock(a.now))
		a.cache[ck] = v
	}
	a.mu.Unlock()

	if err := v.SetData(msg.Value.MediaType, msg.Value.Data); err != nil {
		return err
	}
	v.Touch(msg.Expiration())
	a.Emit(msg.Key.Topic+":set", v)
	return nil
}

func (a *Archivist) del(key vault.Key) error {
	v := a.lookup(key)
	if v == nil {
		a.log.Warn("could not delete value (doesn't exist)", "key", key.String())
		return nil
	}
	v.Del()
	a.Emit(key.Topic+":del", v)
	return nil
}

func (a *Archivist) touch(msg *vault.Message) error {
	v := a.lookup(msg.Key)
	if v == nil {
		a.log.Warn("could not touch value (doesn't exist)", "key", msg.Key.String())
		return nil
	}
	v.Touch(msg.Expiration())
	a.Emit(msg.Key.Topic+":touch", v)
	return nil
}

func (a *Archivist) applyDiff(msg *vault.Message) error {
	v := a.lookup(msg.Key)
	if v == nil {
		a.log.Warn("got a diff for a non-existent value", "key", msg.Key.String())
		return nil
	}
	if err := v.ApplyDiff(msg.Diff); err != nil {
		return err
	}
	v.Touch(msg.Expiration())
	a.Emit(msg.Key.Topic+":applyDiff", v)
	return nil
}
