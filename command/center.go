// Package command sends MAGE user commands to the server.
//
// Commands are queued into a batch. A Center keeps at most one batch in
// flight: the current batch is sent as soon as nothing else is being sent,
// and commands queued meanwhile wait for the in-flight batch to complete.
// A batch whose transmission failed stays in flight until Resend is called,
// so a caller decides when (and whether) to retry.
//
// Progress is reported as events on an events.Manager:
//
//	io.send             a batch was handed to the transport
//	io.resend           the in-flight batch is sent again
//	io.response         the in-flight batch completed
//	io.error.<kind>     transmission failed; kind is network, maintenance or parse
//
// Events piggy-backed on command responses are dispatched with
// events.Manager.EmitEventList before the command callback runs.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/mage/mage-sdk-go/debug"
	"github.com/mage/mage-sdk-go/events"
)

// Transport transmits one batch and returns one Response per item, in
// item order. Failures to transmit or to read the response are reported
// as *TransportError.
type Transport interface {
	Send(ctx context.Context, b *Batch) ([]Response, error)
}

// SessionHeader is the batch header carrying the session key.
const SessionHeader = "mage.session"

type Center struct {
	transport Transport
	events    *events.Manager
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	nextQueryID  int
	current      *Batch
	sending      *Batch
	headers      []Header
	preSerialise []func(*Batch)
}

type Option func(*Center)

func WithLogger(log *slog.Logger) Option {
	return func(c *Center) { c.log = log }
}

// WithContext sets the context bounding all transmissions; it defaults to
// context.Background. Close cancels it.
func WithContext(ctx context.Context) Option {
	return func(c *Center) { c.ctx = ctx }
}

func NewCenter(t Transport, em *events.Manager, opts ...Option) *Center {
	c := &Center{
		transport:   t,
		events:      em,
		log:         slog.Default(),
		ctx:         context.Background(),
		nextQueryID: 1,
		current:     &Batch{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.events == nil {
		c.events = events.NewManager(c.log)
	}
	c.log = c.log.With("component", "command")
	c.ctx, c.cancel = context.WithCancel(c.ctx)
	return c
}

// Close cancels transmissions in progress. Commands sent afterwards fail
// with ErrClosed.
func (c *Center) Close() {
	c.cancel()
}

// OnPreSerialise registers fn to run on every batch just before it is
// handed to the transport. fn must not call back into the Center.
func (c *Center) OnPreSerialise(fn func(*Batch)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preSerialise = append(c.preSerialise, fn)
}

// SetHeader sets a header attached to every batch sent from now on.
func (c *Center) SetHeader(name, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.headers {
		if c.headers[i].Name == name {
			c.headers[i].Key = key
			return
		}
	}
	c.headers = append(c.headers, Header{Name: name, Key: key})
}

func (c *Center) DelHeader(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.headers {
		if c.headers[i].Name == name {
			c.headers = append(c.headers[:i], c.headers[i+1:]...)
			return
		}
	}
}

// Send queues a command and sends the current batch if no batch is in
// flight. cb may be nil.
func (c *Center) Send(name string, params any, cb Callback) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	c.mu.Lock()
	if err := c.current.queue(name, params, cb); err != nil {
		c.mu.Unlock()
		return err
	}
	var b *Batch
	if c.sending == nil {
		b = c.nextBatch()
	}
	c.mu.Unlock()
	if b != nil {
		c.transmit(b, "io.send")
	}
	return nil
}

// PiggyBack queues a command without sending; it goes out with the next
// batch.
func (c *Center) PiggyBack(name string, params any, cb Callback) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.queue(name, params, cb)
}

// Resend transmits the in-flight batch again. It reports false when no
// batch is in flight.
func (c *Center) Resend() bool {
	c.mu.Lock()
	b := c.sending
	c.mu.Unlock()
	if b == nil {
		return false
	}
	c.transmit(b, "io.resend")
	return true
}

// Busy reports whether a batch is in flight.
func (c *Center) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending != nil
}

// Call sends a command and waits for its result.
func (c *Center) Call(ctx context.Context, name string, params any) (json.RawMessage, error) {
	type result struct {
		data json.RawMessage
		err  error
	}
	ch := make(chan result, 1)
	err := c.Send(name, params, func(data json.RawMessage, err error) {
		ch <- result{data, err}
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrClosed
	}
}

// nextBatch moves the current batch in flight. c.mu must be held.
func (c *Center) nextBatch() *Batch {
	if len(c.current.Items) == 0 {
		return nil
	}
	b := c.current
	c.current = &Batch{}
	b.QueryID = c.nextQueryID
	c.nextQueryID++
	b.Header = append([]Header(nil), c.headers...)
	for _, fn := range c.preSerialise {
		fn(b)
	}
	c.sending = b
	return b
}

func (c *Center) transmit(b *Batch, tag string) {
	c.emit(tag, map[string]any{"queryId": b.QueryID, "commands": b.names()})
	if debug.Command() {
		debug.Logf("%s query %d: %v\n", tag, b.QueryID, b.names())
	}
	go c.run(b)
}

func (c *Center) run(b *Batch) {
	resps, err := c.transport.Send(c.ctx, b)
	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		kind := KindNetwork
		status := 0
		var te *TransportError
		if errors.As(err, &te) {
			kind = te.Kind
			status = te.Status
		}
		c.log.Error("batch transmission failed", "queryId", b.QueryID, "kind", kind, "error", err)
		c.emit("io.error."+kind, map[string]any{"queryId": b.QueryID, "status": status, "message": err.Error()})
		return
	}

	c.mu.Lock()
	if c.sending != b {
		// completed by an earlier transmission of the same batch
		c.mu.Unlock()
		return
	}
	c.sending = nil
	next := c.nextBatch()
	c.mu.Unlock()

	c.emit("io.response", map[string]any{"queryId": b.QueryID})
	c.deliver(b, resps)
	if next != nil {
		c.transmit(next, "io.send")
	}
}

func (c *Center) deliver(b *Batch, resps []Response) {
	for i, item := range b.Items {
		var r Response
		if i < len(resps) {
			r = resps[i]
		} else {
			r.Err = ErrNoResponse
		}
		if len(r.Events) != 0 {
			if err := c.events.EmitEventList(r.Events); err != nil {
				c.log.Warn("bad event list in response", "command", item.Name, "error", err)
			}
		}
		if r.Err != nil {
			c.log.Debug("command failed", "command", item.Name, "error", r.Err)
		}
		if item.cb != nil {
			item.cb(r.Result, r.Err)
		}
	}
}

func (c *Center) emit(tag string, v any) {
	d, err := json.Marshal(v)
	if err != nil {
		c.log.Error("encode event", "tag", tag, "error", err)
		return
	}
	c.events.Emit(tag, d)
}

func (b *Batch) names() []string {
	res := make([]string, len(b.Items))
	for i, item := range b.Items {
		res[i] = item.Name
	}
	return res
}
