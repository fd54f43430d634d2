// Package mage wires the SDK components into a client for one MAGE app.
//
// A Client owns the event manager, the command center and its transport,
// the message stream with its transport and the archivist. It follows the
// session events of the server: session.set attaches the session key to
// commands and to the message stream, session.unset removes it.
package mage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mage/mage-sdk-go/archivist"
	"github.com/mage/mage-sdk-go/command"
	"github.com/mage/mage-sdk-go/events"
	"github.com/mage/mage-sdk-go/msgstream"
)

type Client struct {
	Config    *Config
	Events    *events.Manager
	Commands  *command.Center
	Endpoint  *msgstream.Endpoint
	Stream    *msgstream.Stream
	Archivist *archivist.Archivist

	transport msgstream.Transport
	log       *slog.Logger

	mu      sync.Mutex
	session Session
}

// Session is the state announced by the session.set event.
type Session struct {
	Key     string `json:"key"`
	ActorID string `json:"actorId"`
}

// New validates cfg and builds a client. Nothing is sent until a command
// is issued or Run is called.
func New(cfg *Config, log *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		Config: cfg,
		Events: events.NewManager(log),
		log:    log.With("component", "mage"),
	}

	httpClient := &http.Client{Timeout: cfg.Command.Timeout}
	var tr command.Transport
	switch cfg.Command.Transport {
	case TransportJSONRPC:
		j := command.NewJSONRPC(cfg.BaseURL, cfg.App, log)
		j.Client = httpClient
		j.OnPreNetwork(c.applyHeaders)
		tr = j
	default:
		h := command.NewHTTP(cfg.BaseURL, cfg.App, log)
		h.Client = httpClient
		h.OnPreNetwork(c.applyHeaders)
		tr = h
	}
	c.Commands = command.NewCenter(tr, c.Events, command.WithLogger(log))

	c.Endpoint = msgstream.NewEndpoint(cfg.BaseURL, cfg.Username, cfg.Password)
	c.Stream = msgstream.NewStream(c.Events, log)
	switch cfg.Stream.Transport {
	case StreamLongPolling:
		p := msgstream.NewLongPolling(c.Stream, c.Endpoint, log)
		p.ErrorInterval = cfg.Stream.ErrorInterval
		c.transport = p
	case StreamShortPolling:
		p := msgstream.NewShortPolling(c.Stream, c.Endpoint, cfg.Stream.Interval, log)
		p.ErrorInterval = cfg.Stream.ErrorInterval
		c.transport = p
	case StreamWebSocket:
		w := msgstream.NewWebSocket(c.Stream, c.Endpoint, log)
		w.ErrorInterval = cfg.Stream.ErrorInterval
		c.transport = w
	}

	c.Archivist = archivist.New(&archivist.Config{
		Commander: c.Commands,
		Events:    c.Events,
		Log:       log,
	})

	c.Events.On("session.set", c.onSessionSet)
	c.Events.On("session.unset", c.onSessionUnset)
	return c, nil
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, v := range c.Config.Headers {
		r.Header.Set(k, v)
	}
	if c.Config.Username != "" || c.Config.Password != "" {
		r.SetBasicAuth(c.Config.Username, c.Config.Password)
	}
}

func (c *Client) onSessionSet(data json.RawMessage) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil || s.Key == "" {
		c.log.Error("invalid session.set event", "data", string(data), "error", err)
		return
	}
	c.mu.Lock()
	changed := c.session.Key != "" && c.session.Key != s.Key
	c.session = s
	c.mu.Unlock()

	c.Commands.SetHeader(command.SessionHeader, s.Key)
	c.Endpoint.SetSession(s.Key)
	if changed {
		c.Stream.Reset()
	}
	c.log.Info("session set", "actorId", s.ActorID)
}

func (c *Client) onSessionUnset(data json.RawMessage) {
	c.mu.Lock()
	c.session = Session{}
	c.mu.Unlock()

	c.Commands.DelHeader(command.SessionHeader)
	c.Endpoint.SetSession("")
	c.Stream.Reset()
	c.log.Info("session unset", "reason", string(data))
}

// Session returns the current session; its Key is empty when there is
// none.
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Call sends a user command and waits for its result.
func (c *Client) Call(ctx context.Context, name string, params any) (json.RawMessage, error) {
	return c.Commands.Call(ctx, name, params)
}

// Run receives the message stream until ctx is done. With the stream
// transport set to none it only waits for ctx.
func (c *Client) Run(ctx context.Context) error {
	if c.transport == nil {
		<-ctx.Done()
		return nil
	}
	err := c.transport.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Client) Close() {
	c.Archivist.Close()
	c.Commands.Close()
}
