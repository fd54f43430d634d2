package msgstream

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mage/mage-sdk-go/debug"
)

// WebSocket receives messages over a websocket connection. After each
// message the delivered ids are confirmed with a text frame holding the
// comma separated ids. A dropped connection is redialled after
// ErrorInterval.
type WebSocket struct {
	Stream        *Stream
	Endpoint      *Endpoint
	Dialer        *websocket.Dialer
	ErrorInterval time.Duration
	WriteTimeout  time.Duration

	log *slog.Logger
}

func NewWebSocket(s *Stream, e *Endpoint, log *slog.Logger) *WebSocket {
	if log == nil {
		log = slog.Default()
	}
	return &WebSocket{
		Stream:        s,
		Endpoint:      e,
		Dialer:        websocket.DefaultDialer,
		ErrorInterval: DefaultErrorInterval,
		WriteTimeout:  10 * time.Second,
		log:           log.With("component", "msgstream", "transport", "websocket"),
	}
}

func (w *WebSocket) Name() string { return "websocket" }

// Run connects while the endpoint has a session and reconnects when the
// session key changes. It returns ctx.Err() once ctx is done.
func (w *WebSocket) Run(ctx context.Context) error {
	for {
		sctx, cancel, err := w.Endpoint.await(ctx)
		if err != nil {
			return err
		}
		err = w.session(sctx)
		stale := sctx.Err() != nil
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if stale {
				continue
			}
			w.log.Warn("connection failed", "error", err)
		}
		if err := sleep(ctx, w.ErrorInterval); err != nil {
			return err
		}
	}
}

func (w *WebSocket) url() string {
	u := w.Endpoint.URL("websocket", nil)
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// session runs one connection until it fails or ctx is done.
func (w *WebSocket) session(ctx context.Context) error {
	ws, _, err := w.Dialer.DialContext(ctx, w.url(), w.Endpoint.Header())
	if err != nil {
		return err
	}
	defer ws.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	w.log.Debug("connected")
	for {
		typ, msg, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if typ != websocket.TextMessage {
			continue
		}
		if debug.Stream() {
			debug.Logf("msgstream: websocket <- %s\n", msg)
		}
		if err := w.Stream.AddMessages(msg); err != nil {
			w.log.Error("bad messages", "error", err)
			continue
		}
		ids := w.Stream.ConfirmIds()
		if len(ids) == 0 {
			continue
		}
		ws.SetWriteDeadline(time.Now().Add(w.WriteTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, []byte(strings.Join(ids, ","))); err != nil {
			return err
		}
		w.Stream.CleanConfirmIds(ids)
	}
}
