package msgstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mage/mage-sdk-go/debug"
)

// Transport feeds a Stream until its context is done.
type Transport interface {
	Run(ctx context.Context) error
}

// HTTPError is returned for poll responses with a non 2xx status.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("message stream: http status %d", e.Status)
}

// Polling receives messages with repeated HTTP GET requests. A long poll
// is issued again as soon as the previous one returns; a short poll waits
// Interval between requests. After a failed request the next one waits
// ErrorInterval.
type Polling struct {
	Stream        *Stream
	Endpoint      *Endpoint
	Client        *http.Client
	Interval      time.Duration
	ErrorInterval time.Duration

	name string
	log  *slog.Logger
}

const DefaultErrorInterval = 5 * time.Second

func NewLongPolling(s *Stream, e *Endpoint, log *slog.Logger) *Polling {
	return newPolling("longpolling", s, e, 0, log)
}

func NewShortPolling(s *Stream, e *Endpoint, interval time.Duration, log *slog.Logger) *Polling {
	return newPolling("shortpolling", s, e, interval, log)
}

func newPolling(name string, s *Stream, e *Endpoint, interval time.Duration, log *slog.Logger) *Polling {
	if log == nil {
		log = slog.Default()
	}
	return &Polling{
		Stream:        s,
		Endpoint:      e,
		Client:        http.DefaultClient,
		Interval:      interval,
		ErrorInterval: DefaultErrorInterval,
		name:          name,
		log:           log.With("component", "msgstream", "transport", name),
	}
}

func (p *Polling) Name() string { return p.name }

// Run polls until ctx is done and then returns ctx.Err(). Polling only
// happens while the endpoint has a session; a poll in flight when the
// session changes is abandoned.
func (p *Polling) Run(ctx context.Context) error {
	p.log.Debug("starting")
	defer p.log.Debug("stopped")
	for {
		sctx, cancel, err := p.Endpoint.await(ctx)
		if err != nil {
			return err
		}
		wait := p.Interval
		err = p.poll(sctx)
		stale := sctx.Err() != nil
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if stale {
				continue
			}
			var herr *HTTPError
			if !errors.As(err, &herr) || herr.Status != http.StatusGatewayTimeout {
				p.log.Warn("poll failed", "error", err)
			}
			wait = p.ErrorInterval
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (p *Polling) poll(ctx context.Context) error {
	ids := p.Stream.ConfirmIds()
	u := p.Endpoint.URL(p.name, ids)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header = p.Endpoint.Header()
	if debug.Stream() {
		debug.Logf("msgstream: GET %s\n", u)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &HTTPError{Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	p.Stream.CleanConfirmIds(ids)
	return p.Stream.AddMessages(body)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
