package msgstream

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Endpoint locates the message stream of a server. The session key is set
// once a session is acquired and cleared when it ends.
type Endpoint struct {
	BaseURL  string
	Username string
	Password string

	mu      sync.Mutex
	session string
	changed chan struct{}
}

const streamPath = "msgstream"

func NewEndpoint(baseURL, username, password string) *Endpoint {
	return &Endpoint{BaseURL: strings.TrimSuffix(baseURL, "/"), Username: username, Password: password}
}

// SetSession sets the session key; an empty key ends the session.
// Transports waiting in await are woken when the key changes.
func (e *Endpoint) SetSession(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if key == e.session {
		return
	}
	e.session = key
	if e.changed != nil {
		close(e.changed)
		e.changed = nil
	}
}

func (e *Endpoint) watch() (string, <-chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.changed == nil {
		e.changed = make(chan struct{})
	}
	return e.session, e.changed
}

// await blocks until there is a session and returns a context which is
// cancelled when the session key changes or the session ends.
func (e *Endpoint) await(ctx context.Context) (context.Context, context.CancelFunc, error) {
	for {
		key, changed := e.watch()
		if key != "" {
			sctx, cancel := context.WithCancel(ctx)
			go func() {
				select {
				case <-changed:
					cancel()
				case <-sctx.Done():
				}
			}()
			return sctx, cancel, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-changed:
		}
	}
}

func (e *Endpoint) Session() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// URL returns the stream URL for transport with the given ids to confirm.
func (e *Endpoint) URL(transport string, confirmIds []string) string {
	q := url.Values{}
	q.Set("transport", transport)
	if s := e.Session(); s != "" {
		q.Set("sessionKey", s)
	}
	if len(confirmIds) > 0 {
		q.Set("confirmIds", strings.Join(confirmIds, ","))
	}
	return e.BaseURL + "/" + streamPath + "?" + q.Encode()
}

// Header returns the request headers: basic authentication when
// credentials are configured.
func (e *Endpoint) Header() http.Header {
	h := http.Header{}
	if e.Username != "" || e.Password != "" {
		r := &http.Request{Header: h}
		r.SetBasicAuth(e.Username, e.Password)
	}
	return h
}
