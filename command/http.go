package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// HTTP is the native MAGE batch transport. A batch is posted to
// <base>/<app>/<cmd1>,<cmd2>?queryId=<n>; the body is the JSON header list
// followed by one JSON params line per command. The response holds one
// [error, result, events?] triple per command.
type HTTP struct {
	BaseURL string
	App     string
	Client  *http.Client

	preNetwork []func(*http.Request)
	log        *slog.Logger
}

func NewHTTP(baseURL, app string, log *slog.Logger) *HTTP {
	if log == nil {
		log = slog.Default()
	}
	return &HTTP{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		App:     app,
		Client:  http.DefaultClient,
		log:     log.With("component", "command.http"),
	}
}

// OnPreNetwork registers fn to run on every request before it is sent.
func (h *HTTP) OnPreNetwork(fn func(*http.Request)) {
	h.preNetwork = append(h.preNetwork, fn)
}

func (h *HTTP) url(b *Batch) string {
	names := make([]string, len(b.Items))
	for i, item := range b.Items {
		names[i] = url.PathEscape(item.Name)
	}
	q := url.Values{}
	q.Set("queryId", strconv.Itoa(b.QueryID))
	return h.BaseURL + "/" + h.App + "/" + strings.Join(names, ",") + "?" + q.Encode()
}

func (h *HTTP) body(b *Batch) ([]byte, error) {
	header := b.Header
	if header == nil {
		header = []Header{}
	}
	hd, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	lines := make([][]byte, 0, len(b.Items)+1)
	lines = append(lines, hd)
	for _, item := range b.Items {
		lines = append(lines, item.Params)
	}
	return bytes.Join(lines, []byte("\n")), nil
}

func (h *HTTP) Send(ctx context.Context, b *Batch) ([]Response, error) {
	body, err := h.body(b)
	if err != nil {
		return nil, &TransportError{Kind: KindParse, Err: err}
	}
	data, err := post(ctx, h.Client, h.url(b), "text/plain; charset=utf-8", body, h.preNetwork)
	if err != nil {
		return nil, err
	}
	h.log.Debug("response", "queryId", b.QueryID, "bytes", len(data))
	return parseHTTPResponses(data)
}

func post(ctx context.Context, client *http.Client, u, contentType string, body []byte, hooks []func(*http.Request)) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	for _, fn := range hooks {
		fn(req)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Kind: KindNetwork, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := KindNetwork
		if resp.StatusCode == http.StatusServiceUnavailable {
			kind = KindMaintenance
		}
		return nil, &TransportError{
			Kind:   kind,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", strings.TrimSpace(string(data))),
		}
	}
	return data, nil
}

func parseHTTPResponses(data []byte) ([]Response, error) {
	var triples [][]json.RawMessage
	if err := json.Unmarshal(data, &triples); err != nil {
		return nil, &TransportError{Kind: KindParse, Err: err}
	}
	res := make([]Response, len(triples))
	for i, t := range triples {
		if len(t) == 0 {
			res[i].Err = ErrNoResponse
			continue
		}
		if !isNull(t[0]) {
			res[i].Err = parseError(t[0])
		} else if len(t) > 1 {
			res[i].Result = t[1]
		}
		if len(t) > 2 && !isNull(t[2]) {
			res[i].Events = t[2]
		}
	}
	return res, nil
}

// parseError reads a command error, either a bare code or an object with
// code and message.
func parseError(raw json.RawMessage) *Error {
	var code string
	if err := json.Unmarshal(raw, &code); err == nil {
		return &Error{Code: code}
	}
	var obj struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Code != nil {
		return &Error{Code: fmt.Sprint(obj.Code), Message: obj.Message}
	}
	return &Error{Code: string(raw)}
}

func isNull(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) == 0 || string(s) == "null"
}
