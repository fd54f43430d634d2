package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.lsp.dev/jsonrpc2"
)

// JSONRPC sends a batch as a JSON-RPC 2.0 batch request to
// <base>/<app>/jsonrpc. The session travels in the X-MAGE-SESSION header.
// Each result is an object {response, errorCode, myEvents}.
type JSONRPC struct {
	BaseURL string
	App     string
	Client  *http.Client

	preNetwork []func(*http.Request)
	log        *slog.Logger
}

const SessionHTTPHeader = "X-MAGE-SESSION"

func NewJSONRPC(baseURL, app string, log *slog.Logger) *JSONRPC {
	if log == nil {
		log = slog.Default()
	}
	return &JSONRPC{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		App:     app,
		Client:  http.DefaultClient,
		log:     log.With("component", "command.jsonrpc"),
	}
}

func (j *JSONRPC) OnPreNetwork(fn func(*http.Request)) {
	j.preNetwork = append(j.preNetwork, fn)
}

type rpcResult struct {
	Response  json.RawMessage `json:"response"`
	ErrorCode json.RawMessage `json:"errorCode"`
	MyEvents  json.RawMessage `json:"myEvents"`
}

func (j *JSONRPC) Send(ctx context.Context, b *Batch) ([]Response, error) {
	calls := make([]*jsonrpc2.Call, len(b.Items))
	for i, item := range b.Items {
		call, err := jsonrpc2.NewCall(jsonrpc2.NewNumberID(int32(i)), item.Name, item.Params)
		if err != nil {
			return nil, &TransportError{Kind: KindParse, Err: err}
		}
		calls[i] = call
	}
	body, err := json.Marshal(calls)
	if err != nil {
		return nil, &TransportError{Kind: KindParse, Err: err}
	}

	q := url.Values{}
	q.Set("queryId", strconv.Itoa(b.QueryID))
	u := j.BaseURL + "/" + j.App + "/jsonrpc?" + q.Encode()

	hooks := make([]func(*http.Request), 0, len(j.preNetwork)+1)
	for _, h := range b.Header {
		if h.Name == SessionHeader && h.Key != "" {
			key := h.Key
			hooks = append(hooks, func(r *http.Request) { r.Header.Set(SessionHTTPHeader, key) })
		}
	}
	hooks = append(hooks, j.preNetwork...)

	data, err := post(ctx, j.Client, u, "application/json", body, hooks)
	if err != nil {
		return nil, err
	}
	return j.parse(b, data)
}

func (j *JSONRPC) parse(b *Batch, data []byte) ([]Response, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		// a lone response to a single call
		raws = []json.RawMessage{data}
	}
	res := make([]Response, len(b.Items))
	seen := make([]bool, len(b.Items))
	for _, raw := range raws {
		msg, err := jsonrpc2.DecodeMessage(raw)
		if err != nil {
			return nil, &TransportError{Kind: KindParse, Err: err}
		}
		resp, ok := msg.(*jsonrpc2.Response)
		if !ok {
			return nil, &TransportError{Kind: KindParse, Err: fmt.Errorf("unexpected jsonrpc message %T", msg)}
		}
		i := indexOf(resp.ID(), len(b.Items))
		if i < 0 {
			j.log.Warn("response for unknown id", "queryId", b.QueryID, "id", fmt.Sprint(resp.ID()))
			continue
		}
		seen[i] = true
		res[i] = j.response(resp)
	}
	for i := range res {
		if !seen[i] {
			res[i].Err = ErrNoResponse
		}
	}
	return res, nil
}

func (j *JSONRPC) response(resp *jsonrpc2.Response) Response {
	if err := resp.Err(); err != nil {
		var rpcErr *jsonrpc2.Error
		if errors.As(err, &rpcErr) {
			return Response{Err: &Error{Code: strconv.Itoa(int(rpcErr.Code)), Message: rpcErr.Message}}
		}
		return Response{Err: &Error{Code: err.Error()}}
	}
	var r rpcResult
	if err := json.Unmarshal(json.RawMessage(resp.Result()), &r); err != nil {
		return Response{Err: &TransportError{Kind: KindParse, Err: err}}
	}
	out := Response{Result: r.Response}
	if !isNull(r.MyEvents) {
		out.Events = r.MyEvents
	}
	if !isNull(r.ErrorCode) {
		out.Err = parseError(r.ErrorCode)
		out.Result = nil
	}
	return out
}

func indexOf(id jsonrpc2.ID, n int) int {
	for i := range n {
		if id == jsonrpc2.NewNumberID(int32(i)) {
			return i
		}
	}
	return -1
}
