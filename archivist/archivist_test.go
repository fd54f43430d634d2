package archivist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mage/mage-sdk-go/events"
	"github.com/mage/mage-sdk-go/vault"
)

type fakeCommander struct {
	mu      sync.Mutex
	calls   []string
	params  []string
	results map[string]string
}

func (f *fakeCommander) Call(_ context.Context, name string, params any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, name)
	f.params = append(f.params, string(d))
	res, ok := f.results[name]
	if !ok {
		return nil, errors.New("no result for " + name)
	}
	return json.RawMessage(res), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTest(results map[string]string) (*Archivist, *fakeCommander, *events.Manager, *clock) {
	fc := &fakeCommander{results: results}
	em := events.NewManager(quietLogger())
	c := &clock{t: time.Unix(1000, 0)}
	a := New(&Config{Commander: fc, Events: em, Log: quietLogger(), Now: c.now})
	return a, fc, em, c
}

func snapshot(t *testing.T, v *vault.Value) string {
	t.Helper()
	if v == nil {
		return "<nil>"
	}
	d, err := json.Marshal(v.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	return string(d)
}

const playerSet = `[["archivist:set", {
	"key": {"topic": "player", "index": {"id": "1"}},
	"value": {"mediaType": "application/x-tome", "data": {"hp": 10, "items": ["a"]}},
	"expirationTime": 2000
}]]`

func TestServerEvents(t *testing.T) {
	a, _, em, _ := newTest(nil)
	var got []string
	for _, tag := range []string{"player:set", "player:applyDiff", "player:touch", "player:del"} {
		a.On(tag, func(v *vault.Value) { got = append(got, tag+" "+snapshot(t, v)) })
	}

	if err := em.EmitEventList(json.RawMessage(playerSet)); err != nil {
		t.Fatal(err)
	}
	v := a.Cache()["player:id=1"]
	if v == nil {
		t.Fatal("value not cached")
	}
	if at, ok := v.ExpiresAt(); !ok || at.Unix() != 2000 {
		t.Errorf("expires at %v %v", at, ok)
	}

	err := em.EmitEventList(json.RawMessage(`[
		["archivist:applyDiff", {"key": {"topic": "player", "index": {"id": "1"}},
			"diff": [{"chain": ["items"], "op": "push", "val": ["b"]}, {"chain": [], "op": "set", "val": {"key": "hp", "val": 9}}]}],
		["archivist:touch", {"key": {"topic": "player", "index": {"id": "1"}}}],
		["archivist:touch", {"key": {"topic": "player", "index": {"id": "2"}}, "expirationTime": 5}],
		["archivist:del", {"key": {"topic": "player", "index": {"id": "1"}}}]
	]`))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		`player:set {"hp":10,"items":["a"]}`,
		`player:applyDiff {"hp":9,"items":["a","b"]}`,
		`player:touch {"hp":9,"items":["a","b"]}`,
		`player:del null`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	if _, ok := v.ExpiresAt(); ok {
		t.Error("touch without expiration should make the value permanent")
	}
	if len(a.Cache()) != 1 {
		t.Errorf("touch of unknown value changed the cache: %v", a.Cache())
	}
}

func TestClose(t *testing.T) {
	a, _, em, _ := newTest(nil)
	a.Close()
	if err := em.EmitEventList(json.RawMessage(playerSet)); err != nil {
		t.Fatal(err)
	}
	if len(a.Cache()) != 0 {
		t.Error("closed archivist handled an event")
	}
}

func TestGet(t *testing.T) {
	a, fc, _, clk := newTest(map[string]string{
		"archivist.rawGet": `{"key": {"topic": "player", "index": {"id": 1}},
			"value": {"mediaType": "application/json", "data": "{\"hp\": 3}"}}`,
	})
	ctx := context.Background()
	index := vault.Index{"id": json.Number("1")}

	v, err := a.Get(ctx, "player", index, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := snapshot(t, v); got != `{"hp":3}` {
		t.Errorf("got %s", got)
	}
	if _, err := a.Get(ctx, "player", index, nil); err != nil {
		t.Fatal(err)
	}
	if len(fc.calls) != 1 {
		t.Errorf("cached value fetched again: %v", fc.calls)
	}
	if fc.params[0] != `{"index":{"id":1},"topic":"player"}` {
		t.Errorf("params %s", fc.params[0])
	}

	clk.t = clk.t.Add(time.Minute)
	if _, err := a.Get(ctx, "player", index, &GetOptions{MaxAge: time.Hour}); err != nil {
		t.Fatal(err)
	}
	if len(fc.calls) != 1 {
		t.Error("value younger than MaxAge fetched again")
	}
	if _, err := a.Get(ctx, "player", index, &GetOptions{MaxAge: time.Second}); err != nil {
		t.Fatal(err)
	}
	if len(fc.calls) != 2 {
		t.Error("value older than MaxAge served from cache")
	}

	a.DeleteCacheItem("player", index)
	if len(a.Cache()) != 0 {
		t.Error("DeleteCacheItem left the value")
	}
}

func TestGetAbsent(t *testing.T) {
	a, _, _, _ := newTest(map[string]string{"archivist.rawGet": `null`})
	ctx := context.Background()
	if _, err := a.Get(ctx, "player", vault.Index{"id": "x"}, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	v, err := a.Get(ctx, "player", vault.Index{"id": "x"}, &GetOptions{Optional: true})
	if err != nil || v != nil {
		t.Errorf("got %v, %v", v, err)
	}
}

func TestMGet(t *testing.T) {
	a, fc, em, _ := newTest(map[string]string{
		"archivist.rawMGet": `[
			{"key": {"topic": "item", "index": {"id": "b"}}, "value": {"mediaType": "text/plain", "data": "bee"}},
			{"key": {"topic": "item", "index": {"id": "c"}}}
		]`,
	})
	if err := em.EmitEventList(json.RawMessage(playerSet)); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	queries := []Query{
		{Topic: "player", Index: vault.Index{"id": "1"}},
		{Topic: "item", Index: vault.Index{"id": "b"}},
		{Topic: "item", Index: vault.Index{"id": "c"}},
		{Topic: "item", Index: vault.Index{"id": "b"}},
	}
	if _, err := a.MGet(ctx, queries, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	vals, err := a.MGet(ctx, queries, &GetOptions{Optional: true})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, v := range vals {
		got = append(got, snapshot(t, v))
	}
	want := []string{`{"hp":10,"items":["a"]}`, `"bee"`, "<nil>", `"bee"`}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
	// b was cached by the first MGet even though it failed on c
	wantParams := `{"options":{"optional":true},"queries":[{"topic":"item","index":{"id":"c"}}]}`
	if fc.params[1] != wantParams {
		t.Errorf("params %s", fc.params[1])
	}

	m, err := a.MGetMap(ctx, map[string]Query{
		"me":   {Topic: "player", Index: vault.Index{"id": "1"}},
		"item": {Topic: "item", Index: vault.Index{"id": "b"}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.calls) != 2 {
		t.Errorf("cached values fetched again: %v", fc.calls)
	}
	if got := snapshot(t, m["item"]); got != `"bee"` {
		t.Errorf("got %s", got)
	}
}

func TestList(t *testing.T) {
	a, fc, _, _ := newTest(map[string]string{
		"archivist.rawList": `[{"id": 1}, {"id": 2}]`,
	})
	got, err := a.List(context.Background(), "player", nil, &ListOptions{Chunk: []int{0, 2}})
	if err != nil {
		t.Fatal(err)
	}
	want := []vault.Index{{"id": json.Number("1")}, {"id": json.Number("2")}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("list (-want +got):\n%s", diff)
	}
	if fc.params[0] != `{"options":{"chunk":[0,2]},"partialIndex":{},"topic":"player"}` {
		t.Errorf("params %s", fc.params[0])
	}
}
