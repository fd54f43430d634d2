package vault

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mage/mage-sdk-go/format"
	"github.com/mage/mage-sdk-go/tome"
)

func TestCacheKey(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		index Index
		want  string
	}{
		{
			name:  "no index",
			topic: "ucResponseMeta",
			want:  "ucResponseMeta",
		},
		{
			name:  "sorted keys",
			topic: "player",
			index: Index{"region": "eu", "id": "7"},
			want:  "player:id=7:region=eu",
		},
		{
			name:  "numbers",
			topic: "inventory",
			index: Index{"slot": json.Number("3"), "actorId": 12},
			want:  "inventory:actorId=12:slot=3",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CacheKey(tc.topic, tc.index); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}

	a := Key{Topic: "player", Index: Index{"id": "7", "region": "eu"}}
	b := Key{Topic: "player", Index: Index{"region": "eu", "id": "7"}}
	if a.String() != b.String() {
		t.Errorf("equivalent indices differ: %q != %q", a, b)
	}
}

func TestIndexMatches(t *testing.T) {
	index := Index{"id": json.Number("7"), "region": "eu"}
	if !index.Matches(Index{"id": 7}) {
		t.Error("numeric partial index did not match")
	}
	if !index.Matches(nil) {
		t.Error("empty partial index did not match")
	}
	if index.Matches(Index{"region": "us"}) {
		t.Error("mismatched value matched")
	}
	if index.Matches(Index{"shard": "1"}) {
		t.Error("missing key matched")
	}
}

func newTestValue(now *time.Time) *Value {
	return NewValue("player", Index{"id": "7"},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return *now }))
}

func TestSetData(t *testing.T) {
	tests := []struct {
		name      string
		mediaType string
		data      any
		want      any
	}{
		{
			name:      "tome string",
			mediaType: format.MediaTome,
			data:      `{"gold":10}`,
			want:      map[string]any{"gold": int64(10)},
		},
		{
			name:      "tome raw string",
			mediaType: format.MediaTome,
			data:      json.RawMessage(`"{\"gold\":10}"`),
			want:      map[string]any{"gold": int64(10)},
		},
		{
			name:      "json raw object",
			mediaType: format.MediaJSON,
			data:      json.RawMessage(`[1,"a"]`),
			want:      []any{int64(1), "a"},
		},
		{
			name:      "structured",
			mediaType: format.MediaJSON,
			data:      map[string]any{"x": []any{true}},
			want:      map[string]any{"x": []any{true}},
		},
		{
			name:      "yaml",
			mediaType: format.MediaYAML,
			data:      "name: bob\nlevel: 3\n",
			want:      map[string]any{"name": "bob", "level": int64(3)},
		},
		{
			name:      "text",
			mediaType: format.MediaText,
			data:      json.RawMessage(`"hello"`),
			want:      "hello",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			now := time.Unix(1000, 0)
			v := newTestValue(&now)
			if err := v.SetData(tc.mediaType, tc.data); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, v.Snapshot()); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}
			if v.MediaType() != tc.mediaType {
				t.Errorf("media type %q, want %q", v.MediaType(), tc.mediaType)
			}
			if !v.WrittenAt().Equal(now) {
				t.Errorf("written at %v, want %v", v.WrittenAt(), now)
			}
		})
	}
}

func TestSetDataErrorsKeepData(t *testing.T) {
	now := time.Unix(1000, 0)
	v := newTestValue(&now)
	if err := v.SetData(format.MediaTome, `{"a":1}`); err != nil {
		t.Fatal(err)
	}
	if err := v.SetData("image/png", "x"); !errors.Is(err, format.ErrMediaType) {
		t.Errorf("got %v, want %v", err, format.ErrMediaType)
	}
	if err := v.SetData(format.MediaTome, `{"a":`); !errors.Is(err, format.ErrDecode) {
		t.Errorf("got %v, want %v", err, format.ErrDecode)
	}
	if diff := cmp.Diff(map[string]any{"a": int64(1)}, v.Snapshot()); diff != "" {
		t.Errorf("data changed by failed sets (-want +got):\n%s", diff)
	}
}

func TestSetDataDestroysPrevious(t *testing.T) {
	now := time.Unix(1000, 0)
	v := newTestValue(&now)
	if err := v.SetData(format.MediaTome, `{"a":1}`); err != nil {
		t.Fatal(err)
	}
	old := v.Data()
	destroyed := false
	old.OnDestroy(func() { destroyed = true })
	if err := v.SetData(format.MediaTome, `{"a":2}`); err != nil {
		t.Fatal(err)
	}
	if !destroyed {
		t.Error("previous data not destroyed")
	}
	v.Del()
	if v.Data() != nil || v.Snapshot() != nil {
		t.Error("Del left data behind")
	}
}

func TestTouchExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	v := newTestValue(&now)
	if v.Expired(now.Add(time.Hour)) {
		t.Error("value without expiry expired")
	}
	exp := int64(1060)
	v.Touch(&exp)
	if v.Expired(now) {
		t.Error("expired early")
	}
	if !v.Expired(time.Unix(1060, 0)) {
		t.Error("not expired at expiration time")
	}
	v.Touch(nil)
	if _, ok := v.ExpiresAt(); ok {
		t.Error("Touch(nil) kept the expiry")
	}
}

func TestApplyDiff(t *testing.T) {
	now := time.Unix(1000, 0)
	v := newTestValue(&now)
	ops := []tome.Op{{Chain: []any{"gold"}, Op: tome.OpAssign, Val: 20}}
	if err := v.ApplyDiff(ops); !errors.Is(err, ErrNoData) {
		t.Errorf("got %v, want %v", err, ErrNoData)
	}
	if err := v.SetData(format.MediaTome, `{"gold":10}`); err != nil {
		t.Fatal(err)
	}
	now = now.Add(time.Minute)
	if err := v.ApplyDiff(ops); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]any{"gold": int64(20)}, v.Snapshot()); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	if !v.WrittenAt().Equal(now) {
		t.Errorf("written at %v, want %v", v.WrittenAt(), now)
	}
	if v.Age() != 0 {
		t.Errorf("age %v, want 0", v.Age())
	}

	// yaml and json backed values take diffs too
	if err := v.SetData(format.MediaYAML, "gold: 1\nbag: [a]"); err != nil {
		t.Fatal(err)
	}
	ops = append(ops, tome.Op{Chain: []any{"bag"}, Op: tome.OpPush, Val: []any{"b"}})
	if err := v.ApplyDiff(ops); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"gold": int64(20), "bag": []any{"a", "b"}}
	if diff := cmp.Diff(want, v.Snapshot()); diff != "" {
		t.Errorf("yaml data mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMessage(t *testing.T) {
	m, err := ParseMessage([]byte(`{
		"key": {"topic": "player", "index": {"id": 7}},
		"value": {"mediaType": "application/x-tome", "data": "{\"a\":1}"},
		"expirationTime": 1234
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := m.Key.String(), "player:id=7"; got != want {
		t.Errorf("key %q, want %q", got, want)
	}
	if m.Value == nil || m.Value.MediaType != format.MediaTome {
		t.Fatalf("bad value %+v", m.Value)
	}
	if exp := m.Expiration(); exp == nil || *exp != 1234 {
		t.Errorf("expiration %v, want 1234", exp)
	}

	del, err := ParseMessage([]byte(`{"key": {"topic": "player", "index": {"id": 7}}, "value": null}`))
	if err != nil {
		t.Fatal(err)
	}
	if del.Value != nil {
		t.Error("null value decoded as a payload")
	}

	if _, err := ParseMessage([]byte(`{"key": {}}`)); !errors.Is(err, ErrMessage) {
		t.Errorf("got %v, want %v", err, ErrMessage)
	}
	if _, err := ParseMessages([]byte(`{}`)); !errors.Is(err, ErrMessage) {
		t.Errorf("got %v, want %v", err, ErrMessage)
	}
}
