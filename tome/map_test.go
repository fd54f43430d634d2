package tome

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMapSetAddThenChange(t *testing.T) {
	d := mustNew(t, map[string]any{})
	m := d.Root().(*Map)
	var added []string
	m.OnAdd(func(k string) { added = append(added, k) })

	if err := m.Set("k", "x"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"k"}, added); diff != "" {
		t.Fatalf("add events mismatch (-want +got):\n%s", diff)
	}
	v, ok := m.Get("k")
	if !ok {
		t.Fatal("k not set")
	}
	changed := 0
	v.OnChanged(func(old any) {
		if old != nil {
			t.Errorf("got old value %v, want nil", old)
		}
		changed++
	})
	if err := m.Set("k", "y"); err != nil {
		t.Fatal(err)
	}
	if changed != 1 {
		t.Errorf("got %d changed events on the value, want 1", changed)
	}
	if len(added) != 1 {
		t.Errorf("second Set fired OnAdd: %v", added)
	}
}

func TestMapDel(t *testing.T) {
	d := mustNew(t, map[string]any{"a": 1, "b": 2})
	m := d.Root().(*Map)
	var deleted []string
	m.OnDel(func(k string) { deleted = append(deleted, k) })
	a, _ := m.Get("a")

	if err := m.Del("a"); err != nil {
		t.Fatal(err)
	}
	if !a.Destroyed() {
		t.Error("deleted node not destroyed")
	}
	if m.Has("a") {
		t.Error("key still present")
	}
	if err := m.Del("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want %v", err, ErrNotFound)
	}
	if diff := cmp.Diff([]string{"a"}, deleted); diff != "" {
		t.Errorf("del events mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b"}, m.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestMapKeysInsertionOrder(t *testing.T) {
	d := mustNew(t, map[string]any{"b": 1, "a": 2})
	m := d.Root().(*Map)
	for _, k := range []string{"z", "c"} {
		if err := m.Set(k, k); err != nil {
			t.Fatal(err)
		}
	}
	if diff := cmp.Diff([]string{"a", "b", "z", "c"}, m.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestMapRename(t *testing.T) {
	d := mustNew(t, map[string]any{"a": map[string]any{"deep": true}, "b": 2})
	m := d.Root().(*Map)
	a, _ := m.Get("a")
	var events []string
	m.OnAdd(func(k string) { events = append(events, "add "+k) })
	m.OnDel(func(k string) { events = append(events, "del "+k) })

	if err := m.Rename("a", "b"); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.Get("b"); got != a {
		t.Error("renamed node lost its identity")
	}
	if diff := cmp.Diff(map[string]any{"b": map[string]any{"deep": true}}, d.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	// b existed, so the destination reports a change rather than an add.
	if diff := cmp.Diff([]string{"del a"}, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestMapMoveCycle(t *testing.T) {
	d := mustNew(t, map[string]any{"a": map[string]any{"b": map[string]any{}}})
	a := mustGet(t, d, "a").(*Map)
	b := mustGet(t, d, "a.b")
	if err := a.Move("b", b, "c"); !errors.Is(err, ErrCycle) {
		t.Errorf("got %v, want %v", err, ErrCycle)
	}
	if err := d.Root().(*Map).Move("a", b, "c"); !errors.Is(err, ErrCycle) {
		t.Errorf("got %v, want %v", err, ErrCycle)
	}
	if err := a.Move("missing", d.Root(), "c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want %v", err, ErrNotFound)
	}
	want := map[string]any{"a": map[string]any{"b": map[string]any{}}}
	if diff := cmp.Diff(want, d.Snapshot()); diff != "" {
		t.Errorf("failed moves changed the document (-want +got):\n%s", diff)
	}
}

func TestMapMoveToValueFails(t *testing.T) {
	d := mustNew(t, map[string]any{"a": 1, "v": "s"})
	m := d.Root().(*Map)
	v, _ := m.Get("v")
	if err := m.Move("a", v, "x"); !errors.Is(err, ErrKind) {
		t.Errorf("got %v, want %v", err, ErrKind)
	}
}
