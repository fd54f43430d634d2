package tome

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestApplyDiffPushBubbles(t *testing.T) {
	d := mustNew(t, map[string]any{"list": []any{1, 2, 3}})
	list := mustGet(t, d, "list").(*List)
	var added []int
	list.OnAdd(func(i int) { added = append(added, i) })
	rootChanged := 0
	d.Root().OnChanged(func(any) { rootChanged++ })

	err := d.ApplyDiff([]Op{{Chain: []any{"list"}, Op: OpPush, Val: []any{4}}})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"list": []any{int64(1), int64(2), int64(3), int64(4)}}
	if diff := cmp.Diff(want, d.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{3}, added); diff != "" {
		t.Errorf("add events mismatch (-want +got):\n%s", diff)
	}
	if rootChanged != 1 {
		t.Errorf("got %d root changed events, want 1", rootChanged)
	}
}

func TestApplyDiffNestedAssign(t *testing.T) {
	d := mustNew(t, map[string]any{"a": map[string]any{"b": 1}})
	b := mustGet(t, d, "a.b")
	rootChanged := 0
	d.Root().OnChanged(func(any) { rootChanged++ })

	err := d.ApplyDiff([]Op{{Chain: []any{"a", "b"}, Op: OpAssign, Val: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]any{"a": map[string]any{"b": int64(2)}}, d.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if rootChanged != 1 {
		t.Errorf("got %d root changed events, want 1", rootChanged)
	}
	if got := mustGet(t, d, "a.b"); got != b || b.Destroyed() {
		t.Error("scalar assign replaced the value node")
	}
}

func TestApplyDiffAssignRoot(t *testing.T) {
	d := mustNew(t, map[string]any{"a": 1})
	old := d.Root()
	a := mustGet(t, d, "a")
	rootChanged := 0
	old.OnChanged(func(any) { rootChanged++ })
	aDestroyed := false
	a.OnDestroy(func() { aDestroyed = true })

	if err := d.ApplyDiff([]Op{{Chain: []any{}, Op: OpAssign, Val: 5}}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(any(int64(5)), d.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if rootChanged != 1 {
		t.Errorf("got %d root changed events, want 1", rootChanged)
	}
	if !aDestroyed {
		t.Error("child of the replaced root was not destroyed")
	}
	if d.Root() == old || !d.Root().IsRoot() {
		t.Error("document root was not replaced")
	}
}

func TestApplyDiffFailFast(t *testing.T) {
	d := mustNew(t, map[string]any{"list": []any{1}})
	ops := []Op{
		{Chain: []any{"list"}, Op: OpPush, Val: []any{2}},
		{Chain: []any{"list"}, Op: "frobnicate"},
		{Chain: []any{"list"}, Op: OpPush, Val: []any{3}},
	}
	err := d.ApplyDiff(ops)
	var opErr *OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("got %v, want *OpError", err)
	}
	if opErr.Index != 1 {
		t.Errorf("got failing index %d, want 1", opErr.Index)
	}
	if !errors.Is(err, ErrUnsupportedOp) {
		t.Errorf("got %v, want %v", err, ErrUnsupportedOp)
	}
	want := map[string]any{"list": []any{int64(1), int64(2)}}
	if diff := cmp.Diff(want, d.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyDiffErrors(t *testing.T) {
	tests := []struct {
		name string
		op   Op
		want error
	}{
		{
			name: "push on map",
			op:   Op{Chain: []any{}, Op: OpPush, Val: []any{1}},
			want: ErrKind,
		},
		{
			name: "set on value",
			op:   Op{Chain: []any{"n"}, Op: OpSet, Val: map[string]any{"key": "x", "val": 1}},
			want: ErrKind,
		},
		{
			name: "missing key",
			op:   Op{Chain: []any{"nope"}, Op: OpAssign, Val: 1},
			want: ErrPath,
		},
		{
			name: "index out of range",
			op:   Op{Chain: []any{"l", 9}, Op: OpAssign, Val: 1},
			want: ErrPath,
		},
		{
			name: "bad chain segment",
			op:   Op{Chain: []any{true}, Op: OpAssign, Val: 1},
			want: ErrPath,
		},
		{
			name: "set without key",
			op:   Op{Chain: []any{"l"}, Op: OpSet, Val: map[string]any{"val": 1}},
			want: ErrOperand,
		},
		{
			name: "splice without count",
			op:   Op{Chain: []any{"l"}, Op: OpSplice, Val: []any{0}},
			want: ErrOperand,
		},
		{
			name: "pop empty",
			op:   Op{Chain: []any{"e"}, Op: OpPop},
			want: ErrEmpty,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := mustNew(t, map[string]any{"n": 1, "l": []any{1}, "e": []any{}})
			err := d.ApplyDiff([]Op{tc.op})
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestApplyDiffOps(t *testing.T) {
	tests := []struct {
		name string
		doc  any
		ops  string
		want any
	}{
		{
			name: "list set and del",
			doc:  map[string]any{"l": []any{"a", "b"}},
			ops: `[{"chain":["l"],"op":"set","val":{"key":3,"val":"d"}},
			       {"chain":["l"],"op":"del","val":0}]`,
			want: map[string]any{"l": []any{nil, "b", nil, "d"}},
		},
		{
			name: "map set and del",
			doc:  map[string]any{"m": map[string]any{"a": 1}},
			ops: `[{"chain":["m"],"op":"set","val":{"key":"b","val":[1]}},
			       {"chain":["m"],"op":"del","val":"a"}]`,
			want: map[string]any{"m": map[string]any{"b": []any{int64(1)}}},
		},
		{
			name: "unshift keeps operand order",
			doc:  []any{3},
			ops:  `[{"chain":[],"op":"unshift","val":[1,2]}]`,
			want: []any{int64(1), int64(2), int64(3)},
		},
		{
			name: "splice",
			doc:  []any{1, 2, 3, 4},
			ops:  `[{"chain":[],"op":"splice","val":[1,2,"x"]}]`,
			want: []any{int64(1), "x", int64(4)},
		},
		{
			name: "pop shift reverse",
			doc:  []any{1, 2, 3, 4},
			ops:  `[{"chain":[],"op":"pop"},{"chain":[],"op":"shift"},{"chain":[],"op":"reverse"}]`,
			want: []any{int64(3), int64(2)},
		},
		{
			name: "map rename",
			doc:  map[string]any{"a": 1, "b": 2},
			ops:  `[{"chain":[],"op":"rename","val":{"a":"z","b":"y"}}]`,
			want: map[string]any{"z": int64(1), "y": int64(2)},
		},
		{
			name: "list rename in index order",
			doc:  []any{"a", "b", "c"},
			ops:  `[{"chain":[],"op":"rename","val":{"2":0,"0":3}}]`,
			want: []any{"c", "b", nil, "a"},
		},
		{
			name: "move between containers",
			doc:  map[string]any{"from": map[string]any{"k": "v"}, "to": []any{}},
			ops:  `[{"chain":["from"],"op":"move","val":{"key":"k","newParent":["to"],"newKey":0}}]`,
			want: map[string]any{"from": map[string]any{}, "to": []any{"v"}},
		},
		{
			name: "move keeps key",
			doc:  map[string]any{"from": map[string]any{"k": "v"}, "to": map[string]any{}},
			ops:  `[{"chain":["from"],"op":"move","val":{"key":"k","newParent":["to"]}}]`,
			want: map[string]any{"from": map[string]any{}, "to": map[string]any{"k": "v"}},
		},
		{
			name: "swap",
			doc:  map[string]any{"l": []any{1, 2}, "m": map[string]any{"k": "v"}},
			ops:  `[{"chain":["l"],"op":"swap","val":{"key":1,"newParent":["m"],"newKey":"k"}}]`,
			want: map[string]any{"l": []any{int64(1), "v"}, "m": map[string]any{"k": int64(2)}},
		},
		{
			name: "numeric field addresses list",
			doc:  map[string]any{"l": []any{1, 2}},
			ops:  `[{"chain":["l","1"],"op":"assign","val":{"x":null}}]`,
			want: map[string]any{"l": []any{int64(1), map[string]any{"x": nil}}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := mustNew(t, tc.doc)
			ops, err := ParseOps([]byte(tc.ops))
			if err != nil {
				t.Fatal(err)
			}
			if err := ApplyDiff(d.Root(), ops); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, d.Snapshot()); diff != "" {
				t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseOpsError(t *testing.T) {
	if _, err := ParseOps([]byte(`{"chain":`)); !errors.Is(err, ErrOperand) {
		t.Errorf("got %v, want %v", err, ErrOperand)
	}
}
