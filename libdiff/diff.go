// Package libdiff computes tome diff batches.
//
// Diff compares two raw documents (the values produced by format.Decode or
// tome.Document.Snapshot) and returns the operations turning the first into
// the second. FromJSONPatch translates an RFC 6902 JSON Patch into the same
// operations.
package libdiff

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/mage/mage-sdk-go/debug"
	"github.com/mage/mage-sdk-go/tome"
)

type kind int

const (
	valueKind kind = iota
	listKind
	mapKind
)

func kindOf(v any) kind {
	switch v.(type) {
	case []any:
		return listKind
	case map[string]any:
		return mapKind
	}
	return valueKind
}

// Diff returns the operations which, applied to a document holding from,
// leave it holding to.
func Diff(from, to any) []tome.Op {
	var ops []tome.Op
	diff(nil, from, to, &ops)
	if debug.Diff() {
		debug.Logf("diff: %d ops\n", len(ops))
	}
	return ops
}

func diff(chain []any, from, to any, ops *[]tome.Op) {
	fk, tk := kindOf(from), kindOf(to)
	if fk != tk {
		*ops = append(*ops, op(chain, tome.OpAssign, to))
		return
	}
	switch fk {
	case mapKind:
		diffMap(chain, from.(map[string]any), to.(map[string]any), ops)
	case listKind:
		diffList(chain, from.([]any), to.([]any), ops)
	default:
		if summary(from) != summary(to) {
			*ops = append(*ops, op(chain, tome.OpAssign, to))
		}
	}
}

func diffMap(chain []any, from, to map[string]any, ops *[]tome.Op) {
	var dels, keys []string
	for k := range from {
		if _, ok := to[k]; !ok {
			dels = append(dels, k)
		}
	}
	for k := range to {
		keys = append(keys, k)
	}
	slices.Sort(dels)
	slices.Sort(keys)
	for _, k := range dels {
		*ops = append(*ops, op(chain, tome.OpDel, k))
	}
	for _, k := range keys {
		tv := to[k]
		fv, ok := from[k]
		switch {
		case !ok:
			*ops = append(*ops, op(chain, tome.OpSet, keyVal(k, tv)))
		case kindOf(fv) != valueKind && kindOf(fv) == kindOf(tv):
			diff(child(chain, k), fv, tv, ops)
		case summary(fv) != summary(tv):
			*ops = append(*ops, op(chain, tome.OpSet, keyVal(k, tv)))
		}
	}
}

func op(chain []any, code string, val any) tome.Op {
	return tome.Op{Chain: append([]any{}, chain...), Op: code, Val: val}
}

func keyVal(k, v any) map[string]any {
	return map[string]any{"key": k, "val": v}
}

func child(chain []any, key any) []any {
	res := make([]any, len(chain), len(chain)+1)
	copy(res, chain)
	return append(res, key)
}

// summary is the canonical encoding of v: equal summaries mean equal
// values, whatever the Go types of their numbers.
func summary(v any) string {
	d, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return string(d)
}
