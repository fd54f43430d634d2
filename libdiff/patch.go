package libdiff

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mage/mage-sdk-go/format"
	"github.com/mage/mage-sdk-go/tome"

	jsonpatch "github.com/evanphx/json-patch"
)

var (
	ErrPatch      = errors.New("invalid json patch")
	ErrTestFailed = errors.New("json patch test failed")
)

// FromJSONPatch translates an RFC 6902 patch into tome operations for doc.
// Pointer segments are resolved against doc as it would be after the
// preceding operations, so array indices become list indices and object
// members map keys. doc is not modified.
func FromJSONPatch(doc *tome.Document, patch []byte) ([]tome.Op, error) {
	p, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPatch, err)
	}
	var snap any
	if doc != nil {
		snap = doc.Snapshot()
	}
	scratch, err := tome.New(snap, tome.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		return nil, err
	}
	defer scratch.Destroy()

	c := &converter{doc: scratch}
	for i, o := range p {
		if err := c.convert(o); err != nil {
			return nil, fmt.Errorf("%w: operation %d (%s): %w", ErrPatch, i, o.Kind(), err)
		}
	}
	return c.ops, nil
}

type converter struct {
	doc *tome.Document
	ops []tome.Op
}

func (c *converter) emit(ops ...tome.Op) error {
	if err := c.doc.ApplyDiff(ops); err != nil {
		return err
	}
	c.ops = append(c.ops, ops...)
	return nil
}

func (c *converter) convert(o jsonpatch.Operation) error {
	path, err := o.Path()
	if err != nil {
		return err
	}
	tokens, err := pointer(path)
	if err != nil {
		return err
	}
	switch o.Kind() {
	case "add":
		v, err := value(o)
		if err != nil {
			return err
		}
		return c.add(tokens, v)
	case "remove":
		return c.remove(tokens)
	case "replace":
		v, err := value(o)
		if err != nil {
			return err
		}
		return c.replace(tokens, v)
	case "move", "copy":
		from, err := o.From()
		if err != nil {
			return err
		}
		ftoks, err := pointer(from)
		if err != nil {
			return err
		}
		_, n, err := c.resolve(ftoks)
		if err != nil {
			return err
		}
		v := n.Snapshot()
		if o.Kind() == "move" {
			if from == path {
				return nil
			}
			if strings.HasPrefix(path, from+"/") {
				return fmt.Errorf("%w: cannot move %q into itself", tome.ErrCycle, from)
			}
			if err := c.remove(ftoks); err != nil {
				return err
			}
		}
		return c.add(tokens, v)
	case "test":
		return c.test(tokens, o)
	}
	return fmt.Errorf("%w: %q", tome.ErrUnsupportedOp, o.Kind())
}

func (c *converter) add(tokens []string, v any) error {
	if len(tokens) == 0 {
		return c.emit(op(nil, tome.OpAssign, v))
	}
	chain, parent, last, err := c.parent(tokens)
	if err != nil {
		return err
	}
	switch p := parent.(type) {
	case *tome.List:
		if last == "-" {
			return c.emit(op(chain, tome.OpPush, []any{v}))
		}
		i, err := listIndex(last, p.Len()+1)
		if err != nil {
			return err
		}
		if i == p.Len() {
			return c.emit(op(chain, tome.OpPush, []any{v}))
		}
		return c.emit(op(chain, tome.OpSplice, []any{i, 0, v}))
	case *tome.Map:
		return c.emit(op(chain, tome.OpSet, keyVal(last, v)))
	}
	return fmt.Errorf("%w: %s is not a container", tome.ErrKind, pathOf(chain))
}

func (c *converter) remove(tokens []string) error {
	if len(tokens) == 0 {
		return fmt.Errorf("%w: cannot remove the document root", tome.ErrPath)
	}
	chain, parent, last, err := c.parent(tokens)
	if err != nil {
		return err
	}
	switch p := parent.(type) {
	case *tome.List:
		i, err := listIndex(last, p.Len())
		if err != nil {
			return err
		}
		return c.emit(op(chain, tome.OpSplice, []any{i, 1}))
	case *tome.Map:
		if !p.Has(last) {
			return fmt.Errorf("%w: %q", tome.ErrNotFound, last)
		}
		return c.emit(op(chain, tome.OpDel, last))
	}
	return fmt.Errorf("%w: %s is not a container", tome.ErrKind, pathOf(chain))
}

func (c *converter) replace(tokens []string, v any) error {
	if len(tokens) == 0 {
		return c.emit(op(nil, tome.OpAssign, v))
	}
	chain, parent, last, err := c.parent(tokens)
	if err != nil {
		return err
	}
	switch p := parent.(type) {
	case *tome.List:
		i, err := listIndex(last, p.Len())
		if err != nil {
			return err
		}
		return c.emit(op(chain, tome.OpSet, keyVal(i, v)))
	case *tome.Map:
		if !p.Has(last) {
			return fmt.Errorf("%w: %q", tome.ErrNotFound, last)
		}
		return c.emit(op(chain, tome.OpSet, keyVal(last, v)))
	}
	return fmt.Errorf("%w: %s is not a container", tome.ErrKind, pathOf(chain))
}

func (c *converter) test(tokens []string, o jsonpatch.Operation) error {
	raw, ok := o["value"]
	if !ok {
		return jsonpatch.ErrMissing
	}
	want := []byte("null")
	if raw != nil {
		want = *raw
	}
	_, n, err := c.resolve(tokens)
	if err != nil {
		return err
	}
	d, err := json.Marshal(n.Snapshot())
	if err != nil {
		return err
	}
	if !jsonpatch.Equal(d, want) {
		return fmt.Errorf("%w: %s is %s", ErrTestFailed, strings.Join(tokens, "/"), d)
	}
	return nil
}

func (c *converter) parent(tokens []string) ([]any, tome.Node, string, error) {
	chain, n, err := c.resolve(tokens[:len(tokens)-1])
	if err != nil {
		return nil, nil, "", err
	}
	return chain, n, tokens[len(tokens)-1], nil
}

// resolve follows tokens from the root, converting them into a chain.
func (c *converter) resolve(tokens []string) ([]any, tome.Node, error) {
	chain := []any{}
	n := c.doc.Root()
	for _, tok := range tokens {
		switch p := n.(type) {
		case *tome.List:
			i, err := listIndex(tok, p.Len())
			if err != nil {
				return nil, nil, err
			}
			chain = append(chain, i)
			n = p.At(i)
		case *tome.Map:
			x, ok := p.Get(tok)
			if !ok {
				return nil, nil, fmt.Errorf("%w: %q at %s", tome.ErrNotFound, tok, pathOf(chain))
			}
			chain = append(chain, tok)
			n = x
		default:
			return nil, nil, fmt.Errorf("%w: %s is not a container", tome.ErrKind, pathOf(chain))
		}
	}
	return chain, n, nil
}

// listIndex parses an array index token, which must be below limit.
func listIndex(tok string, limit int) (int, error) {
	if tok == "" || (len(tok) > 1 && tok[0] == '0') {
		return 0, fmt.Errorf("%w: bad array index %q", tome.ErrPath, tok)
	}
	i, err := strconv.Atoi(tok)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: bad array index %q", tome.ErrPath, tok)
	}
	if i >= limit {
		return 0, fmt.Errorf("%w: %d", tome.ErrIndex, i)
	}
	return i, nil
}

// pointer splits an RFC 6901 JSON pointer into unescaped tokens.
func pointer(p string) ([]string, error) {
	if p == "" {
		return nil, nil
	}
	if p[0] != '/' {
		return nil, fmt.Errorf("%w: pointer %q must start with /", tome.ErrPath, p)
	}
	parts := strings.Split(p[1:], "/")
	for i, s := range parts {
		parts[i] = strings.ReplaceAll(strings.ReplaceAll(s, "~1", "/"), "~0", "~")
	}
	return parts, nil
}

func value(o jsonpatch.Operation) (any, error) {
	raw, ok := o["value"]
	if !ok {
		return nil, jsonpatch.ErrMissing
	}
	if raw == nil {
		return nil, nil
	}
	return format.JSONFormat.Decode(*raw)
}

func pathOf(chain []any) string {
	p, err := tome.PathFrom(chain)
	if err != nil {
		return fmt.Sprint(chain)
	}
	if len(p) == 0 {
		return "the root"
	}
	return p.String()
}
