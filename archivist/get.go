package archivist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mage/mage-sdk-go/vault"
)

// Query addresses one value of an MGet.
type Query struct {
	Topic string      `json:"topic"`
	Index vault.Index `json:"index"`
}

func (q Query) key() vault.Key {
	return vault.Key{Topic: q.Topic, Index: q.Index}
}

type GetOptions struct {
	// MaxAge makes cached values written longer ago than MaxAge count as
	// missing.
	MaxAge time.Duration
	// Optional lets absent values through as nil instead of ErrNotFound.
	Optional bool
}

func (o *GetOptions) wire() map[string]any {
	res := map[string]any{"optional": o.Optional}
	if o.MaxAge > 0 {
		res["maxAge"] = int64(o.MaxAge / time.Second)
	}
	return res
}

type Sort struct {
	Name      string `json:"name"`
	Direction string `json:"direction,omitempty"`
}

type ListOptions struct {
	Sort  []Sort `json:"sort,omitempty"`
	Chunk []int  `json:"chunk,omitempty"`
}

// Get returns the value for topic and index, from the cache when possible.
func (a *Archivist) Get(ctx context.Context, topic string, index vault.Index, opts *GetOptions) (*vault.Value, error) {
	if opts == nil {
		opts = &GetOptions{}
	}
	key := vault.Key{Topic: topic, Index: index}
	if v := a.cached(key.String(), opts.MaxAge); v != nil {
		return v, nil
	}
	d, err := a.rawGet(ctx, key)
	if err != nil {
		return nil, err
	}
	if isNull(d) {
		return a.absent(key, opts)
	}
	msg, err := vault.ParseMessage(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResult, err)
	}
	return a.store(msg, opts)
}

// MGet returns the values for queries, in query order.
func (a *Archivist) MGet(ctx context.Context, queries []Query, opts *GetOptions) ([]*vault.Value, error) {
	if opts == nil {
		opts = &GetOptions{}
	}
	res := make([]*vault.Value, len(queries))
	pending := map[string][]int{}
	var real []Query
	for i, q := range queries {
		ck := q.key().String()
		if v := a.cached(ck, opts.MaxAge); v != nil {
			res[i] = v
			continue
		}
		if _, ok := pending[ck]; !ok {
			real = append(real, q)
		}
		pending[ck] = append(pending[ck], i)
	}
	if len(real) == 0 {
		return res, nil
	}
	vals, err := a.fetch(ctx, real, pending, opts)
	if err != nil {
		return nil, err
	}
	for ck, is := range pending {
		for _, i := range is {
			res[i] = vals[ck]
		}
	}
	return res, nil
}

// MGetMap is MGet with named queries.
func (a *Archivist) MGetMap(ctx context.Context, queries map[string]Query, opts *GetOptions) (map[string]*vault.Value, error) {
	if opts == nil {
		opts = &GetOptions{}
	}
	res := make(map[string]*vault.Value, len(queries))
	names := map[string][]string{}
	real := map[string]Query{}
	for name, q := range queries {
		ck := q.key().String()
		if v := a.cached(ck, opts.MaxAge); v != nil {
			res[name] = v
			continue
		}
		names[ck] = append(names[ck], name)
		real[name] = q
	}
	if len(real) == 0 {
		return res, nil
	}
	pending := make(map[string][]int, len(names))
	for ck := range names {
		pending[ck] = nil
	}
	vals, err := a.fetch(ctx, real, pending, opts)
	if err != nil {
		return nil, err
	}
	for ck, ns := range names {
		for _, name := range ns {
			res[name] = vals[ck]
		}
	}
	return res, nil
}

// fetch issues rawMGet for queries and stores the results. The result maps
// every cache key of pending to its value, nil for absent optional values.
func (a *Archivist) fetch(ctx context.Context, queries any, pending map[string][]int, opts *GetOptions) (map[string]*vault.Value, error) {
	d, err := a.rawMGet(ctx, queries, opts)
	if err != nil {
		return nil, err
	}
	msgs, err := vault.ParseMessages(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResult, err)
	}
	vals := make(map[string]*vault.Value, len(pending))
	for _, msg := range msgs {
		ck := msg.Key.String()
		if _, ok := pending[ck]; !ok {
			a.log.Warn("unexpected value in mget result", "key", ck)
			continue
		}
		v, err := a.store(msg, opts)
		if err != nil {
			return nil, err
		}
		vals[ck] = v
	}
	for ck := range pending {
		if _, ok := vals[ck]; !ok && !opts.Optional {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ck)
		}
	}
	return vals, nil
}

func (a *Archivist) store(msg *vault.Message, opts *GetOptions) (*vault.Value, error) {
	if err := a.setOrDel(msg); err != nil {
		return nil, err
	}
	if msg.Value == nil {
		return a.absent(msg.Key, opts)
	}
	return a.lookup(msg.Key), nil
}

func (a *Archivist) absent(key vault.Key, opts *GetOptions) (*vault.Value, error) {
	if opts.Optional {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
}

// List returns the indexes of the values of topic matching partialIndex.
func (a *Archivist) List(ctx context.Context, topic string, partialIndex vault.Index, opts *ListOptions) ([]vault.Index, error) {
	if opts == nil {
		opts = &ListOptions{}
	}
	if partialIndex == nil {
		partialIndex = vault.Index{}
	}
	d, err := a.cmd.Call(ctx, "archivist.rawList", map[string]any{
		"topic":        topic,
		"partialIndex": partialIndex,
		"options":      opts,
	})
	if err != nil {
		return nil, err
	}
	var res []vault.Index
	dec := json.NewDecoder(bytes.NewReader(d))
	dec.UseNumber()
	if err := dec.Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResult, err)
	}
	return res, nil
}

func (a *Archivist) rawGet(ctx context.Context, key vault.Key) (json.RawMessage, error) {
	return a.cmd.Call(ctx, "archivist.rawGet", map[string]any{
		"topic": key.Topic,
		"index": indexOrEmpty(key.Index),
	})
}

func (a *Archivist) rawMGet(ctx context.Context, queries any, opts *GetOptions) (json.RawMessage, error) {
	return a.cmd.Call(ctx, "archivist.rawMGet", map[string]any{
		"queries": queries,
		"options": opts.wire(),
	})
}

func indexOrEmpty(index vault.Index) vault.Index {
	if index == nil {
		return vault.Index{}
	}
	return index
}

func isNull(d json.RawMessage) bool {
	d = bytes.TrimSpace(d)
	return len(d) == 0 || string(d) == "null"
}
