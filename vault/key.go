package vault

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Index identifies a value within a topic.
type Index map[string]any

// Key addresses one vault value.
type Key struct {
	Topic string `json:"topic"`
	Index Index  `json:"index"`
}

// String returns the cache key of k.
func (k Key) String() string {
	return CacheKey(k.Topic, k.Index)
}

// CacheKey joins topic and the index pairs into topic:k1=v1:k2=v2 with the
// index keys in ascending order, so equal indices always produce the same
// key.
func CacheKey(topic string, index Index) string {
	keys := make([]string, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var buf strings.Builder
	buf.WriteString(topic)
	for _, k := range keys {
		buf.WriteByte(':')
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(indexString(index[k]))
	}
	return buf.String()
}

func indexString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	case map[string]any, []any:
		d, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(d)
	}
	return fmt.Sprint(v)
}

// Matches reports whether every pair of partial is present in index.
func (index Index) Matches(partial Index) bool {
	for k, v := range partial {
		iv, ok := index[k]
		if !ok || indexString(iv) != indexString(v) {
			return false
		}
	}
	return true
}

func decodeJSON(d []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(d))
	dec.UseNumber()
	return dec.Decode(v)
}
