package tome

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
)

// normalize converts a raw parsed value into the canonical representation
// stored by nodes: nil, bool, string, int64, float64, []any and
// map[string]any. A Node is replaced by its snapshot.
func normalize(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case bool, string, int64, float64:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint:
		return fromUint(uint64(v)), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return fromUint(v), nil
	case float32:
		return float64(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: number %q", ErrOperand, v.String())
		}
		return f, nil
	case json.RawMessage:
		var x any
		if err := unmarshalJSON(v, &x); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOperand, err)
		}
		return normalize(x)
	case Node:
		return v.Snapshot(), nil
	case []any:
		res := make([]any, len(v))
		for i := range v {
			x, err := normalize(v[i])
			if err != nil {
				return nil, err
			}
			res[i] = x
		}
		return res, nil
	case map[string]any:
		res := make(map[string]any, len(v))
		for k, x := range v {
			nx, err := normalize(x)
			if err != nil {
				return nil, err
			}
			res[k] = nx
		}
		return res, nil
	}
	return normalizeReflect(reflect.ValueOf(v))
}

func normalizeReflect(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		res := make([]any, rv.Len())
		for i := range res {
			x, err := normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			res[i] = x
		}
		return res, nil
	case reflect.Map:
		if rv.IsNil() {
			return nil, nil
		}
		res := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, ok := iter.Key().Interface().(string)
			if !ok {
				return nil, fmt.Errorf("%w: map key %v is not a string", ErrOperand, iter.Key().Interface())
			}
			x, err := normalize(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			res[k] = x
		}
		return res, nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fromUint(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Struct:
		d, err := json.Marshal(rv.Interface())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOperand, err)
		}
		var x any
		if err := unmarshalJSON(d, &x); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOperand, err)
		}
		return normalize(x)
	}
	if !rv.IsValid() {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: unsupported type %s", ErrOperand, rv.Type())
}

func fromUint(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

func isScalar(v any) bool {
	switch v.(type) {
	case []any, map[string]any:
		return false
	}
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// toInt converts a normalized operand to an int. Integral floats and
// decimal strings are accepted since chains and operands may carry either.
func toInt(v any) (int, error) {
	switch v := v.(type) {
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrOperand, v)
		}
		return int(v), nil
	case string:
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrOperand, v)
		}
		return i, nil
	case int:
		return v, nil
	}
	return 0, fmt.Errorf("%w: %v (%T) is not an integer", ErrOperand, v, v)
}

// toKey converts a normalized operand to a map key.
func toKey(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	return "", fmt.Errorf("%w: %v (%T) is not a key", ErrOperand, v, v)
}

func unmarshalJSON(d []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(d))
	dec.UseNumber()
	return dec.Decode(v)
}
