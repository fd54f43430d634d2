package tome

import (
	"fmt"
	"strconv"
)

// Value is a leaf node holding one scalar: nil, bool, string, int64 or
// float64.
type Value struct {
	node
	val any
}

func (v *Value) Kind() Kind { return ValueKind }

// Get returns the scalar held by v.
func (v *Value) Get() any {
	d := lockNode(v)
	defer d.unlock()
	return v.val
}

// String formats the scalar the way it is written in a cache key: strings
// unquoted, null as "null".
func (v *Value) String() string {
	return formatScalar(v.Get())
}

func formatScalar(x any) string {
	switch x := x.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
