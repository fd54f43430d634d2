package debug

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

type debug struct {
	Diff    bool
	Conjure bool
	Stream  bool
	Command bool
	Events  bool
	Eval    bool
}

var d *debug

func init() {
	d = &debug{}
	d.Diff = boolEnv("MAGE_DEBUG_DIFF")
	d.Conjure = boolEnv("MAGE_DEBUG_CONJURE")
	d.Stream = boolEnv("MAGE_DEBUG_STREAM")
	d.Command = boolEnv("MAGE_DEBUG_COMMAND")
	d.Events = boolEnv("MAGE_DEBUG_EVENTS")
	d.Eval = boolEnv("MAGE_DEBUG_EVAL")
}

func boolEnv(v string) bool {
	x := os.Getenv(v)
	if x == "" {
		return false
	}
	b, _ := strconv.ParseBool(x)
	return b
}

func Diff() bool {
	return d.Diff
}
func Conjure() bool {
	return d.Conjure
}
func Stream() bool {
	return d.Stream
}
func Command() bool {
	return d.Command
}
func Events() bool {
	return d.Events
}
func Eval() bool {
	return d.Eval
}

var out io.Writer = os.Stderr

// Logf writes a debug line to stderr. Documents, nodes and raw JSON are
// rendered as compact JSON, keys and paths by their String method.
func Logf(msg string, args ...any) {
	for i, a := range args {
		args[i] = render(a)
	}
	fmt.Fprintf(out, msg, args...)
}

func render(a any) any {
	switch x := a.(type) {
	case json.RawMessage:
		return string(x)
	case json.Marshaler:
		d, err := x.MarshalJSON()
		if err != nil {
			return fmt.Sprintf("<%v>", err)
		}
		return string(d)
	case fmt.Stringer:
		return x.String()
	case map[string]any, []any:
		d, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(d)
	}
	return a
}
