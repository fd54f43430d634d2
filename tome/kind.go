package tome

import "fmt"

// Kind identifies the concrete type of a Node.
type Kind int

const (
	ValueKind Kind = iota
	ListKind
	MapKind
)

func (k Kind) String() string {
	switch k {
	case ValueKind:
		return "value"
	case ListKind:
		return "list"
	case MapKind:
		return "map"
	default:
		return fmt.Sprintf("<kind %d>", int(k))
	}
}
