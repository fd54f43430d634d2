package tome

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a Path: either a map field or a list index.
type Segment struct {
	Field *string // map key (e.g. "a")
	Index *int    // list index (e.g. 0)
}

// Field returns a field segment.
func Field(f string) Segment {
	return Segment{Field: &f}
}

// Index returns an index segment.
func Index(i int) Segment {
	return Segment{Index: &i}
}

// String returns the segment as it appears in a path string.
func (s Segment) String() string {
	switch {
	case s.Index != nil:
		return "[" + strconv.Itoa(*s.Index) + "]"
	case s.Field != nil:
		if quoteField(*s.Field) {
			return quote(*s.Field)
		}
		return *s.Field
	}
	return ""
}

// listIndex returns the list index addressed by s. A field made of digits
// addresses a list as well, since chains coming from the server do not
// always distinguish the two.
func (s Segment) listIndex() (int, bool) {
	if s.Index != nil {
		return *s.Index, true
	}
	if s.Field != nil {
		i, err := strconv.Atoi(*s.Field)
		if err == nil {
			return i, true
		}
	}
	return 0, false
}

func (s Segment) mapKey() string {
	if s.Field != nil {
		return *s.Field
	}
	if s.Index != nil {
		return strconv.Itoa(*s.Index)
	}
	return ""
}

// Path locates a node from a document root. The empty path addresses the
// root itself.
//
// The string form uses kinded syntax:
//   - "a.b"     field b of field a
//   - "a[0]"    index 0 of the list in field a
//   - "'x.y'.z" quoted fields may contain any character
type Path []Segment

func (p Path) String() string {
	var buf strings.Builder
	for i, s := range p {
		if s.Field != nil && i > 0 {
			buf.WriteByte('.')
		}
		buf.WriteString(s.String())
	}
	return buf.String()
}

// Append returns a new path with segs added.
func (p Path) Append(segs ...Segment) Path {
	res := make(Path, 0, len(p)+len(segs))
	res = append(res, p...)
	return append(res, segs...)
}

// Chain returns p in diff operation form: strings for fields, ints for
// indices.
func (p Path) Chain() []any {
	res := make([]any, len(p))
	for i, s := range p {
		if s.Index != nil {
			res[i] = *s.Index
			continue
		}
		res[i] = s.mapKey()
	}
	return res
}

// PathFrom converts a diff operation chain into a Path.
func PathFrom(chain []any) (Path, error) {
	res := make(Path, 0, len(chain))
	for i, c := range chain {
		switch c := c.(type) {
		case string:
			res = append(res, Field(c))
		case json.Number, int, int64, float64:
			raw, err := normalize(c)
			if err != nil {
				return nil, err
			}
			idx, err := toInt(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: chain segment %d: %w", ErrPath, i, err)
			}
			res = append(res, Index(idx))
		default:
			return nil, fmt.Errorf("%w: chain segment %d has type %T", ErrPath, i, c)
		}
	}
	return res, nil
}

// ParsePath parses the kinded string form of a path.
func ParsePath(s string) (Path, error) {
	var res Path
	i := 0
	for i < len(s) {
		switch c := s[i]; {
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated index in %q", ErrPath, s)
			}
			idx, err := strconv.Atoi(s[i+1 : i+end])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("%w: bad index %q in %q", ErrPath, s[i+1:i+end], s)
			}
			res = append(res, Index(idx))
			i += end + 1
		case c == '.':
			if i == 0 || i == len(s)-1 {
				return nil, fmt.Errorf("%w: misplaced '.' in %q", ErrPath, s)
			}
			i++
			if s[i] == '.' || s[i] == '[' {
				return nil, fmt.Errorf("%w: empty field in %q", ErrPath, s)
			}
		case c == '\'':
			f, n, err := unquote(s[i:])
			if err != nil {
				return nil, fmt.Errorf("%w: %w in %q", ErrPath, err, s)
			}
			res = append(res, Field(f))
			i += n
		default:
			j := i
			for j < len(s) && s[j] != '.' && s[j] != '[' {
				if s[j] == ']' || s[j] == '\'' {
					return nil, fmt.Errorf("%w: unexpected %q in %q", ErrPath, s[j], s)
				}
				j++
			}
			res = append(res, Field(s[i:j]))
			i = j
		}
	}
	return res, nil
}

func quoteField(f string) bool {
	if f == "" {
		return true
	}
	return strings.ContainsAny(f, ".[]' \t\n")
}

func quote(f string) string {
	var buf strings.Builder
	buf.WriteByte('\'')
	for i := 0; i < len(f); i++ {
		if f[i] == '\'' || f[i] == '\\' {
			buf.WriteByte('\\')
		}
		buf.WriteByte(f[i])
	}
	buf.WriteByte('\'')
	return buf.String()
}

// unquote reads a single quoted field at the start of s, returning the field
// and the number of bytes consumed.
func unquote(s string) (string, int, error) {
	var buf strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 == len(s) {
				return "", 0, fmt.Errorf("dangling escape")
			}
			i++
			buf.WriteByte(s[i])
		case '\'':
			return buf.String(), i + 1, nil
		default:
			buf.WriteByte(s[i])
		}
	}
	return "", 0, fmt.Errorf("unterminated quote")
}

// resolve walks path from n. The caller holds the document lock.
func resolve(n Node, path Path) (Node, error) {
	res := n
	for i, seg := range path {
		switch c := res.(type) {
		case *List:
			idx, ok := seg.listIndex()
			if !ok {
				return nil, fmt.Errorf("%w: field %q on list at %q", ErrKind, seg.mapKey(), path[:i].String())
			}
			if idx < 0 || idx >= len(c.items) {
				return nil, fmt.Errorf("%w: index %d at %q (len %d)", ErrPath, idx, path[:i].String(), len(c.items))
			}
			res = c.items[idx]
		case *Map:
			key := seg.mapKey()
			child, ok := c.vals[key]
			if !ok {
				return nil, fmt.Errorf("%w: %q at %q", ErrPath, key, path[:i].String())
			}
			res = child
		case *Value:
			return nil, fmt.Errorf("%w: cannot index value at %q with %s", ErrKind, path[:i].String(), seg)
		}
	}
	return res, nil
}
