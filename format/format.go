package format

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
)

type Format int

const (
	JSONFormat Format = iota
	YAMLFormat
	TextFormat
)

var (
	ErrBadFormat = errors.New("bad format")
	ErrMediaType = errors.New("unsupported media type")
	ErrDecode    = errors.New("malformed data")
)

func ParseFormat(v string) (Format, error) {
	f, ok := map[string]Format{
		"j":    JSONFormat,
		"json": JSONFormat,
		"y":    YAMLFormat,
		"yaml": YAMLFormat,
		"t":    TextFormat,
		"text": TextFormat,
	}[v]
	if ok {
		return f, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrBadFormat, v)
}

func (f Format) String() string {
	d, err := f.MarshalText()
	if err != nil {
		return err.Error()
	}
	return string(d)
}

func (f Format) MarshalText() ([]byte, error) {
	switch f {
	case JSONFormat:
		return []byte("json"), nil
	case YAMLFormat:
		return []byte("yaml"), nil
	case TextFormat:
		return []byte("text"), nil
	default:
		return nil, fmt.Errorf("<err: %d is not a format>", f)
	}
}

func (f *Format) UnmarshalText(d []byte) error {
	pf, err := ParseFormat(string(d))
	if err != nil {
		return err
	}
	*f = pf
	return nil
}

func (f Format) IsJSON() bool { return f == JSONFormat }
func (f Format) IsYAML() bool { return f == YAMLFormat }
func (f Format) IsText() bool { return f == TextFormat }

// Suffix returns the file extension for this format (including the dot).
func (f Format) Suffix() string {
	switch f {
	case JSONFormat:
		return ".json"
	case YAMLFormat:
		return ".yaml"
	case TextFormat:
		return ".txt"
	default:
		return ""
	}
}

// AllFormats returns all supported formats in preference order.
func AllFormats() []Format {
	return []Format{JSONFormat, YAMLFormat, TextFormat}
}

// FromSuffix returns the format of a file name, defaulting to JSON.
func FromSuffix(name string) Format {
	for _, f := range AllFormats() {
		if strings.HasSuffix(name, f.Suffix()) {
			return f
		}
	}
	if strings.HasSuffix(name, ".yml") {
		return YAMLFormat
	}
	return JSONFormat
}

// Decode parses d into a raw value. Text decodes to the string itself.
func (f Format) Decode(d []byte) (any, error) {
	var v any
	switch f {
	case JSONFormat:
		dec := json.NewDecoder(bytes.NewReader(d))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: json: %w", ErrDecode, err)
		}
		if dec.More() {
			return nil, fmt.Errorf("%w: json: trailing data", ErrDecode)
		}
	case YAMLFormat:
		if err := yaml.Unmarshal(d, &v); err != nil {
			return nil, fmt.Errorf("%w: yaml: %w", ErrDecode, err)
		}
	case TextFormat:
		v = string(d)
	default:
		return nil, fmt.Errorf("%w: %d", ErrBadFormat, f)
	}
	return v, nil
}

// Encode renders the raw value v. JSON output is indented when pretty is
// set; YAML is always block style.
func (f Format) Encode(v any, pretty bool) ([]byte, error) {
	switch f {
	case JSONFormat:
		if pretty {
			return json.MarshalIndent(v, "", "  ")
		}
		return json.Marshal(v)
	case YAMLFormat:
		return yaml.Marshal(v)
	case TextFormat:
		if s, ok := v.(string); ok {
			return []byte(s), nil
		}
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("%w: %d", ErrBadFormat, f)
	}
}
