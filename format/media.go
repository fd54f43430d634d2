package format

import (
	"fmt"
	"mime"
)

// Media types of vault values.
const (
	MediaTome  = "application/x-tome"
	MediaJSON  = "application/json"
	MediaYAML  = "application/x-yaml"
	MediaYAML2 = "text/yaml"
	MediaText  = "text/plain"
)

var mediaFormats = map[string]Format{
	MediaTome:  JSONFormat,
	MediaJSON:  JSONFormat,
	MediaYAML:  YAMLFormat,
	MediaYAML2: YAMLFormat,
	MediaText:  TextFormat,
}

// FromMediaType returns the format carrying payloads of media type mt.
// Parameters such as charset are ignored.
func FromMediaType(mt string) (Format, error) {
	base, _, err := mime.ParseMediaType(mt)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrMediaType, mt, err)
	}
	f, ok := mediaFormats[base]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMediaType, mt)
	}
	return f, nil
}
