// Package format names the serialization formats understood by the SDK and
// converts between them and raw values.
//
// # Usage
//
//	f, err := format.ParseFormat("yaml")
//	v, err := f.Decode(data)
//	out, err := format.JSONFormat.Encode(v)
//
// Vault values carry a media type instead of a format:
//
//	f, err := format.FromMediaType("application/x-tome")
//
// Decoded numbers are json.Number (JSON) or the integer and float types
// produced by go-yaml (YAML); the tome package normalizes both.
package format
