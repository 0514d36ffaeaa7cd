package bigdict

import (
	"encoding/json"

	gojson "github.com/goccy/go-json"
)

// Serializer converts application values to and from the opaque byte blobs
// the store persists. Implementations must be safe for concurrent use.
//
// The serializer's name is recorded in the store metadata at creation time
// and validated on every open, so a store written with one codec is never
// silently read with another.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// GoJSON is a JSON serializer backed by github.com/goccy/go-json.
type GoJSON struct{}

func (GoJSON) Marshal(v any) ([]byte, error) { return gojson.Marshal(v) }

func (GoJSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

// Name returns the serializer's stable name ("go-json").
func (GoJSON) Name() string { return "go-json" }

// JSON is the standard-library JSON serializer. Byte-compatible with GoJSON
// for the types both accept; useful when the extra dependency is unwanted in
// a reader.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the serializer's stable name ("json").
func (JSON) Name() string { return "json" }

// DefaultSerializer is used when no WithSerializer option is given.
var DefaultSerializer Serializer = GoJSON{}

// SerializerByName returns a built-in serializer by its stable name. Custom
// Serializer implementations are matched by name against the metadata record
// when passed via WithSerializer.
func SerializerByName(name string) (Serializer, bool) {
	switch name {
	case "go-json":
		return GoJSON{}, true
	case "json":
		return JSON{}, true
	default:
		return nil, false
	}
}
