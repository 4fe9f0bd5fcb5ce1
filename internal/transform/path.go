// Package transform provides serialize/deserialize pairs that store only
// part of a state per history key.
package transform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrInvalidPayload is returned when Deserialize receives a payload that
// PathCodec did not produce.
var ErrInvalidPayload = errors.New("invalid path payload")

var null = []byte("null")

// PathCodec stores, for each history key, the JSON value found at a gjson
// path of the state. Restoring writes that value back into the live state
// with sjson, leaving everything else as it is. Keys without a path store
// the whole state.
//
// Paths use the gjson/sjson syntax; dots inside object keys must be
// escaped with a backslash.
type PathCodec[S any] struct {
	paths map[string]string
}

// NewPathCodec creates a codec from a key to path mapping.
func NewPathCodec[S any](paths map[string]string) *PathCodec[S] {
	return &PathCodec[S]{paths: maps.Clone(paths)}
}

// Path returns the path configured for key.
func (c *PathCodec[S]) Path(key string) (string, bool) {
	p, ok := c.paths[key]
	return p, ok && p != ""
}

// SetPath maps key to path. An empty path makes the key store the whole
// state.
func (c *PathCodec[S]) SetPath(key, path string) {
	if c.paths == nil {
		c.paths = make(map[string]string)
	}
	c.paths[key] = path
}

// Serialize returns the raw JSON at key's path as a json.RawMessage. A
// missing value is stored as null.
func (c *PathCodec[S]) Serialize(key string, state S) (any, error) {
	doc, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("serialize %q: %w", key, err)
	}

	path, ok := c.Path(key)
	if !ok {
		return json.RawMessage(doc), nil
	}

	res := gjson.GetBytes(doc, path)
	if !res.Exists() {
		return json.RawMessage(bytes.Clone(null)), nil
	}
	return json.RawMessage([]byte(res.Raw)), nil
}

// Deserialize writes payload into current at key's path and decodes the
// result. A null payload deletes the path.
func (c *PathCodec[S]) Deserialize(key string, payload any, current S) (S, error) {
	var out S

	raw, err := rawPayload(payload)
	if err != nil {
		return out, fmt.Errorf("deserialize %q: %w", key, err)
	}

	path, ok := c.Path(key)
	if !ok {
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, fmt.Errorf("deserialize %q: %w", key, err)
		}
		return out, nil
	}

	doc, err := json.Marshal(current)
	if err != nil {
		return out, fmt.Errorf("deserialize %q: %w", key, err)
	}

	if bytes.Equal(bytes.TrimSpace(raw), null) {
		doc, err = sjson.DeleteBytes(doc, path)
	} else {
		doc, err = sjson.SetRawBytes(doc, path, raw)
	}
	if err != nil {
		return out, fmt.Errorf("deserialize %q: set %s: %w", key, path, err)
	}

	if err := json.Unmarshal(doc, &out); err != nil {
		return out, fmt.Errorf("deserialize %q: %w", key, err)
	}
	return out, nil
}

func rawPayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	case nil:
		return null, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidPayload, payload)
	}
}
