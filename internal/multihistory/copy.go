package multihistory

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// detach returns a deep copy of v that shares no memory with it, made by
// a JSON round trip into a fresh value of v's dynamic type. Only exported,
// JSON-encodable data survives the copy.
func detach(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("copy %T: %w", v, err)
	}
	out := reflect.New(reflect.TypeOf(v))
	if err := json.Unmarshal(data, out.Interface()); err != nil {
		return nil, fmt.Errorf("copy %T: %w", v, err)
	}
	return out.Elem().Interface(), nil
}

// detachState is detach for a statically typed state.
func detachState[S any](state S) (S, error) {
	var out S
	data, err := json.Marshal(state)
	if err != nil {
		return out, fmt.Errorf("copy %T: %w", state, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("copy %T: %w", state, err)
	}
	return out, nil
}

// codec adapts the registry's transforms to history.Codec and makes every
// result an inert copy. The transforms are read on each call so that
// setters take effect immediately.
type codec[S any] struct {
	r *Registry[S]
}

func (c codec[S]) Serialize(key string, state S) (any, error) {
	payload, err := c.r.opts.Serialize(key, state)
	if err != nil {
		return nil, err
	}
	return detach(payload)
}

func (c codec[S]) Deserialize(key string, payload any, current S) (S, error) {
	state, err := c.r.opts.Deserialize(key, payload, current)
	if err != nil {
		var zero S
		return zero, err
	}
	return detachState(state)
}
