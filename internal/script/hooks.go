package script

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/rewind/internal/multihistory"
)

// Global names of the hook functions a script may define.
const (
	FilterFunc  = "filter"
	ResolveFunc = "resolve"
)

// Hooks exposes the filter and resolve functions of a loaded script.
//
// The mutation is passed as a table {type = ..., payload = ...}. filter
// returns a truthy value to record the mutation. resolve returns a key, a
// list of keys, or nil for none.
type Hooks struct {
	state *State
}

// Load runs source in a new sandboxed state.
func Load(source string, opts ...StateOption) (*Hooks, error) {
	s := NewState(opts...)
	if err := s.DoString(source); err != nil {
		s.Close()
		return nil, fmt.Errorf("load script: %w", err)
	}
	return &Hooks{state: s}, nil
}

// LoadFile runs the Lua file at path in a new sandboxed state.
func LoadFile(path string, opts ...StateOption) (*Hooks, error) {
	s := NewState(opts...)
	if err := s.DoFile(path); err != nil {
		s.Close()
		return nil, fmt.Errorf("load script %s: %w", path, err)
	}
	return &Hooks{state: s}, nil
}

// HasFilter reports whether the script defines filter.
func (h *Hooks) HasFilter() bool {
	return h.state.HasFunction(FilterFunc)
}

// HasResolve reports whether the script defines resolve.
func (h *Hooks) HasResolve() bool {
	return h.state.HasFunction(ResolveFunc)
}

// Filter calls the script's filter function.
func (h *Hooks) Filter(m multihistory.Mutation) (bool, error) {
	if h.state.closed {
		return false, ErrStateClosed
	}
	ret, err := h.state.Call(context.Background(), FilterFunc, h.mutation(m))
	if err != nil {
		return false, err
	}
	if len(ret) == 0 {
		return false, nil
	}
	return lua.LVAsBool(ret[0]), nil
}

// Resolve calls the script's resolve function.
func (h *Hooks) Resolve(m multihistory.Mutation) ([]string, error) {
	if h.state.closed {
		return nil, ErrStateClosed
	}
	ret, err := h.state.Call(context.Background(), ResolveFunc, h.mutation(m))
	if err != nil {
		return nil, err
	}
	if len(ret) == 0 {
		return nil, nil
	}

	switch v := ret[0].(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LString:
		return []string{string(v)}, nil
	case *lua.LTable:
		var keys []string
		var bad lua.LValue
		// ForEach walks the array part in order
		v.ForEach(func(_, val lua.LValue) {
			if s, ok := val.(lua.LString); ok {
				keys = append(keys, string(s))
			} else if bad == nil {
				bad = val
			}
		})
		if bad != nil {
			return nil, fmt.Errorf("resolve %q: key must be a string, got %s", m.Type, bad.Type())
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("resolve %q: want a string or a table, got %s", m.Type, v.Type())
	}
}

// Install replaces the filter and resolve options with the script's
// functions where the script defines them.
func Install[S any](h *Hooks, opts *multihistory.Options[S]) {
	if h.HasFilter() {
		opts.Filter = h.Filter
	}
	if h.HasResolve() {
		opts.Resolve = h.Resolve
	}
}

// Close releases the Lua state.
func (h *Hooks) Close() {
	h.state.Close()
}

func (h *Hooks) mutation(m multihistory.Mutation) *lua.LTable {
	L := h.state.L
	t := L.NewTable()
	t.RawSetString("type", lua.LString(m.Type))
	t.RawSetString("payload", ToLuaValue(L, m.Payload))
	return t
}
