package script

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/rewind/internal/multihistory"
)

const localeScript = `
function filter(m)
  return m.type ~= "noop"
end

function resolve(m)
  if m.type == "text" then
    return m.payload.locale
  end
  if m.type == "both" then
    return {"en-US", "de-DE"}
  end
  if m.type == "none" then
    return nil
  end
  return "counter"
end
`

type textPayload struct {
	Locale string `json:"locale"`
	Words  []string
	hidden int
}

func TestStateDoString(t *testing.T) {
	s := NewState()
	defer s.Close()

	if err := s.DoString(`x = 1 + 1`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if got := s.L.GetGlobal("x"); got != lua.LNumber(2) {
		t.Errorf("x = %v, want 2", got)
	}

	if err := s.DoString(`invalid lua code !!!`); err == nil {
		t.Error("DoString() with syntax error should fail")
	}
}

func TestSandboxRemovesLoaders(t *testing.T) {
	s := NewState()
	defer s.Close()

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "io", "os", "debug"} {
		if v := s.L.GetGlobal(name); v != lua.LNil {
			t.Errorf("%s should be nil in the sandbox, got %s", name, v.Type())
		}
	}
	for _, name := range []string{"string", "table", "math", "pairs"} {
		if v := s.L.GetGlobal(name); v == lua.LNil {
			t.Errorf("%s should be available", name)
		}
	}
}

func TestPrintGoesToLogger(t *testing.T) {
	var buf bytes.Buffer
	s := NewState(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	defer s.Close()

	if err := s.DoString(`print("hello", 42)`); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "hello\t42") && !strings.Contains(buf.String(), `hello\t42`) {
		t.Errorf("log output = %q", buf.String())
	}
}

func TestCall(t *testing.T) {
	s := NewState()
	defer s.Close()

	if err := s.DoString(`function pair(a) return a, a * 2 end`); err != nil {
		t.Fatal(err)
	}

	ret, err := s.Call(context.Background(), "pair", lua.LNumber(3))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(ret) != 2 || ret[0] != lua.LNumber(3) || ret[1] != lua.LNumber(6) {
		t.Errorf("Call() = %v, want [3 6]", ret)
	}
	if top := s.L.GetTop(); top != 0 {
		t.Errorf("stack top = %d after Call, want 0", top)
	}

	if _, err := s.Call(context.Background(), "missing"); !errors.Is(err, ErrNotFunction) {
		t.Errorf("Call(missing) error = %v, want ErrNotFunction", err)
	}
}

func TestCallRuntimeError(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.DoString(`function boom() error("bad") end`)
	if _, err := s.Call(context.Background(), "boom"); err == nil {
		t.Error("Call() should report the Lua error")
	}
	if top := s.L.GetTop(); top != 0 {
		t.Errorf("stack top = %d after failed Call, want 0", top)
	}
}

func TestCallTimeout(t *testing.T) {
	s := NewState(WithCallTimeout(20 * time.Millisecond))
	defer s.Close()

	s.DoString(`function spin() while true do end end`)
	if _, err := s.Call(context.Background(), "spin"); err == nil {
		t.Error("Call() should time out")
	}
}

func TestClosedState(t *testing.T) {
	s := NewState()
	s.Close()
	s.Close()

	if err := s.DoString(`x = 1`); !errors.Is(err, ErrStateClosed) {
		t.Errorf("DoString() error = %v, want ErrStateClosed", err)
	}
	if _, err := s.Call(context.Background(), "f"); !errors.Is(err, ErrStateClosed) {
		t.Errorf("Call() error = %v, want ErrStateClosed", err)
	}
	if s.HasFunction("f") {
		t.Error("closed state has no functions")
	}
}

func TestHooksFilter(t *testing.T) {
	h, err := Load(localeScript)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer h.Close()

	tests := []struct {
		typ  string
		want bool
	}{
		{"add", true},
		{"noop", false},
	}
	for _, tt := range tests {
		got, err := h.Filter(multihistory.Mutation{Type: tt.typ})
		if err != nil {
			t.Fatalf("Filter(%s) error = %v", tt.typ, err)
		}
		if got != tt.want {
			t.Errorf("Filter(%s) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestHooksResolve(t *testing.T) {
	h, err := Load(localeScript)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer h.Close()

	tests := []struct {
		name string
		m    multihistory.Mutation
		want []string
	}{
		{"string", multihistory.Mutation{Type: "add", Payload: 2}, []string{"counter"}},
		{"from payload", multihistory.Mutation{Type: "text", Payload: textPayload{Locale: "de-DE"}}, []string{"de-DE"}},
		{"from map payload", multihistory.Mutation{Type: "text", Payload: map[string]any{"locale": "en-US"}}, []string{"en-US"}},
		{"table", multihistory.Mutation{Type: "both"}, []string{"en-US", "de-DE"}},
		{"nil", multihistory.Mutation{Type: "none"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.Resolve(tt.m)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHooksResolveBadReturn(t *testing.T) {
	h, err := Load(`function resolve(m) return 42 end`)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if _, err := h.Resolve(multihistory.Mutation{Type: "x"}); err == nil {
		t.Error("Resolve() should reject a number")
	}

	h2, _ := Load(`function resolve(m) return {"a", 1} end`)
	defer h2.Close()
	if _, err := h2.Resolve(multihistory.Mutation{Type: "x"}); err == nil {
		t.Error("Resolve() should reject non-string keys")
	}
}

func TestInstall(t *testing.T) {
	h, err := Load(`function resolve(m) return "side" end`)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if h.HasFilter() {
		t.Error("script defines no filter")
	}

	opts := multihistory.DefaultOptions[int]()
	opts.Keys = []string{"main", "side"}
	Install(h, &opts)

	keep, _ := opts.Filter(multihistory.Mutation{Type: "x"})
	if !keep {
		t.Error("default filter should be kept")
	}
	keys, err := opts.Resolve(multihistory.Mutation{Type: "x"})
	if err != nil || !reflect.DeepEqual(keys, []string{"side"}) {
		t.Errorf("Resolve() = %v, %v", keys, err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hooks.lua")
	if err := os.WriteFile(path, []byte(localeScript), 0o600); err != nil {
		t.Fatal(err)
	}

	h, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	defer h.Close()
	if !h.HasFilter() || !h.HasResolve() {
		t.Error("both hooks should be defined")
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Error("LoadFile() of a missing file should fail")
	}
}

func TestBridgeRoundTrip(t *testing.T) {
	s := NewState()
	defer s.Close()

	lv := ToLuaValue(s.L, textPayload{Locale: "en-US", Words: []string{"a", "b"}, hidden: 1})
	got := ToGoValue(lv)

	want := map[string]any{
		"locale": "en-US",
		"Words":  []any{"a", "b"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ToGoValue() = %#v, want %#v", got, want)
	}

	if ToGoValue(ToLuaValue(s.L, nil)) != nil {
		t.Error("nil should round trip to nil")
	}
	if got := ToGoValue(ToLuaValue(s.L, 2.5)); got != 2.5 {
		t.Errorf("2.5 round trip = %v", got)
	}
	if got := ToGoValue(ToLuaValue(s.L, uint8(7))); got != int64(7) {
		t.Errorf("uint8 round trip = %#v", got)
	}
}
