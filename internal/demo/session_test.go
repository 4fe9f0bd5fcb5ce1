package demo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/rewind/internal/config"
	"github.com/dshills/rewind/internal/history"
	"github.com/dshills/rewind/internal/multihistory"
)

func newSession(t *testing.T, cfg *config.Config, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func run(t *testing.T, s *Session, lines ...string) string {
	t.Helper()
	var out string
	for _, line := range lines {
		var err error
		out, err = s.Exec(line)
		require.NoError(t, err, line)
	}
	return out
}

func TestCounterUndoRedo(t *testing.T) {
	s := newSession(t, nil)

	assert.Equal(t, "sum = 6", run(t, s, "add 1", "add 2", "add 3"))

	assert.Equal(t, "counter: cursor 1 of 3", run(t, s, "undo"))
	assert.Equal(t, 3, s.State().Sum)

	run(t, s, "undo counter 2")
	assert.Equal(t, 0, s.State().Sum)
	assert.Equal(t, "counter: nothing to undo", run(t, s, "undo"))

	run(t, s, "redo counter")
	assert.Equal(t, 1, s.State().Sum)
	run(t, s, "redo 2")
	assert.Equal(t, 6, s.State().Sum)
	assert.Equal(t, "counter: nothing to redo", run(t, s, "redo"))
}

func TestRecordAfterUndoTruncates(t *testing.T) {
	s := newSession(t, nil)

	run(t, s, "add 1", "add 2", "undo", "sub 5")
	assert.Equal(t, -4, s.State().Sum)

	l := s.Registry().MustLedger(KeyCounter)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 1, l.Cursor())
	assert.False(t, l.CanRedo(1))
}

func TestKeysAreIndependent(t *testing.T) {
	s := newSession(t, nil)

	run(t, s, "text en-US hello world", "add 5", "text de-DE hallo")
	assert.Equal(t, []string{"hello", "world"}, s.State().Texts["en-US"])

	run(t, s, "undo en-US")
	_, ok := s.State().Texts["en-US"]
	assert.False(t, ok, "the baseline had no en-US text")
	assert.Equal(t, []string{"hallo"}, s.State().Texts["de-DE"])
	assert.Equal(t, 5, s.State().Sum)

	run(t, s, "redo en-US")
	assert.Equal(t, []string{"hello", "world"}, s.State().Texts["en-US"])
}

func TestUntrackedLocale(t *testing.T) {
	s := newSession(t, nil)

	_, err := s.Exec("text fr-FR salut")
	require.ErrorIs(t, err, multihistory.ErrUnknownHistoryKey)
	assert.Equal(t, []string{"salut"}, s.State().Texts["fr-FR"], "the store commits before recording")

	assert.Equal(t, "tracking fr-FR", run(t, s, "track fr-FR"))
	run(t, s, "text fr-FR bonjour", "undo fr-FR")
	assert.Equal(t, []string{"salut"}, s.State().Texts["fr-FR"], "tracking captured the live baseline")

	_, err = s.Exec("track fr-FR")
	assert.ErrorIs(t, err, multihistory.ErrHistoryExists)

	assert.Equal(t, "untracked fr-FR", run(t, s, "untrack fr-FR"))
	_, err = s.Exec("untrack fr-FR")
	assert.Error(t, err)
}

func TestEntities(t *testing.T) {
	s := newSession(t, nil)

	out := run(t, s, "entity first value")
	require.Len(t, s.State().Entities, 1)
	e := s.State().Entities[0]
	assert.Equal(t, "entity "+e.ID.String()+" = first value", out)

	run(t, s, "rename "+e.ID.String()[:8]+" renamed")
	assert.Equal(t, "renamed", s.State().Entities[0].Value)

	run(t, s, "undo entities")
	assert.Equal(t, "first value", s.State().Entities[0].Value)
	assert.Equal(t, e.ID, s.State().Entities[0].ID)

	_, err := s.Exec("rename 00000000-0000-0000-0000-000000000000 x")
	assert.ErrorIs(t, err, ErrEntityNotFound)
	_, err = s.Exec("rename zzz x")
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestGotoAndLog(t *testing.T) {
	s := newSession(t, nil)
	run(t, s, "add 1", "add 2", "add 3")

	assert.Equal(t, "counter: cursor 0 of 3", run(t, s, "goto counter #1"))
	assert.Equal(t, 1, s.State().Sum)

	want := strings.Join([]string{
		"  baseline",
		"> #1 add",
		"  #2 add",
		"  #3 add",
	}, "\n")
	assert.Equal(t, want, run(t, s, "log counter"))
	assert.Equal(t, want, run(t, s, "log"), "log defaults to the first key")

	_, err := s.Exec("goto counter 9")
	var serr *history.SelectorError
	assert.ErrorAs(t, err, &serr)
}

func TestClearAndReset(t *testing.T) {
	s := newSession(t, nil)

	run(t, s, "add 2", "add 3")
	assert.Equal(t, "counter: cursor -1 of 0", run(t, s, "clear counter"))
	assert.Equal(t, 5, s.State().Sum)

	run(t, s, "add 1", "reset counter")
	assert.Equal(t, 5, s.State().Sum, "clear moved the baseline")

	run(t, s, "add 4", "clear counter keep", "reset counter")
	assert.Equal(t, 5, s.State().Sum, "clear keep leaves the baseline")
}

func TestKeysAndState(t *testing.T) {
	s := newSession(t, nil)
	run(t, s, "add 1")

	out := run(t, s, "keys")
	assert.Contains(t, out, "counter (sum): cursor 0 of 1")
	assert.Contains(t, out, `en-US (texts.en-US): cursor -1 of 0`)

	out = run(t, s, "state")
	assert.Contains(t, out, `"sum": 1`)
}

func TestUsageErrors(t *testing.T) {
	s := newSession(t, nil)

	for _, line := range []string{
		"add",
		"add x",
		"undo counter x",
		"undo 0",
		"goto counter",
		"clear counter now",
		"reset",
		"text",
		"entity",
		"rename x",
	} {
		_, err := s.Exec(line)
		assert.ErrorIs(t, err, ErrUsage, line)
	}

	_, err := s.Exec("jump")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = s.Exec("undo nope")
	assert.ErrorIs(t, err, multihistory.ErrUnknownHistoryKey)

	out, err := s.Exec("   ")
	assert.NoError(t, err)
	assert.Empty(t, out)

	help := run(t, s, "help")
	assert.Contains(t, help, "undo [KEY] [N]")
}

func TestConfiguredPaths(t *testing.T) {
	cfg := config.Default()
	cfg.Keys = []string{"everything"}
	cfg.Paths = map[string]string{"everything": ""}

	s := newSession(t, cfg)
	require.NoError(t, s.Registry().SetResolve(multihistory.ResolveTo("everything")))
	run(t, s, "add 3", "text en-US hi", "undo everything 2")

	assert.Equal(t, 0, s.State().Sum)
	assert.Empty(t, s.State().Texts, "an empty path records the whole state")
}

func TestInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Capacity = 0
	_, err := NewSession(cfg)
	var verrs *config.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestScriptHooks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hooks.lua")
	src := `
function filter(m)
  return m.type ~= "sub"
end

function resolve(m)
  if m.type == "text" then
    return { m.payload.locale, "counter" }
  end
  return "counter"
end
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	cfg := config.Default()
	cfg.Script = path
	s := newSession(t, cfg)

	run(t, s, "add 2", "sub 1")
	assert.Equal(t, 1, s.Registry().MustLedger(KeyCounter).Len(), "sub is filtered out")

	run(t, s, "text en-US hi")
	assert.Equal(t, 2, s.Registry().MustLedger(KeyCounter).Len())
	assert.Equal(t, 1, s.Registry().MustLedger("en-US").Len())
}

func TestScriptLoadError(t *testing.T) {
	cfg := config.Default()
	cfg.Script = filepath.Join(t.TempDir(), "missing.lua")
	_, err := NewSession(cfg)
	assert.Error(t, err)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newSession(t, nil, WithRegisterer(reg))

	run(t, s, "add 1", "add 1", "undo")

	n, err := testutil.GatherAndCount(reg, "rewind_history_changes_total")
	require.NoError(t, err)
	assert.Positive(t, n)

	require.NoError(t, s.Close())
	n, err = testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Zero(t, n, "Close unregisters the metrics")
}

func TestApply(t *testing.T) {
	s := newSession(t, nil)
	run(t, s, "add 1", "add 2", "add 3")

	cfg := config.Default()
	cfg.Capacity = 2
	cfg.Debug = true
	require.NoError(t, s.Apply(cfg))

	l := s.Registry().MustLedger(KeyCounter)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 2, l.Capacity())

	cfg.Capacity = 0
	assert.Error(t, s.Apply(cfg))
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "sum", DefaultPath(KeyCounter))
	assert.Equal(t, "entities", DefaultPath(KeyEntities))
	assert.Equal(t, "texts.en-US", DefaultPath("en-US"))
	assert.Equal(t, `texts.a\.b`, DefaultPath("a.b"))
}
