package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	newLogger(slog.LevelInfo, &buf).Info("hello")
	assert.Contains(t, buf.String(), "component=rewind")

	buf.Reset()
	newLogger(slog.LevelWarn, &buf).Info("hidden")
	assert.Empty(t, buf.String())
}

func TestRunLines(t *testing.T) {
	in := strings.NewReader("# comment\n\nadd 1\nbad\nadd 2\nquit\nadd 3\n")
	var out, errOut bytes.Buffer
	var seen []string

	err := runLines(in, &out, &errOut, false, func(line string) (string, error) {
		seen = append(seen, line)
		if line == "bad" {
			return "", errors.New("nope")
		}
		return "ok " + line, nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"add 1", "bad", "add 2"}, seen)
	assert.Equal(t, "ok add 1\nok add 2\n", out.String())
	assert.Equal(t, "error: nope\n", errOut.String())
}

func TestRunLinesInteractivePrompts(t *testing.T) {
	var out bytes.Buffer
	err := runLines(strings.NewReader("x\n"), &out, &bytes.Buffer{}, true, func(string) (string, error) {
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, prompt+prompt+"\n", out.String())
}

func TestRunCommandStdin(t *testing.T) {
	out, errOut, err := execute(t, "add 2\nadd 3\nundo\nlog counter\ntext xx-XX hi\n", "run")
	require.NoError(t, err)

	assert.Contains(t, out, "sum = 5")
	assert.Contains(t, out, "counter: cursor 0 of 2")
	assert.Contains(t, out, "> #1 add")
	assert.Contains(t, errOut, `"xx-XX" is not a valid history key`)
}

func TestRunCommandFileAndConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "rewind.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("capacity: 1\nkeys: [counter]\n"), 0o600))
	script := filepath.Join(dir, "commands.txt")
	require.NoError(t, os.WriteFile(script, []byte("add 1\nadd 1\nadd 1\nkeys\n"), 0o600))

	out, _, err := execute(t, "", "--config", cfgPath, "run", script)
	require.NoError(t, err)
	assert.Contains(t, out, "counter (sum): cursor 0 of 1")
}

func TestRunCommandErrors(t *testing.T) {
	_, _, err := execute(t, "", "run", filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, _, err = execute(t, "", "--log-level", "loud", "run")
	assert.Error(t, err)

	_, _, err = execute(t, "", "--watch", "run")
	assert.EqualError(t, err, "--watch needs --config")

	_, _, err = execute(t, "", "run", "a", "b")
	assert.Error(t, err)
}

func TestRunCommandWatch(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "rewind.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("capacity = 2\nkeys = [\"counter\"]\n"), 0o600))

	out, _, err := execute(t, "add 1\nkeys\n", "--config", cfgPath, "--watch", "run")
	require.NoError(t, err)
	assert.Contains(t, out, "counter (sum): cursor 0 of 1")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REWIND_KEYS", "counter")
	out, _, err := execute(t, "keys\n", "run")
	require.NoError(t, err)
	assert.Equal(t, "counter (sum): cursor -1 of 0\n", out)
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "rewind dev\nCommit: unknown\nBuilt: unknown\n", out)
}
