package demo

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dshills/rewind/internal/history"
)

// ErrUsage is returned for malformed commands.
var ErrUsage = errors.New("usage")

// ErrUnknownCommand is returned for commands Exec does not know.
var ErrUnknownCommand = errors.New("unknown command")

type command struct {
	usage string
	run   func(s *Session, args []string) (string, error)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"add":     {"add N", cmdAdd(MutAdd)},
		"sub":     {"sub N", cmdAdd(MutSub)},
		"text":    {"text LOCALE WORDS...", cmdText},
		"entity":  {"entity VALUE...", cmdEntity},
		"rename":  {"rename ID VALUE...", cmdRename},
		"undo":    {"undo [KEY] [N]", cmdStep(true)},
		"redo":    {"redo [KEY] [N]", cmdStep(false)},
		"goto":    {"goto KEY ID", cmdGoto},
		"clear":   {"clear KEY [keep]", cmdClear},
		"reset":   {"reset KEY", cmdReset},
		"log":     {"log [KEY]", cmdLog},
		"keys":    {"keys", cmdKeys},
		"track":   {"track KEY", cmdTrack},
		"untrack": {"untrack KEY", cmdUntrack},
		"state":   {"state", cmdState},
		"help":    {"help", cmdHelp},
	}
}

// Exec runs one command line and returns its output.
func (s *Session) Exec(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, ok := commands[fields[0]]
	if !ok {
		return "", fmt.Errorf("%w %q, try help", ErrUnknownCommand, fields[0])
	}
	out, err := cmd.run(s, fields[1:])
	if errors.Is(err, ErrUsage) {
		return "", fmt.Errorf("%w: %s", ErrUsage, cmd.usage)
	}
	return out, err
}

func cmdAdd(typ string) func(*Session, []string) (string, error) {
	return func(s *Session, args []string) (string, error) {
		if len(args) != 1 {
			return "", ErrUsage
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return "", ErrUsage
		}
		if err := s.Commit(typ, n); err != nil {
			return "", err
		}
		return fmt.Sprintf("sum = %d", s.State().Sum), nil
	}
}

func cmdText(s *Session, args []string) (string, error) {
	if len(args) < 1 {
		return "", ErrUsage
	}
	p := TextPayload{Locale: args[0], Words: slices.Clone(args[1:])}
	if err := s.Commit(MutText, p); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s = %s", p.Locale, strings.Join(s.State().Texts[p.Locale], " ")), nil
}

func cmdEntity(s *Session, args []string) (string, error) {
	if len(args) == 0 {
		return "", ErrUsage
	}
	e := Entity{ID: uuid.New(), Value: strings.Join(args, " ")}
	if err := s.Commit(MutEntity, e); err != nil {
		return "", err
	}
	return fmt.Sprintf("entity %s = %s", e.ID, e.Value), nil
}

func cmdRename(s *Session, args []string) (string, error) {
	if len(args) < 2 {
		return "", ErrUsage
	}
	id, err := s.findEntity(args[0])
	if err != nil {
		return "", err
	}
	e := Entity{ID: id, Value: strings.Join(args[1:], " ")}
	if err := s.Commit(MutRename, e); err != nil {
		return "", err
	}
	return fmt.Sprintf("entity %s = %s", e.ID, e.Value), nil
}

// findEntity resolves a full uuid or a unique prefix of one.
func (s *Session) findEntity(ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	var found []uuid.UUID
	for _, e := range s.State().Entities {
		if strings.HasPrefix(e.ID.String(), ref) {
			found = append(found, e.ID)
		}
	}
	switch len(found) {
	case 0:
		return uuid.Nil, fmt.Errorf("%w: %s", ErrEntityNotFound, ref)
	case 1:
		return found[0], nil
	default:
		return uuid.Nil, fmt.Errorf("entity prefix %q is ambiguous", ref)
	}
}

func cmdStep(undo bool) func(*Session, []string) (string, error) {
	return func(s *Session, args []string) (string, error) {
		key, n, err := keyAndCount(args)
		if err != nil {
			return "", err
		}
		l, err := s.registry.Ledger(key)
		if err != nil {
			return "", err
		}
		if undo {
			if !l.CanUndo(n) {
				return fmt.Sprintf("%s: nothing to undo", l.Key()), nil
			}
			err = l.Undo(n)
		} else {
			if !l.CanRedo(n) {
				return fmt.Sprintf("%s: nothing to redo", l.Key()), nil
			}
			err = l.Redo(n)
		}
		if err != nil {
			return "", err
		}
		return position(l), nil
	}
}

// keyAndCount parses "[KEY] [N]". A lone number is a count for the
// default key.
func keyAndCount(args []string) (string, int, error) {
	switch len(args) {
	case 0:
		return "", 1, nil
	case 1:
		if n, err := strconv.Atoi(args[0]); err == nil {
			if n < 1 {
				return "", 0, ErrUsage
			}
			return "", n, nil
		}
		return args[0], 1, nil
	case 2:
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return "", 0, ErrUsage
		}
		return args[0], n, nil
	default:
		return "", 0, ErrUsage
	}
}

func cmdGoto(s *Session, args []string) (string, error) {
	if len(args) != 2 {
		return "", ErrUsage
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(args[1], "#"), 10, 64)
	if err != nil {
		return "", ErrUsage
	}
	l, err := s.registry.Ledger(args[0])
	if err != nil {
		return "", err
	}
	if _, err := l.Locate(history.ByID(id)); err != nil {
		return "", err
	}
	if err := l.Goto(history.ByID(id)); err != nil {
		return "", err
	}
	return position(l), nil
}

func cmdClear(s *Session, args []string) (string, error) {
	if len(args) < 1 || len(args) > 2 || (len(args) == 2 && args[1] != "keep") {
		return "", ErrUsage
	}
	l, err := s.registry.Ledger(args[0])
	if err != nil {
		return "", err
	}
	if err := l.ClearHistory(len(args) == 1); err != nil {
		return "", err
	}
	return position(l), nil
}

func cmdReset(s *Session, args []string) (string, error) {
	if len(args) != 1 {
		return "", ErrUsage
	}
	l, err := s.registry.Ledger(args[0])
	if err != nil {
		return "", err
	}
	if err := l.Reset(); err != nil {
		return "", err
	}
	return position(l), nil
}

func cmdLog(s *Session, args []string) (string, error) {
	if len(args) > 1 {
		return "", ErrUsage
	}
	l, err := s.registry.Ledger(args...)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	marker := func(i int) string {
		if i == l.Cursor() {
			return "> "
		}
		return "  "
	}
	fmt.Fprintf(&b, "%sbaseline", marker(-1))
	for i, snap := range l.Snapshots() {
		fmt.Fprintf(&b, "\n%s%s", marker(i), snap)
	}
	return b.String(), nil
}

func cmdKeys(s *Session, args []string) (string, error) {
	if len(args) != 0 {
		return "", ErrUsage
	}
	lines := make([]string, 0, len(s.registry.Keys()))
	for _, key := range s.registry.Keys() {
		l := s.registry.MustLedger(key)
		path, _ := s.codec.Path(key)
		lines = append(lines, fmt.Sprintf("%s (%s): cursor %d of %d", key, path, l.Cursor(), l.Len()))
	}
	return strings.Join(lines, "\n"), nil
}

func cmdTrack(s *Session, args []string) (string, error) {
	if len(args) != 1 {
		return "", ErrUsage
	}
	if err := s.Track(args[0]); err != nil {
		return "", err
	}
	return "tracking " + args[0], nil
}

func cmdUntrack(s *Session, args []string) (string, error) {
	if len(args) != 1 {
		return "", ErrUsage
	}
	if !s.Untrack(args[0]) {
		return "", fmt.Errorf("%q is not tracked", args[0])
	}
	return "untracked " + args[0], nil
}

func cmdState(s *Session, args []string) (string, error) {
	if len(args) != 0 {
		return "", ErrUsage
	}
	data, err := json.MarshalIndent(s.State(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func cmdHelp(*Session, []string) (string, error) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)

	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = "  " + commands[name].usage
	}
	return "commands:\n" + strings.Join(lines, "\n"), nil
}

func position(l interface {
	Key() string
	Cursor() int
	Len() int
}) string {
	return fmt.Sprintf("%s: cursor %d of %d", l.Key(), l.Cursor(), l.Len())
}
