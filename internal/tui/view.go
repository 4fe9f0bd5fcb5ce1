// Package tui is a terminal front end for a demo session.
//
// Keys:
//
//	+ / -     add or subtract one
//	u / r     undo or redo the selected history key
//	c / x     clear or reset the selected history key
//	tab       select the next history key
//	q, esc    quit
package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/rewind/internal/demo"
	"github.com/dshills/rewind/internal/notify"
)

var (
	styleTitle    = tcell.StyleDefault.Bold(true)
	styleSelected = tcell.StyleDefault.Reverse(true)
	styleCursor   = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleError    = tcell.StyleDefault.Foreground(tcell.ColorRed)
)

// View renders a session and turns key presses into commands.
type View struct {
	screen  tcell.Screen
	session *demo.Session

	selected string
	status   string
	failed   bool
	changes  int

	sub *notify.Subscription
}

// New creates a view drawing on an initialized screen.
func New(screen tcell.Screen, s *demo.Session) *View {
	v := &View{
		screen:   screen,
		session:  s,
		selected: s.Registry().DefaultKey(),
	}
	v.sub = s.Notifier().Subscribe(func(notify.Change) {
		v.changes++
	})
	return v
}

// Selected returns the selected history key.
func (v *View) Selected() string {
	return v.selected
}

// Status returns the last command output or error.
func (v *View) Status() string {
	return v.status
}

// Run draws and handles events until the user quits, the screen is
// finalized or ctx is done. An interrupt event carrying a func() runs it
// on the loop goroutine; use Post to schedule work that touches the
// session from elsewhere.
func (v *View) Run(ctx context.Context) error {
	defer v.sub.Unsubscribe()

	stop := context.AfterFunc(ctx, func() {
		_ = v.screen.PostEvent(tcell.NewEventInterrupt(nil)) // best-effort; queue may be full
	})
	defer stop()

	v.Draw()
	for {
		switch ev := v.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventResize:
			v.screen.Sync()
		case *tcell.EventKey:
			if v.HandleKey(ev) {
				return nil
			}
		case *tcell.EventInterrupt:
			if fn, ok := ev.Data().(func()); ok {
				fn()
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		v.Draw()
	}
}

// Post schedules fn to run on the Run loop.
func (v *View) Post(fn func()) error {
	return v.screen.PostEvent(tcell.NewEventInterrupt(fn))
}

// SetStatus replaces the status line.
func (v *View) SetStatus(status string) {
	v.status = status
	v.failed = false
}

// HandleKey applies one key press and reports whether the view should quit.
func (v *View) HandleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyTab:
		v.selectNext()
		return false
	case tcell.KeyRune:
	default:
		return false
	}

	switch ev.Rune() {
	case 'q':
		return true
	case '+':
		v.exec("add 1")
	case '-':
		v.exec("sub 1")
	case 'u':
		v.exec("undo " + v.selected)
	case 'r':
		v.exec("redo " + v.selected)
	case 'c':
		v.exec("clear " + v.selected)
	case 'x':
		v.exec("reset " + v.selected)
	}
	return false
}

func (v *View) exec(line string) {
	out, err := v.session.Exec(line)
	v.failed = err != nil
	if err != nil {
		v.status = err.Error()
		return
	}
	v.status = out
}

func (v *View) selectNext() {
	keys := v.session.Registry().Keys()
	if len(keys) == 0 {
		return
	}
	i := slices.Index(keys, v.selected)
	v.selected = keys[(i+1)%len(keys)]
}

// Draw renders the whole screen.
func (v *View) Draw() {
	v.screen.Clear()
	width, height := v.screen.Size()

	state := v.session.State()
	v.put(0, 0, width, styleTitle, fmt.Sprintf("rewind  sum=%d  entities=%d  changes=%d",
		state.Sum, len(state.Entities), v.changes))

	row := 2
	reg := v.session.Registry()
	for _, key := range reg.Keys() {
		if row >= height-2 {
			break
		}
		l := reg.MustLedger(key)
		style := tcell.StyleDefault
		if key == v.selected {
			style = styleSelected
		}
		v.put(0, row, width, style, fmt.Sprintf("%-12s cursor %d of %d", key, l.Cursor(), l.Len()))
		row++
	}

	row++
	if l, err := reg.Ledger(v.selected); err == nil {
		lines := []string{"baseline"}
		for _, snap := range l.Snapshots() {
			lines = append(lines, snap.String())
		}
		for i, line := range lines {
			if row >= height-1 {
				break
			}
			style := tcell.StyleDefault
			if i-1 == l.Cursor() {
				style = styleCursor
				line = "> " + line
			} else {
				line = "  " + line
			}
			v.put(0, row, width, style, line)
			row++
		}
	}

	if height > 0 {
		style := tcell.StyleDefault
		if v.failed {
			style = styleError
		}
		status := strings.ReplaceAll(v.status, "\n", " ")
		v.put(0, height-1, width, style, status)
	}

	v.screen.Show()
}

func (v *View) put(x, y, width int, style tcell.Style, text string) {
	for _, r := range text {
		if x >= width {
			return
		}
		v.screen.SetContent(x, y, r, nil, style)
		x++
	}
}
