package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const prompt = "rewind> "

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run [FILE]",
		Short: "Execute commands from FILE or standard input",
		Long: `Execute session commands, one per line, from FILE or standard input.
Lines starting with # are ignored and "quit" stops early. Type "help" for
the list of commands.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			var mu sync.Mutex
			err = opts.startWatch(env, func(fn func()) {
				mu.Lock()
				defer mu.Unlock()
				fn()
			})
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			interactive := false
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			} else if f, ok := in.(*os.File); ok {
				interactive = term.IsTerminal(int(f.Fd()))
			}

			return runLines(in, cmd.OutOrStdout(), cmd.ErrOrStderr(), interactive, func(line string) (string, error) {
				mu.Lock()
				defer mu.Unlock()
				return env.session.Exec(line)
			})
		},
	}
}

// runLines feeds each line of in to exec. Command errors are reported on
// errOut and do not stop the run.
func runLines(in io.Reader, out, errOut io.Writer, interactive bool, exec func(string) (string, error)) error {
	sc := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, prompt)
		}
		if !sc.Scan() {
			break
		}

		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case line == "quit" || line == "exit":
			return nil
		}

		res, err := exec(line)
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			continue
		}
		if res != "" {
			fmt.Fprintln(out, res)
		}
	}
	if interactive {
		fmt.Fprintln(out)
	}
	return sc.Err()
}
