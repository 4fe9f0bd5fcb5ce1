package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/dshills/rewind/internal/tui"
)

func newTUICmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			screen, err := tcell.NewScreen()
			if err != nil {
				return fmt.Errorf("failed to create terminal: %w", err)
			}
			if err := screen.Init(); err != nil {
				return fmt.Errorf("failed to initialize terminal: %w", err)
			}
			defer screen.Fini()

			view := tui.New(screen, env.session)
			err = opts.startWatch(env, func(fn func()) {
				_ = view.Post(func() { // best-effort; event queue may be full
					fn()
					view.SetStatus("config reloaded")
				})
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return view.Run(ctx)
		},
	}
}
