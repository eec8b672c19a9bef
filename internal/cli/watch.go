package cli

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/livetodo/internal/client"
	"github.com/mesh-intelligence/livetodo/internal/logger"
	"github.com/mesh-intelligence/livetodo/internal/render"
	"github.com/mesh-intelligence/livetodo/internal/ui"
	"github.com/mesh-intelligence/livetodo/pkg/types"
)

// doner is implemented by sources that can go away underneath a watcher,
// such as an RPC connection.
type doner interface {
	Done() <-chan struct{}
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		noClear bool
		renders int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Repaint the todo list whenever it changes",
		Long:  "Subscribe to the todo list and repaint it after every change until\ninterrupted. With --json every snapshot is printed as one JSON line.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			source, release, err := a.openSource(ctx)
			if err != nil {
				return err
			}
			defer release()

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			paint := a.painter(cmd, noClear)
			seen := 0
			frames := make(chan struct{}, 1)
			c := client.New(source)
			unsubscribe, err := c.SubscribeTodos(ctx, func(todos []types.Todo) {
				paint(todos)
				seen++
				if renders > 0 && seen >= renders {
					select {
					case frames <- struct{}{}:
					default:
					}
				}
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := unsubscribe(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("unsubscribing", "error", err)
				}
			}()

			var gone <-chan struct{}
			if d, ok := source.(doner); ok {
				gone = d.Done()
			}
			select {
			case <-ctx.Done():
			case <-frames:
			case <-gone:
				logger.Warn("connection to server lost")
				return types.ErrClosed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noClear, "no-clear", false, "append each snapshot instead of clearing the screen")
	cmd.Flags().IntVar(&renders, "renders", 0, "exit after this many renders (0 runs until interrupted)")
	return cmd
}

// painter returns the render callback for watch.
func (a *app) painter(cmd *cobra.Command, noClear bool) func([]types.Todo) {
	out := cmd.OutOrStdout()
	if a.flags.jsonMode {
		enc := json.NewEncoder(out)
		return func(todos []types.Todo) {
			if err := enc.Encode(todos); err != nil {
				logger.Warn("writing snapshot", "error", err)
			}
		}
	}

	var opts []render.Option
	if !noClear {
		opts = append(opts, render.WithClear())
	}
	return render.New(out, opts...).Paint
}

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Interactive todo list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.withClient(ctx, func(c *client.Client) error {
				return ui.Run(ctx, c, ui.Options{
					Input:     cmd.InOrStdin(),
					Output:    cmd.OutOrStdout(),
					AltScreen: true,
				})
			})
		},
	}
}
