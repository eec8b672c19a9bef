package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/livetodo/internal/logger"
	"github.com/mesh-intelligence/livetodo/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local database over websocket RPC",
		Long:  "Open the database, create the schema if needed and serve todo operations\nand live queries on /rpc, plus /healthz, /readyz and /metrics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLocal(cmd); err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Addr
			}

			b, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer func() {
				if err := b.Detach(); err != nil {
					logger.Error("detaching backend", "error", err)
				}
			}()

			gin.SetMode(gin.ReleaseMode)
			srv := server.New(b, b, server.Options{
				Addr:          addr,
				AllowedOrigin: a.cfg.AllowedOrigin,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger.Info("serving todos", "database", b.Path())
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: addr from config)")
	return cmd
}
