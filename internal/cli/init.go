package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/livetodo/internal/config"
	"github.com/mesh-intelligence/livetodo/internal/sqlite"
	store "github.com/mesh-intelligence/livetodo/pkg/sqlite"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize livetodo storage",
		Long:  "Write a default config.yaml if there is none, then create the database\nand its schema. Running init again changes nothing.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLocal(cmd); err != nil {
				return err
			}
			dataDir, err := a.dataDir()
			if err != nil {
				return fmt.Errorf("resolving data dir: %w", err)
			}

			cfg := a.cfg
			cfg.DataDir = dataDir
			cfg.ServerURL = ""
			created, err := config.WriteDefault(a.configDir, cfg)
			if err != nil {
				return err
			}

			b := store.NewBackend()
			if err := b.Attach(a.cfg.StorageConfig(dataDir)); err != nil {
				return fmt.Errorf("attaching backend: %w", err)
			}
			if err := b.Detach(); err != nil {
				return fmt.Errorf("finalizing storage: %w", err)
			}

			out := cmd.OutOrStdout()
			if created {
				fmt.Fprintf(out, "wrote %s/%s\n", a.configDir, config.FileExt)
			}
			fmt.Fprintf(out, "livetodo initialized in %s\n", dataDir)
			return nil
		},
	}
}

// attachBackend resolves the data directory and attaches a SQLite backend.
// The caller must Detach it.
func (a *app) attachBackend() (*sqlite.Backend, error) {
	dataDir, err := a.dataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data dir: %w", err)
	}

	b := sqlite.NewBackend()
	if err := b.Attach(a.cfg.StorageConfig(dataDir)); err != nil {
		return nil, fmt.Errorf("attaching backend: %w", err)
	}
	return b, nil
}
