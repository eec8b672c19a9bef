package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write every todo to a JSON Lines file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLocal(cmd); err != nil {
				return err
			}
			b, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer b.Detach()

			n, err := b.ExportJSONL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{"exported": n, "file": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d todos to %s\n", n, args[0])
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load todos from a JSON Lines file",
		Long:  "Insert or replace todos from a JSON Lines file written by export.\nRecords that fail validation are skipped. Watchers see the result as\none change.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLocal(cmd); err != nil {
				return err
			}
			b, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer b.Detach()

			n, err := b.ImportJSONL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{"imported": n, "file": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d todos from %s\n", n, args[0])
			return nil
		},
	}
}
