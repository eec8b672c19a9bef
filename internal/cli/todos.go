package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/livetodo/internal/client"
	"github.com/mesh-intelligence/livetodo/internal/render"
)

// withClient opens the source for one command and closes it afterwards.
func (a *app) withClient(ctx context.Context, fn func(c *client.Client) error) error {
	source, release, err := a.openSource(ctx)
	if err != nil {
		return err
	}
	defer release()

	c := client.New(source)
	defer c.Close(context.WithoutCancel(ctx))
	return fn(c)
}

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <description>...",
		Short: "Add a todo",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withClient(ctx, func(c *client.Client) error {
				t, err := c.Add(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return a.printTodo(cmd.OutOrStdout(), "added", t)
			})
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List todos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withClient(ctx, func(c *client.Client) error {
				todos, err := c.Todos(ctx)
				if err != nil {
					return err
				}
				if a.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), todos)
				}
				render.New(cmd.OutOrStdout()).Paint(todos)
				return nil
			})
		},
	}
}

func newToggleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Mark a todo done, or not done again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return a.withClient(ctx, func(c *client.Client) error {
				t, err := c.Toggle(ctx, id)
				if err != nil {
					return err
				}
				return a.printTodo(cmd.OutOrStdout(), "toggled", t)
			})
		},
	}
}

func newUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update <id> <description>...",
		Short: "Change the description of a todo",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return a.withClient(ctx, func(c *client.Client) error {
				t, err := c.Update(ctx, id, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				return a.printTodo(cmd.OutOrStdout(), "updated", t)
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a todo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return a.withClient(ctx, func(c *client.Client) error {
				if err := c.Delete(ctx, id); err != nil {
					return err
				}
				if a.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]int64{"deleted": id})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
				return nil
			})
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every completed todo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withClient(ctx, func(c *client.Client) error {
				n, err := c.ClearCompleted(ctx)
				if err != nil {
					return err
				}
				if a.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]int{"removed": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d completed\n", n)
				return nil
			})
		},
	}
}
