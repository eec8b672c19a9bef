// Package cli implements the livetodo command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/livetodo/internal/config"
	"github.com/mesh-intelligence/livetodo/internal/logger"
	"github.com/mesh-intelligence/livetodo/internal/paths"
	"github.com/mesh-intelligence/livetodo/internal/rpc"
	"github.com/mesh-intelligence/livetodo/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	server    string
	logLevel  string
	jsonMode  bool
}

// app is the state shared by the commands of one invocation.
type app struct {
	flags     rootFlags
	configDir string
	cfg       config.Config
}

// NewRootCmd creates the top-level "livetodo" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:     "livetodo",
		Short:   "A local-first todo list with live queries",
		Long:    "livetodo keeps a todo list in an embedded SQLite database and repaints\nevery view as soon as the list changes, locally or over a websocket.",
		Version: Version,
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: per-user config dir)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: per-user data dir)")
	pf.StringVar(&a.flags.server, "server", "", "use a livetodo server at this websocket URL instead of the local database")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newServeCmd(a),
		newAddCmd(a),
		newListCmd(a),
		newToggleCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newClearCmd(a),
		newWatchCmd(a),
		newTUICmd(a),
		newExportCmd(a),
		newImportCmd(a),
	)

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errUsage, err)
	})
	for _, c := range root.Commands() {
		if c.Args != nil {
			c.Args = usageArgs(c.Args)
		}
	}
	return root
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		return nil
	}
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one invocation and returns its exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// userErrors are failures caused by the invocation rather than the system.
var userErrors = []error{
	types.ErrNotFound,
	types.ErrInvalidID,
	types.ErrInvalidDescription,
	types.ErrInvalidQuery,
	types.ErrBackendUnknown,
	types.ErrBackendEmpty,
	config.ErrLogFormat,
	errUsage,
}

// errUsage marks argument and flag mistakes.
var errUsage = errors.New("usage")

func exitCode(err error) int {
	for _, ue := range userErrors {
		if errors.Is(err, ue) {
			return exitUserError
		}
	}
	return exitSysError
}

// setup resolves directories, loads configuration and initialises logging
// before any subcommand runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	dir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolving config dir: %w", err)
	}
	a.configDir = dir

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	if a.flags.logLevel != "" {
		cfg.LogLevel = a.flags.logLevel
	}
	if a.flags.server != "" {
		cfg.ServerURL = a.flags.server
	}
	a.cfg = cfg

	logger.Init(cfg.LogLevel, cfg.LogFormat == config.LogFormatJSON, cmd.ErrOrStderr())
	return nil
}

func (a *app) dataDir() (string, error) {
	return paths.ResolveDataDir(a.flags.dataDir, a.cfg.DataDir)
}

func (a *app) remote() bool {
	return a.cfg.ServerURL != ""
}

// openSource connects to the configured server, or attaches the local
// database when no server is configured. The returned function releases it.
func (a *app) openSource(ctx context.Context) (types.Source, func(), error) {
	if a.remote() {
		conn, err := rpc.Dial(ctx, a.cfg.ServerURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("using remote source", "url", a.cfg.ServerURL)
		return conn, func() { _ = conn.Close() }, nil
	}

	b, err := a.attachBackend()
	if err != nil {
		return nil, nil, err
	}
	return b, func() { _ = b.Detach() }, nil
}

// requireLocal rejects commands that only work on the local database.
func (a *app) requireLocal(cmd *cobra.Command) error {
	if a.remote() {
		return fmt.Errorf("%w: %s needs the local database; drop --server", errUsage, cmd.Name())
	}
	return nil
}
