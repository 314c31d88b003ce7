package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/nodesync/internal/config"
	"github.com/roach88/nodesync/internal/logging"
)

// RootOptions holds global flags for all commands, and the configuration
// and logger resolved from them before any subcommand runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the nodesync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "nodesync",
		Short: "nodesync - reconcile node graphs from edit-scripts",
		Long: `nodesync drives diff engines through the mutation stack machine,
journals every applied edit-script and replays journals to verify them.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.resolve(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "",
		"path to config file (default "+config.DefaultPath+" if present)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolve loads the config file and builds the logger.
// An explicit --config must exist; the default path is optional.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	o.Config = config.Default()

	path := o.ConfigPath
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			path = config.DefaultPath
		}
	}
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid config", err)
		}
		o.Config = cfg
	}

	level, err := logging.ParseLevel(o.Config.LogLevel)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.Logger = logging.New(cmd.ErrOrStderr(), logging.Options{
		Level:   level,
		JSON:    o.Config.LogJSON,
		Journal: o.Config.LogJournal,
	})
	return nil
}

// logger returns the resolved logger, or a discarding one when a command
// runs without the root's pre-run hook.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return logging.Discard()
	}
	return o.Logger
}

// database returns flag, or the configured journal path when flag is empty.
func (o *RootOptions) database(flag string) string {
	if flag != "" {
		return flag
	}
	return o.Config.DB
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
