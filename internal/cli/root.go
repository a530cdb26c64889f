// Package cli implements the glazejs command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/crgimenes/glazejs/internal/config"
	"github.com/crgimenes/glazejs/internal/logging"
)

// env is the state shared by every subcommand once the root command has
// loaded the configuration.
type env struct {
	configFile string
	logLevel   string
	logFormat  string

	manager *config.Manager
	log     zerolog.Logger
	stderr  io.Writer
}

// NewRootCommand builds the command tree. Logs go to stderr.
func NewRootCommand(stderr io.Writer) *cobra.Command {
	e := &env{stderr: stderr, log: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "glazejs",
		Short: "Run JavaScript applications in a native webview",
		Long: `glazejs runs a script on an embedded JavaScript runtime and gives it
native webview windows through the global "glaze" module.

Configuration is read from glazejs.toml in the working directory or the
user config directory, then from GLAZEJS_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion", "version", "schema":
				return nil
			}
			if err := e.load(); err != nil {
				return err
			}
			ctx := logging.WithContext(cmd.Context(), e.log)
			cmd.SetContext(logging.WithComponent(ctx, "cli"))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&e.configFile, "config", "", "config file (default: search for glazejs.toml)")
	flags.StringVar(&e.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.StringVar(&e.logFormat, "log-format", "", "log format: console or json")

	root.AddCommand(
		newRunCommand(e),
		newConfigCommand(e),
		newVersionCommand(),
	)
	return root
}

func (e *env) load() error {
	m, err := config.NewManager(config.Options{File: e.configFile})
	if err != nil {
		return err
	}
	if err := m.Load(); err != nil {
		return err
	}
	if e.logLevel != "" {
		if err := m.Set("logging.level", e.logLevel); err != nil {
			return err
		}
	}
	if e.logFormat != "" {
		if err := m.Set("logging.format", e.logFormat); err != nil {
			return err
		}
	}

	cfg := m.Config()
	e.manager = m
	e.log = logging.New(logging.Config{
		Level:      logging.ParseLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		TimeFormat: logging.DefaultConfig().TimeFormat,
		Output:     e.stderr,
	})
	if f := m.File(); f != "" {
		e.log.Debug().Str("file", f).Msg("configuration loaded")
	}
	return nil
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand(os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
