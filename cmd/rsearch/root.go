package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kk-code-lab/rsearch/internal/config"
	"github.com/kk-code-lab/rsearch/internal/logger"
)

// cli carries state shared by every subcommand.
type cli struct {
	stdout   io.Writer
	stderr   io.Writer
	logLevel string
	jsonOut  bool

	log *logger.ConsoleLogger
	cfg *config.Config
	// color forces colour on or off; nil means detect from stdout.
	color *bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	app := &cli{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "rsearch",
		Short: "Search file contents and paths",
		Long: `rsearch searches file trees with regular expressions.

  rsearch grep "TODO" src          # matching lines
  rsearch grep -c -t go "func "    # matches per file
  rsearch find config              # paths containing "config"
  rsearch config pool.max_workers  # show a setting

Settings are read from .rsearch/config.yaml when it exists, otherwise from
~/.rsearch/config.yaml.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&app.logLevel, "log-level", "warn", "Log level: trace, debug, info, warn, error")
	root.PersistentFlags().BoolVar(&app.jsonOut, "json", false, "Print results as JSON")

	root.AddCommand(app.newGrepCmd(), app.newFindCmd(), app.newConfigCmd())
	return root
}

func (app *cli) setup(cmd *cobra.Command) error {
	if _, ok := logger.ParseLevel(app.logLevel); !ok {
		return fmt.Errorf("invalid log level %q", app.logLevel)
	}
	app.log = logger.NewConsoleLogger(app.stderr, app.logLevel)

	if cmd.Name() == "config" {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	app.cfg = cfg
	app.log.Debugf("loaded config (%s)", scopeName(cfg.Scope()))
	return nil
}

func (app *cli) printJSON(v any) error {
	enc := json.NewEncoder(app.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (app *cli) useColor() bool {
	if app.color != nil {
		return *app.color
	}
	return logger.IsTerminal(app.stdout)
}

func scopeName(scope config.Scope) string {
	if scope == config.ScopeLocal {
		return "local"
	}
	return "global"
}
