package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kk-code-lab/rsearch/internal/config"
)

func (app *cli) newConfigCmd() *cobra.Command {
	var local bool
	c := &cobra.Command{
		Use:   "config [key] [value]",
		Short: "View or set config values",
		Long: `View or set config values.

  rsearch config                       # show every setting
  rsearch config search.engine         # show one setting
  rsearch config pool.max_workers 2    # change a setting

Configuration locations:
  Global: ~/.rsearch/config.yaml
  Local:  .rsearch/config.yaml

Uses local config if it exists, otherwise global.
Writes go to the same place reads come from.
Use --local to use local config instead.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return app.runConfig(args, local)
		},
	}
	c.Flags().BoolVar(&local, "local", false, "Use local config (.rsearch/config.yaml)")
	return c
}

func (app *cli) runConfig(args []string, local bool) error {
	var cfg *config.Config
	var err error
	if local {
		cfg, err = config.LoadScope(config.ScopeLocal)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	scope := scopeName(cfg.Scope())

	switch len(args) {
	case 0:
		if app.jsonOut {
			return app.printJSON(cfg.All())
		}
		for _, key := range config.ValidKeys() {
			value, _ := cfg.Get(key)
			suffix := ""
			if !cfg.IsSet(key) {
				suffix = " (default)"
			}
			_, _ = fmt.Fprintf(app.stdout, "%s: %s%s\n", key, value, suffix)
		}

	case 1:
		value, err := cfg.Get(args[0])
		if err != nil {
			return fmt.Errorf("config get %q: %w", args[0], err)
		}
		if app.jsonOut {
			return app.printJSON(map[string]string{args[0]: value})
		}
		_, _ = fmt.Fprintln(app.stdout, value)

	case 2:
		if err := cfg.Set(args[0], args[1]); err != nil {
			return fmt.Errorf("config set %q: %w", args[0], err)
		}
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("config save: %w", err)
		}
		app.log.Infof("%s updated in %s config", args[0], scope)
		_, _ = fmt.Fprintf(app.stdout, "%s = %s (%s)\n", args[0], args[1], scope)
	}
	return nil
}
