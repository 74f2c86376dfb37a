package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kk-code-lab/rsearch/internal/search"
)

func (app *cli) newFindCmd() *cobra.Command {
	var opts search.FindOptions
	c := &cobra.Command{
		Use:   "find <query> [path]",
		Short: "Find files and directories whose path contains a query",
		Long: `Find files and directories whose path contains a query, ignoring case.

  rsearch find readme          # README.md, docs/readme/, ...
  rsearch find test src        # paths under src containing "test"
  rsearch find --hidden .env   # include dot-files

Directories are printed with a trailing slash.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Query = args[0]
			opts.Path = "."
			if len(args) > 1 {
				opts.Path = args[1]
			}
			return app.runFind(cmd, opts)
		},
	}
	c.Flags().BoolVar(&opts.Hidden, "hidden", false, "Include hidden files and directories")
	c.Flags().BoolVar(&opts.NoGitignore, "no-gitignore", false, "Do not honour ignore files")
	c.Flags().IntVar(&opts.MaxResults, "max-results", search.DefaultMaxFindResults, "Print at most N paths")
	return c
}

func (app *cli) runFind(cmd *cobra.Command, opts search.FindOptions) error {
	if opts.MaxResults < 1 {
		return fmt.Errorf("--max-results must be >= 1, got %d", opts.MaxResults)
	}
	o := search.NewOrchestrator(nil, search.WithLogger(app.log))
	res, err := o.FindPaths(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("find %q: %w", opts.Query, err)
	}

	if app.jsonOut {
		return app.printJSON(res)
	}
	p := newPrinter(app.stdout, app.useColor())
	p.paths(res.Matches)
	if res.TotalMatches > len(res.Matches) {
		_, _ = fmt.Fprintf(app.stderr, "showing %d of %d paths; raise --max-results to see more\n",
			len(res.Matches), res.TotalMatches)
	}
	return p.err
}
