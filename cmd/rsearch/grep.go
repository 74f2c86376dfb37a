package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kk-code-lab/rsearch/internal/grep"
	"github.com/kk-code-lab/rsearch/internal/search"
)

type grepFlags struct {
	ignoreCase       bool
	multiline        bool
	count            bool
	filesWithMatches bool
	context          int
	maxColumns       int
	maxCount         int
	offset           int
	glob             string
	fileType         string
	noHidden         bool
	engine           string
	inline           bool
	timeout          string
}

func (app *cli) newGrepCmd() *cobra.Command {
	var f grepFlags
	c := &cobra.Command{
		Use:   "grep <pattern> [path]",
		Short: "Search file contents with a regular expression",
		Long: `Search file contents with a regular expression.

  rsearch grep "TODO"                  # search the working directory
  rsearch grep -i "auth.*token" src    # case-insensitive
  rsearch grep -U "func.*\n\s*return"  # matches may span lines
  rsearch grep -m 20 --offset 20 err   # second page of 20 matches
  rsearch grep --engine pcre "foo(?!bar)"

Files are searched in path order. .gitignore, .ignore and .rsearchignore
rules are honoured and .git is never searched.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runGrep(cmd, args, &f)
		},
	}
	fl := c.Flags()
	fl.BoolVarP(&f.ignoreCase, "ignore-case", "i", false, "Ignore case distinctions")
	fl.BoolVarP(&f.multiline, "multiline", "U", false, "Let matches span lines")
	fl.BoolVarP(&f.count, "count", "c", false, "Only print the number of matches per file")
	fl.BoolVar(&f.filesWithMatches, "files-with-matches", false, "Alias of --count")
	fl.IntVarP(&f.context, "context", "C", 0, "Print N lines of context around matches")
	fl.IntVar(&f.maxColumns, "max-columns", 0, "Truncate lines wider than N columns (0 = no limit)")
	fl.IntVarP(&f.maxCount, "max-count", "m", 0, "Stop after N matches in total")
	fl.IntVar(&f.offset, "offset", 0, "Skip the first N matches")
	fl.StringVarP(&f.glob, "glob", "g", "", "Only search files whose path matches the glob")
	fl.StringVarP(&f.fileType, "type", "t", "", "Only search files of a type (go, js, py, ...) or extension")
	fl.BoolVar(&f.noHidden, "no-hidden", false, "Skip hidden files and directories")
	fl.StringVar(&f.engine, "engine", "", "Regex engine: re2 or pcre")
	fl.BoolVar(&f.inline, "inline", false, "Search on the calling goroutine instead of the worker pool")
	fl.StringVar(&f.timeout, "timeout", "", "Give up after this long, e.g. 30s")
	return c
}

func (app *cli) runGrep(cmd *cobra.Command, args []string, f *grepFlags) error {
	req, err := app.grepRequest(cmd, args, f)
	if err != nil {
		return err
	}

	opts := grep.Options{
		MaxWorkers:       app.cfg.MaxWorkers(),
		Inline:           app.cfg.Inline(),
		IdleTimeout:      app.cfg.IdleTimeout(),
		InitTimeout:      app.cfg.InitTimeout(),
		StuckGracePeriod: app.cfg.StuckGracePeriod(),
		Logger:           app.log,
	}
	opts = grep.ApplyEnv(opts)
	if cmd.Flags().Changed("inline") {
		opts.Inline = f.inline
	}
	if f.timeout != "" {
		d, err := parsePositiveDuration(f.timeout)
		if err != nil {
			return fmt.Errorf("--timeout: %w", err)
		}
		opts.Timeout = d
	}

	engine := grep.New(opts)
	defer engine.Close()

	res, err := engine.Grep(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("grep %q: %w", req.Pattern, err)
	}
	app.log.Debugf("searched %d files, %d with matches, %d matches; pool %+v",
		res.FilesSearched, res.FilesWithMatches, res.TotalMatches, engine.Stats())

	if app.jsonOut {
		return app.printJSON(res)
	}

	p := newPrinter(app.stdout, app.useColor())
	display := displayPath(args)
	if req.Mode == search.ModeCount {
		p.counts(res.Matches, display)
	} else {
		p.matches(res.Matches, display, req.Context > 0)
	}
	if res.LimitReached {
		// TotalMatches covers both the skipped and the collected matches, in
		// either mode, so it is where the next page starts.
		_, _ = fmt.Fprintf(app.stderr, "limit reached; continue with --offset %d\n", res.TotalMatches)
	}
	return p.err
}

func (app *cli) grepRequest(cmd *cobra.Command, args []string, f *grepFlags) (search.Request, error) {
	req := search.Request{
		Pattern:    args[0],
		Path:       ".",
		IgnoreCase: f.ignoreCase,
		Multiline:  f.multiline,
		Mode:       search.ModeContent,
		Context:    app.cfg.Context(),
		MaxColumns: app.cfg.MaxColumns(),
		Offset:     f.offset,
		Glob:       f.glob,
		Type:       f.fileType,
		Engine:     search.Engine(app.cfg.Engine()),
	}
	if len(args) > 1 {
		req.Path = args[1]
	}
	if f.count || f.filesWithMatches {
		req.Mode = search.ModeCount
	}

	flags := cmd.Flags()
	if flags.Changed("context") {
		if f.context < 0 {
			return req, fmt.Errorf("context lines (-C) must be >= 0, got %d", f.context)
		}
		req.Context = f.context
	}
	if flags.Changed("max-columns") {
		if f.maxColumns < 0 {
			return req, fmt.Errorf("--max-columns must be >= 0, got %d", f.maxColumns)
		}
		req.MaxColumns = f.maxColumns
	}
	if flags.Changed("max-count") {
		if f.maxCount < 0 {
			return req, fmt.Errorf("--max-count must be >= 0, got %d", f.maxCount)
		}
		n := f.maxCount
		req.MaxCount = &n
	}
	if f.offset < 0 {
		return req, fmt.Errorf("--offset must be >= 0, got %d", f.offset)
	}
	if flags.Changed("engine") {
		engine, err := search.ParseEngine(f.engine)
		if err != nil {
			return req, err
		}
		req.Engine = engine
	}
	hidden := app.cfg.Hidden() && !f.noHidden
	req.Hidden = &hidden
	return req, nil
}

// displayPath maps result paths to what the user typed: relative paths are
// shown under the searched directory and a single-file search shows the file
// argument itself.
func displayPath(args []string) func(string) string {
	arg := "."
	if len(args) > 1 {
		arg = args[1]
	}
	return func(p string) string {
		if filepath.IsAbs(p) {
			return filepath.ToSlash(arg)
		}
		if arg == "." || arg == "" {
			return p
		}
		return strings.TrimSuffix(filepath.ToSlash(arg), "/") + "/" + p
	}
}
