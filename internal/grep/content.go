package grep

import (
	"github.com/kk-code-lab/rsearch/internal/search"
)

// ContentOptions configures SearchContent.
type ContentOptions struct {
	Pattern    string
	IgnoreCase bool
	Multiline  bool
	Engine     search.Engine
	Mode       search.Mode
	Context    int
	MaxColumns int
	// MaxCount caps collected matches; nil means no cap.
	MaxCount *int
	Offset   int
}

// SearchContent searches text that is already in memory. Failures are
// reported in the result's Error field.
func SearchContent(text []byte, opts ContentOptions) search.FileResult {
	cfg := search.PatternConfig{
		Pattern:    opts.Pattern,
		IgnoreCase: opts.IgnoreCase,
		Multiline:  opts.Multiline,
		Engine:     opts.Engine,
		Context:    opts.Context,
		MaxColumns: opts.MaxColumns,
	}
	if opts.Mode == search.ModeCount {
		cfg.Context = 0
	}
	pattern, err := search.Compile(cfg)
	if err != nil {
		return search.FileResult{Matches: []search.LineMatch{}, Error: err.Error()}
	}
	defer func() {
		_ = pattern.Close()
	}()

	maxCount := -1
	if opts.MaxCount != nil {
		maxCount = max(*opts.MaxCount, 0)
	}
	res, err := pattern.SearchBytes(text, maxCount, max(opts.Offset, 0))
	if err != nil {
		return search.FileResult{Matches: []search.LineMatch{}, Error: err.Error()}
	}
	if res.Matches == nil {
		res.Matches = []search.LineMatch{}
	}
	return res
}

// HasMatch reports whether pattern matches anywhere in text.
func HasMatch(text []byte, pattern string, ignoreCase, multiline bool) (bool, error) {
	compiled, err := search.Compile(search.PatternConfig{
		Pattern:    pattern,
		IgnoreCase: ignoreCase,
		Multiline:  multiline,
	})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = compiled.Close()
	}()
	return compiled.HasMatch(text), nil
}
