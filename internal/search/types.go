package search

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects what a search reports per file.
type Mode string

const (
	// ModeContent reports every collected match with its line text.
	ModeContent Mode = "content"
	// ModeCount reports one entry per file carrying only the match tally.
	ModeCount Mode = "count"
)

// ParseMode accepts "content", "count" and the "filesWithMatches" alias of
// count. An empty string means content.
func ParseMode(value string) (Mode, error) {
	switch strings.TrimSpace(value) {
	case "", string(ModeContent):
		return ModeContent, nil
	case string(ModeCount), "filesWithMatches":
		return ModeCount, nil
	}
	return "", fmt.Errorf("unknown output mode %q", value)
}

// Request describes one search. Offset and MaxCount apply to the global match
// stream in traversal order, not per file.
type Request struct {
	Path       string `json:"path"`
	Pattern    string `json:"pattern"`
	IgnoreCase bool   `json:"ignoreCase,omitempty"`
	Multiline  bool   `json:"multiline,omitempty"`
	Mode       Mode   `json:"mode,omitempty"`
	Context    int    `json:"context,omitempty"`
	MaxColumns int    `json:"maxColumns,omitempty"`
	MaxCount   *int   `json:"maxCount,omitempty"`
	Offset     int    `json:"offset,omitempty"`
	Glob       string `json:"glob,omitempty"`
	Type       string `json:"type,omitempty"`
	Hidden     *bool  `json:"hidden,omitempty"`
	Engine     Engine `json:"engine,omitempty"`
}

// IncludeHidden reports the effective hidden-file policy; unset means true.
func (r Request) IncludeHidden() bool {
	return r.Hidden == nil || *r.Hidden
}

func (r Request) patternConfig() PatternConfig {
	cfg := PatternConfig{
		Pattern:    r.Pattern,
		IgnoreCase: r.IgnoreCase,
		Multiline:  r.Multiline,
		Engine:     r.Engine,
		Context:    r.Context,
		MaxColumns: r.MaxColumns,
	}
	if r.Mode == ModeCount {
		cfg.Context = 0
	}
	return cfg
}

// ContextLine is one line printed around a match.
type ContextLine struct {
	LineNumber int    `json:"lineNumber"`
	Line       string `json:"line"`
}

// Match is one reported entry of a Result. Count-mode entries have a zero
// LineNumber and carry MatchCount instead of line text.
type Match struct {
	Path          string        `json:"path"`
	LineNumber    int           `json:"lineNumber,omitempty"`
	Line          string        `json:"line,omitempty"`
	ContextBefore []ContextLine `json:"contextBefore,omitempty"`
	ContextAfter  []ContextLine `json:"contextAfter,omitempty"`
	Truncated     bool          `json:"truncated,omitempty"`
	MatchCount    int           `json:"matchCount,omitempty"`
}

// Result aggregates a whole search.
//
// LimitReached reports that the search stopped because MaxCount matches were
// collected. Nothing is searched past the cap, so it is also true when the
// cap happens to equal the number of matches left; when it is false, the
// result holds every match after Offset.
type Result struct {
	Matches          []Match `json:"matches"`
	TotalMatches     int     `json:"totalMatches"`
	FilesWithMatches int     `json:"filesWithMatches"`
	FilesSearched    int     `json:"filesSearched"`
	LimitReached     bool    `json:"limitReached"`
}

// LineMatch is a match inside one buffer.
type LineMatch struct {
	LineNumber    int           `json:"lineNumber"`
	Line          string        `json:"line"`
	ContextBefore []ContextLine `json:"contextBefore,omitempty"`
	ContextAfter  []ContextLine `json:"contextAfter,omitempty"`
	Truncated     bool          `json:"truncated,omitempty"`
}

// FileResult is the outcome of searching one buffer. LimitReached means the
// cap was hit, as for Result.
type FileResult struct {
	Matches      []LineMatch `json:"matches"`
	MatchCount   int         `json:"matchCount"`
	LimitReached bool        `json:"limitReached"`
	Error        string      `json:"error,omitempty"`
}

var (
	// ErrPathNotFound is returned when the search root cannot be stat'd.
	ErrPathNotFound = errors.New("path not found")
	// ErrInvalidGlob is returned for a glob filter that cannot be parsed.
	ErrInvalidGlob = errors.New("invalid glob pattern")
	// ErrPatternClosed is returned when a released pattern is used.
	ErrPatternClosed = errors.New("compiled pattern already closed")
)

// PatternError reports a pattern the selected engine refused to compile.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}
