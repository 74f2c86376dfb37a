package search

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// Engine names a regular expression implementation.
type Engine string

const (
	// EngineRE2 uses Go's regexp package: linear time, no backreferences.
	EngineRE2 Engine = "re2"
	// EnginePCRE uses a backtracking engine with look-around and
	// backreferences. Matching is bounded by a per-call timeout.
	EnginePCRE Engine = "pcre"
)

// DefaultMatchTimeout bounds a single pcre match call.
const DefaultMatchTimeout = 2 * time.Second

// ParseEngine validates an engine name. Empty means EngineRE2.
func ParseEngine(value string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(value))) {
	case "", EngineRE2:
		return EngineRE2, nil
	case EnginePCRE:
		return EnginePCRE, nil
	}
	return "", fmt.Errorf("unknown regex engine %q", value)
}

// Matcher is the raw regex capability. It knows nothing about lines: Match
// answers whether data contains a match and FindAll returns the byte spans of
// every non-overlapping match in order.
type Matcher interface {
	Match(data []byte) (bool, error)
	FindAll(data []byte) ([][2]int, error)
}

func newMatcher(cfg PatternConfig) (Matcher, error) {
	engine, err := ParseEngine(string(cfg.Engine))
	if err != nil {
		return nil, err
	}
	if engine == EnginePCRE {
		return newPCREMatcher(cfg)
	}
	return newRE2Matcher(cfg)
}

type re2Matcher struct {
	re *regexp.Regexp
}

func newRE2Matcher(cfg PatternConfig) (*re2Matcher, error) {
	flags := "(?m)"
	if cfg.IgnoreCase {
		flags = "(?mi)"
	}
	re, err := regexp.Compile(flags + cfg.Pattern)
	if err != nil {
		return nil, err
	}
	return &re2Matcher{re: re}, nil
}

func (m *re2Matcher) Match(data []byte) (bool, error) {
	return m.re.Match(data), nil
}

func (m *re2Matcher) FindAll(data []byte) ([][2]int, error) {
	found := m.re.FindAllIndex(data, -1)
	spans := make([][2]int, len(found))
	for i, loc := range found {
		spans[i] = [2]int{loc[0], loc[1]}
	}
	return spans, nil
}

type pcreMatcher struct {
	re *regexp2.Regexp
}

func newPCREMatcher(cfg PatternConfig) (*pcreMatcher, error) {
	opts := regexp2.RegexOptions(regexp2.Multiline)
	if cfg.IgnoreCase {
		opts |= regexp2.IgnoreCase
	}
	re, err := regexp2.Compile(cfg.Pattern, opts)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = DefaultMatchTimeout
	if cfg.MatchTimeout > 0 {
		re.MatchTimeout = cfg.MatchTimeout
	}
	return &pcreMatcher{re: re}, nil
}

func (m *pcreMatcher) Match(data []byte) (bool, error) {
	return m.re.MatchString(string(data))
}

// FindAll converts regexp2's rune positions back to byte offsets. Matches
// arrive in order, so one forward cursor serves all of them.
func (m *pcreMatcher) FindAll(data []byte) ([][2]int, error) {
	text := string(data)
	cursor := runeCursor{text: text}
	var spans [][2]int

	match, err := m.re.FindStringMatch(text)
	for err == nil && match != nil {
		start := cursor.byteOffset(match.Index)
		end := cursor.byteOffset(match.Index + match.Length)
		spans = append(spans, [2]int{start, end})
		match, err = m.re.FindNextMatch(match)
	}
	if err != nil {
		return nil, err
	}
	return spans, nil
}

type runeCursor struct {
	text  string
	runes int
	bytes int
}

func (c *runeCursor) byteOffset(runeIndex int) int {
	for c.runes < runeIndex && c.bytes < len(c.text) {
		_, width := utf8.DecodeRuneInString(c.text[c.bytes:])
		c.bytes += width
		c.runes++
	}
	return c.bytes
}
