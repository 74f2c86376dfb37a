package search

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kk-code-lab/rsearch/internal/textutil"
)

// PatternConfig is everything needed to compile a pattern for one search.
type PatternConfig struct {
	Pattern    string
	IgnoreCase bool
	// Multiline applies the pattern to the whole buffer so matches may span
	// lines. Otherwise every line is matched on its own.
	Multiline bool
	Engine    Engine
	// Context is the number of lines reported before and after each match.
	Context int
	// MaxColumns truncates reported lines wider than this many cells.
	MaxColumns int
	// MatchTimeout bounds one pcre match call; zero uses DefaultMatchTimeout.
	MatchTimeout time.Duration
}

// CompiledPattern is a pattern prepared once and reused for every buffer of a
// single search. It must not be shared between concurrent searches.
type CompiledPattern struct {
	cfg     PatternConfig
	matcher Matcher
	closed  bool
}

// Compile prepares cfg. An expression the engine rejects yields a
// *PatternError.
func Compile(cfg PatternConfig) (*CompiledPattern, error) {
	if cfg.Context < 0 {
		cfg.Context = 0
	}
	matcher, err := newMatcher(cfg)
	if err != nil {
		return nil, &PatternError{Pattern: cfg.Pattern, Err: err}
	}
	return &CompiledPattern{cfg: cfg, matcher: matcher}, nil
}

// Close releases the matcher. It is safe to call more than once.
func (p *CompiledPattern) Close() error {
	p.closed = true
	p.matcher = nil
	return nil
}

// HasMatch is a cheap existence check over the whole buffer. It may report
// true for buffers SearchBytes finds nothing in; it never reports false for a
// buffer that has a line match. A matcher error reports true so the caller
// runs SearchBytes and sees the error.
func (p *CompiledPattern) HasMatch(data []byte) bool {
	if p.closed {
		return false
	}
	ok, err := p.matcher.Match(data)
	return ok || err != nil
}

// hit is a match expressed as an inclusive range of line indexes.
type hit struct {
	first, last int
}

// SearchBytes collects matches from data. The first offset matches are
// skipped, then at most maxCount are collected; maxCount < 0 means no limit.
//
// Every non-matching line is reported at most once: as after-context of the
// preceding collected match when it is close enough, otherwise as
// before-context of the next one. Once the limit is reached the after-context
// of the last match is still gathered and scanning stops at the next match.
func (p *CompiledPattern) SearchBytes(data []byte, maxCount, offset int) (FileResult, error) {
	if p.closed {
		return FileResult{Error: ErrPatternClosed.Error()}, ErrPatternClosed
	}

	lines := splitLines(data)
	hits, err := p.newHitSource(data, lines)
	if err != nil {
		return FileResult{Error: err.Error()}, fmt.Errorf("match: %w", err)
	}

	var (
		result  FileResult
		skipped int
		// floor is the last line index already consumed by a match or context.
		floor   = -1
		pending = -1
		lastEnd int
		pos     int
		window  = p.cfg.Context
		n       = len(lines)
	)

	for {
		upto := n - 1
		capped := maxCount >= 0 && len(result.Matches) >= maxCount
		if capped {
			if pending < 0 || window == 0 {
				break
			}
			upto = min(lastEnd+window, n-1)
		}

		h, ok, err := hits.next(pos, upto)
		if err != nil {
			result.MatchCount = skipped + len(result.Matches)
			result.Error = err.Error()
			return result, fmt.Errorf("match: %w", err)
		}

		if pending >= 0 && window > 0 {
			stop := min(lastEnd+window, n-1)
			if ok {
				stop = min(stop, h.first-1)
			}
			result.Matches[pending].ContextAfter = p.contextLines(lines, lastEnd+1, stop)
			floor = max(floor, stop)
		}
		pending = -1

		if !ok || capped {
			break
		}
		pos = h.last + 1

		if skipped < offset {
			skipped++
			floor = h.last
			continue
		}

		match := LineMatch{LineNumber: h.first + 1}
		match.Line, match.Truncated = p.render(lines, h.first, h.last)
		if window > 0 {
			match.ContextBefore = p.contextLines(lines, max(h.first-window, floor+1), h.first-1)
		}
		result.Matches = append(result.Matches, match)
		floor = h.last
		pending = len(result.Matches) - 1
		lastEnd = h.last
	}

	result.MatchCount = skipped + len(result.Matches)
	result.LimitReached = maxCount >= 0 && len(result.Matches) >= maxCount
	return result, nil
}

func (p *CompiledPattern) render(lines [][]byte, first, last int) (string, bool) {
	var text string
	if first == last {
		text = lineText(lines[first])
	} else {
		parts := make([]string, 0, last-first+1)
		for i := first; i <= last; i++ {
			parts = append(parts, lineText(lines[i]))
		}
		text = strings.Join(parts, "\n")
	}
	return textutil.Truncate(text, p.cfg.MaxColumns)
}

func (p *CompiledPattern) contextLines(lines [][]byte, from, to int) []ContextLine {
	if from > to {
		return nil
	}
	out := make([]ContextLine, 0, to-from+1)
	for i := from; i <= to; i++ {
		text, _ := textutil.Truncate(lineText(lines[i]), p.cfg.MaxColumns)
		out = append(out, ContextLine{LineNumber: i + 1, Line: text})
	}
	return out
}

// lineText trims trailing whitespace and replaces invalid UTF-8.
func lineText(line []byte) string {
	line = bytes.TrimRight(line, " \t\r\n\v\f")
	if utf8.Valid(line) {
		return string(line)
	}
	return strings.TrimRight(strings.ToValidUTF8(string(line), string(utf8.RuneError)), " \t")
}

// splitLines returns the lines of data without their terminators. A trailing
// newline does not start another line.
func splitLines(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	lines := bytes.Split(data, []byte{'\n'})
	if len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	return lines
}

type hitSource interface {
	// next returns the first hit starting in [from, upto].
	next(from, upto int) (hit, bool, error)
}

func (p *CompiledPattern) newHitSource(data []byte, lines [][]byte) (hitSource, error) {
	if !p.cfg.Multiline {
		return &lineHits{matcher: p.matcher, lines: lines}, nil
	}
	spans, err := p.matcher.FindAll(data)
	if err != nil {
		return nil, err
	}
	return &spanHits{hits: spansToHits(spans, lines)}, nil
}

type lineHits struct {
	matcher Matcher
	lines   [][]byte
}

func (s *lineHits) next(from, upto int) (hit, bool, error) {
	for i := from; i <= upto && i < len(s.lines); i++ {
		ok, err := s.matcher.Match(bytes.TrimSuffix(s.lines[i], []byte{'\r'}))
		if err != nil {
			return hit{}, false, err
		}
		if ok {
			return hit{first: i, last: i}, true, nil
		}
	}
	return hit{}, false, nil
}

type spanHits struct {
	hits []hit
	idx  int
}

func (s *spanHits) next(from, upto int) (hit, bool, error) {
	for s.idx < len(s.hits) && s.hits[s.idx].first < from {
		s.idx++
	}
	if s.idx >= len(s.hits) || s.hits[s.idx].first > upto {
		return hit{}, false, nil
	}
	h := s.hits[s.idx]
	s.idx++
	return h, true, nil
}

// spansToHits maps byte spans to line ranges, merging spans whose line ranges
// overlap.
func spansToHits(spans [][2]int, lines [][]byte) []hit {
	if len(lines) == 0 || len(spans) == 0 {
		return nil
	}
	starts := make([]int, len(lines))
	offset := 0
	for i, line := range lines {
		starts[i] = offset
		offset += len(line) + 1
	}
	lineOf := func(pos int) int {
		idx := sort.Search(len(starts), func(i int) bool { return starts[i] > pos }) - 1
		return min(max(idx, 0), len(lines)-1)
	}

	var hits []hit
	for _, span := range spans {
		end := span[1]
		if end > span[0] {
			end--
		}
		h := hit{first: lineOf(span[0]), last: lineOf(end)}
		if n := len(hits); n > 0 && h.first <= hits[n-1].last {
			hits[n-1].last = max(hits[n-1].last, h.last)
			continue
		}
		hits = append(hits, h)
	}
	return hits
}
