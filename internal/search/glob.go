package search

import (
	"fmt"
	"path"
	"strings"
)

// GlobFilter matches root-relative slash paths against a glob. A glob with no
// slash matches at any depth. Braces expand to alternatives: "*.{ts,tsx}".
type GlobFilter struct {
	alternatives [][]string
}

// NewGlobFilter compiles glob. An empty glob yields nil, which matches
// everything.
func NewGlobFilter(glob string) (*GlobFilter, error) {
	glob = strings.TrimSpace(strings.ReplaceAll(glob, "\\", "/"))
	if glob == "" {
		return nil, nil
	}

	expanded, err := expandBraces(glob)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidGlob, glob, err)
	}

	filter := &GlobFilter{}
	for _, alt := range expanded {
		if !strings.Contains(alt, "/") {
			alt = "**/" + alt
		}
		segments := splitGlobSegments(alt)
		for _, segment := range segments {
			if _, err := path.Match(segment, ""); err != nil {
				return nil, fmt.Errorf("%w %q: %v", ErrInvalidGlob, glob, err)
			}
		}
		if len(segments) > 0 {
			filter.alternatives = append(filter.alternatives, segments)
		}
	}
	return filter, nil
}

// Match reports whether rel is selected.
func (f *GlobFilter) Match(rel string) bool {
	if f == nil {
		return true
	}
	components := strings.Split(strings.Trim(rel, "/"), "/")
	for _, segments := range f.alternatives {
		if matchSegments(segments, components) {
			return true
		}
	}
	return false
}

const maxBraceAlternatives = 1024

// expandBraces expands the first top-level {a,b} group and recurses, so nested
// and repeated groups multiply out.
func expandBraces(glob string) ([]string, error) {
	open := -1
	depth := 0
	for i := 0; i < len(glob); i++ {
		switch glob[i] {
		case '\\':
			i++
		case '{':
			if depth == 0 {
				open = i
			}
			depth++
		case '}':
			if depth == 0 {
				return nil, fmt.Errorf("unmatched '}'")
			}
			depth--
			if depth == 0 {
				return expandGroup(glob, open, i)
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unmatched '{'")
	}
	return []string{glob}, nil
}

func expandGroup(glob string, open, closing int) ([]string, error) {
	prefix, body, suffix := glob[:open], glob[open+1:closing], glob[closing+1:]

	var options []string
	depth, start := 0, 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				options = append(options, body[start:i])
				start = i + 1
			}
		}
	}
	options = append(options, body[start:])

	var out []string
	for _, option := range options {
		expanded, err := expandBraces(prefix + option + suffix)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
		if len(out) > maxBraceAlternatives {
			return nil, fmt.Errorf("too many brace alternatives")
		}
	}
	return out, nil
}
