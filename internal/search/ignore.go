package search

import (
	"path"
	"strings"
)

// IgnoreRules is an ordered set of gitignore patterns. The last rule matching
// a path decides whether it is ignored, so a later "!pattern" re-includes.
type IgnoreRules struct {
	rules []ignoreRule
}

type ignoreRule struct {
	// base is the slash directory, relative to the walk root, holding the file
	// the rule came from. Empty for the root and for global files.
	base string
	// prefix is the walk root relative to an ancestor ignore file's directory.
	prefix   string
	segments []string
	negate   bool
	dirOnly  bool
}

// NewIgnoreRules returns an empty rule set.
func NewIgnoreRules() *IgnoreRules {
	return &IgnoreRules{}
}

// Clone copies the rule set so a subdirectory can extend it without touching
// its parent's rules.
func (r *IgnoreRules) Clone() *IgnoreRules {
	if r == nil {
		return NewIgnoreRules()
	}
	return &IgnoreRules{rules: append([]ignoreRule(nil), r.rules...)}
}

// Len reports the number of parsed rules.
func (r *IgnoreRules) Len() int {
	return len(r.rules)
}

// Add parses the content of an ignore file located in base.
func (r *IgnoreRules) Add(content, base string) {
	base = strings.Trim(path.Clean("/"+strings.ReplaceAll(base, "\\", "/")), "/")
	for _, line := range strings.Split(content, "\n") {
		if rule, ok := parseIgnoreLine(strings.TrimSuffix(line, "\r"), base); ok {
			r.rules = append(r.rules, rule)
		}
	}
}

func parseIgnoreLine(line, base string) (ignoreRule, bool) {
	line = trimUnescapedSpaces(line)
	if line == "" || line[0] == '#' {
		return ignoreRule{}, false
	}

	rule := ignoreRule{base: base}
	if line[0] == '!' {
		rule.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		rule.dirOnly = true
		line = strings.TrimRight(line, "/")
	}

	// A slash anywhere but the end anchors the pattern to its base.
	anchored := strings.Contains(line, "/")
	line = strings.TrimPrefix(line, "/")
	if line == "" {
		return ignoreRule{}, false
	}

	segments := splitGlobSegments(line)
	if !anchored && segments[0] != "**" {
		segments = append([]string{"**"}, segments...)
	}
	rule.segments = segments
	return rule, true
}

// trimUnescapedSpaces drops trailing spaces unless the last one is escaped.
func trimUnescapedSpaces(line string) string {
	end := len(line)
	for end > 0 && line[end-1] == ' ' {
		backslashes := 0
		for i := end - 2; i >= 0 && line[i] == '\\'; i-- {
			backslashes++
		}
		if backslashes%2 == 1 {
			break
		}
		end--
	}
	return line[:end]
}

// addAncestor parses an ignore file from a directory above the walk root.
// prefix is the walk root's slash path relative to that directory.
func (r *IgnoreRules) addAncestor(content, prefix string) {
	prefix = strings.Trim(prefix, "/")
	for _, line := range strings.Split(content, "\n") {
		if rule, ok := parseIgnoreLine(strings.TrimSuffix(line, "\r"), ""); ok {
			rule.prefix = prefix
			r.rules = append(r.rules, rule)
		}
	}
}

// Ignored reports whether rel, a slash path relative to the walk root, is
// excluded. isDir enables directory-only rules.
func (r *IgnoreRules) Ignored(rel string, isDir bool) bool {
	if r == nil || len(r.rules) == 0 {
		return false
	}
	rel = strings.Trim(strings.ReplaceAll(rel, "\\", "/"), "/")

	ignored := false
	for i := range r.rules {
		rule := &r.rules[i]
		if rule.dirOnly && !isDir {
			continue
		}
		local := rel
		switch {
		case rule.prefix != "":
			local = rule.prefix + "/" + rel
		case rule.base != "":
			if !strings.HasPrefix(rel, rule.base+"/") {
				continue
			}
			local = rel[len(rule.base)+1:]
		}
		if matchSegments(rule.segments, strings.Split(local, "/")) {
			ignored = !rule.negate
		}
	}
	return ignored
}

// splitGlobSegments splits a slash pattern into components and rewrites
// character class negation from "[!...]" to the "[^...]" form path.Match uses.
func splitGlobSegments(pattern string) []string {
	parts := strings.Split(pattern, "/")
	segments := parts[:0]
	for _, part := range parts {
		if part == "" {
			continue
		}
		segments = append(segments, strings.ReplaceAll(part, "[!", "[^"))
	}
	return segments
}

// matchSegments matches path components against pattern components, where a
// "**" component matches any number of path components. A trailing "**"
// needs at least one component so that "dir/**" matches inside dir only.
func matchSegments(segments, components []string) bool {
	for len(segments) > 0 {
		if segments[0] == "**" {
			rest := segments[1:]
			if len(rest) == 0 {
				return len(components) > 0
			}
			for i := 0; i <= len(components); i++ {
				if matchSegments(rest, components[i:]) {
					return true
				}
			}
			return false
		}
		if len(components) == 0 {
			return false
		}
		if ok, err := path.Match(segments[0], components[0]); err != nil || !ok {
			return false
		}
		segments = segments[1:]
		components = components[1:]
	}
	return len(components) == 0
}
