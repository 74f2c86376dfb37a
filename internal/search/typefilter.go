package search

import (
	"path/filepath"
	"strings"
)

// TypeFilter selects files by extension or by exact base name.
type TypeFilter struct {
	extensions []string
	names      []string
}

type typeAlias struct {
	extensions []string
	names      []string
}

var typeAliases = map[string]typeAlias{
	"js":         {extensions: []string{"js", "jsx", "mjs", "cjs"}},
	"ts":         {extensions: []string{"ts", "tsx", "mts", "cts"}},
	"json":       {extensions: []string{"json", "jsonc", "json5"}},
	"yaml":       {extensions: []string{"yaml", "yml"}},
	"toml":       {extensions: []string{"toml"}},
	"md":         {extensions: []string{"md", "markdown", "mdx"}},
	"py":         {extensions: []string{"py", "pyi"}},
	"rs":         {extensions: []string{"rs"}},
	"go":         {extensions: []string{"go"}},
	"java":       {extensions: []string{"java"}},
	"kt":         {extensions: []string{"kt", "kts"}},
	"c":          {extensions: []string{"c", "h"}},
	"cpp":        {extensions: []string{"cpp", "cc", "cxx", "hpp", "hxx", "hh"}},
	"cs":         {extensions: []string{"cs", "csx"}},
	"php":        {extensions: []string{"php", "phtml"}},
	"rb":         {extensions: []string{"rb", "rake", "gemspec"}},
	"sh":         {extensions: []string{"sh", "bash", "zsh"}},
	"zsh":        {extensions: []string{"zsh"}},
	"fish":       {extensions: []string{"fish"}},
	"html":       {extensions: []string{"html", "htm"}},
	"css":        {extensions: []string{"css"}},
	"scss":       {extensions: []string{"scss"}},
	"sass":       {extensions: []string{"sass"}},
	"less":       {extensions: []string{"less"}},
	"xml":        {extensions: []string{"xml"}},
	"dockerfile": {names: []string{"dockerfile"}},
	"makefile":   {names: []string{"makefile"}},
}

var typeSynonyms = map[string]string{
	"javascript": "js",
	"typescript": "ts",
	"yml":        "yaml",
	"markdown":   "md",
	"python":     "py",
	"rust":       "rs",
	"kotlin":     "kt",
	"cxx":        "cpp",
	"csharp":     "cs",
	"ruby":       "rb",
	"bash":       "sh",
	"docker":     "dockerfile",
	"make":       "makefile",
}

// NewTypeFilter resolves a language alias such as "ts" or "python". Unknown
// names are used as a bare extension. An empty name yields nil.
func NewTypeFilter(name string) *TypeFilter {
	name = strings.ToLower(strings.TrimLeft(strings.TrimSpace(name), "."))
	if name == "" {
		return nil
	}
	if canonical, ok := typeSynonyms[name]; ok {
		name = canonical
	}
	alias, ok := typeAliases[name]
	if !ok {
		return &TypeFilter{extensions: []string{name}}
	}
	return &TypeFilter{extensions: alias.extensions, names: alias.names}
}

// Match reports whether the file at p, compared case-insensitively, has one
// of the filter's names or extensions.
func (f *TypeFilter) Match(p string) bool {
	if f == nil {
		return true
	}
	base := filepath.Base(filepath.FromSlash(p))
	for _, name := range f.names {
		if strings.EqualFold(base, name) {
			return true
		}
	}
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	if ext == "" {
		return false
	}
	for _, candidate := range f.extensions {
		if strings.EqualFold(ext, candidate) {
			return true
		}
	}
	return false
}
