package search

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Per-directory ignore files, lowest priority first so later files can
// re-include with negations. .gitignore only counts inside a repository.
var directoryIgnoreFiles = []string{gitignoreFile, ".ignore", ".rsearchignore"}

const gitignoreFile = ".gitignore"

// ignoreLoader reads ignore files for one walk root.
type ignoreLoader struct {
	root    string
	gitRoot string
}

func newIgnoreLoader(root string) *ignoreLoader {
	return &ignoreLoader{root: root, gitRoot: findGitRoot(root)}
}

// findGitRoot returns the nearest directory at or above dir holding a .git
// entry, or "" outside a repository.
func findGitRoot(dir string) string {
	for {
		if _, err := os.Lstat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// inRepo reports whether the walk root is inside a git repository.
func (l *ignoreLoader) inRepo() bool {
	return l.gitRoot != ""
}

// rootRules collects global excludes, the repository exclude file, ignore
// files in directories between the repository root and the walk root, and
// finally the walk root's own ignore files. Git's own sources (global
// excludes, info/exclude, .gitignore) apply only inside a repository.
func (l *ignoreLoader) rootRules() *IgnoreRules {
	rules := NewIgnoreRules()
	seen := make(map[string]struct{})
	addGlobal := func(file string) {
		if file == "" {
			return
		}
		if _, ok := seen[file]; ok {
			return
		}
		if content, ok := readIgnoreFile(file); ok {
			seen[file] = struct{}{}
			rules.Add(content, "")
		}
	}

	if l.inRepo() {
		addGlobal(l.coreExcludesFile())
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			addGlobal(filepath.Join(home, ".gitignore_global"))
			addGlobal(filepath.Join(home, ".config", "git", "ignore"))
		}

		excludeFile := filepath.Join(l.gitRoot, ".git", "info", "exclude")
		if content, ok := readIgnoreFile(excludeFile); ok {
			l.addAtGitRoot(rules, content)
		}
		l.addAncestorDirectories(rules)
	}

	return l.extend(rules, l.root, "", l.inRepo())
}

func (l *ignoreLoader) addAtGitRoot(rules *IgnoreRules, content string) {
	rel, err := filepath.Rel(l.gitRoot, l.root)
	if err != nil || rel == "." {
		rules.Add(content, "")
		return
	}
	rules.addAncestor(content, filepath.ToSlash(rel))
}

func (l *ignoreLoader) addAncestorDirectories(rules *IgnoreRules) {
	var ancestors []string
	for dir := filepath.Dir(l.root); ; dir = filepath.Dir(dir) {
		if !strings.HasPrefix(dir, l.gitRoot) || dir == l.root {
			break
		}
		ancestors = append(ancestors, dir)
		if dir == l.gitRoot || filepath.Dir(dir) == dir {
			break
		}
	}
	// Outermost first so nearer directories take precedence.
	for i := len(ancestors) - 1; i >= 0; i-- {
		dir := ancestors[i]
		rel, err := filepath.Rel(dir, l.root)
		if err != nil {
			continue
		}
		for _, name := range directoryIgnoreFiles {
			if content, ok := readIgnoreFile(filepath.Join(dir, name)); ok {
				rules.addAncestor(content, filepath.ToSlash(rel))
			}
		}
	}
}

// extend returns parent with the ignore files of dir appended, or parent
// itself when dir has none. .gitignore is skipped unless inRepo.
func (l *ignoreLoader) extend(parent *IgnoreRules, dir, rel string, inRepo bool) *IgnoreRules {
	rules := parent
	for _, name := range directoryIgnoreFiles {
		if name == gitignoreFile && !inRepo {
			continue
		}
		content, ok := readIgnoreFile(filepath.Join(dir, name))
		if !ok {
			continue
		}
		if rules == parent {
			rules = parent.Clone()
		}
		rules.Add(content, rel)
	}
	return rules
}

func readIgnoreFile(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return "", false
	}
	return string(data), true
}

// coreExcludesFile reads core.excludesFile from the repository config.
func (l *ignoreLoader) coreExcludesFile() string {
	if l.gitRoot == "" {
		return ""
	}
	file, err := os.Open(filepath.Join(l.gitRoot, ".git", "config"))
	if err != nil {
		return ""
	}
	defer func() {
		_ = file.Close()
	}()

	inCore := false
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || line[0] == '#' || line[0] == ';':
			continue
		case strings.HasPrefix(line, "["):
			inCore = strings.HasPrefix(strings.ToLower(line), "[core")
			continue
		case !inCore:
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found || !strings.EqualFold(strings.TrimSpace(key), "excludesfile") {
			continue
		}
		value = expandHome(strings.Trim(strings.TrimSpace(value), `"`))
		if value == "" {
			continue
		}
		if !filepath.IsAbs(value) {
			value = filepath.Join(l.gitRoot, value)
		}
		return value
	}
	return ""
}

func expandHome(value string) string {
	if value != "~" && !strings.HasPrefix(value, "~/") {
		return value
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return value
	}
	return filepath.Join(home, strings.TrimPrefix(value[1:], "/"))
}
