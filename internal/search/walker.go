package search

import (
	"context"
	"os"
	"path/filepath"

	fsutil "github.com/kk-code-lab/rsearch/internal/fs"
)

// ListOptions controls which entries a Lister yields.
type ListOptions struct {
	// Glob restricts files to those matching a glob, see NewGlobFilter.
	Glob string
	// Hidden includes dot-files and hidden directories.
	Hidden bool
	// Gitignore honours .gitignore, .ignore and .rsearchignore files, the
	// repository exclude file and the user's global excludes.
	Gitignore bool
	// IncludeDirs also yields directories, with a trailing slash.
	IncludeDirs bool
}

// Lister produces the candidate files of a search as root-relative slash
// paths in traversal order.
type Lister interface {
	List(ctx context.Context, root string, opts ListOptions) ([]string, error)
}

// Walker is the filesystem Lister. Entries are visited depth-first with each
// directory's entries in name order, so output is sorted component-wise.
// Symlinks are never followed and .git directories are always skipped.
type Walker struct {
	// hidden and protected are swappable for tests.
	hidden    func(fullPath, name string) bool
	protected func(fullPath, name string) bool
}

// NewWalker returns a Walker using the platform's hidden-entry rules.
func NewWalker() *Walker {
	return &Walker{hidden: fsutil.IsHidden, protected: fsutil.IsProtected}
}

// List walks root. Unreadable directories are skipped.
func (w *Walker) List(ctx context.Context, root string, opts ListOptions) ([]string, error) {
	glob, err := NewGlobFilter(opts.Glob)
	if err != nil {
		return nil, err
	}

	var loader *ignoreLoader
	var rules *IgnoreRules
	if opts.Gitignore {
		loader = newIgnoreLoader(root)
		rules = loader.rootRules()
	}

	walk := &walk{
		walker: w,
		opts:   opts,
		glob:   glob,
		loader: loader,
	}
	inRepo := loader != nil && loader.inRepo()
	if err := walk.dir(ctx, root, "", rules, inRepo); err != nil {
		return nil, err
	}
	return walk.out, nil
}

type walk struct {
	walker *Walker
	opts   ListOptions
	glob   *GlobFilter
	loader *ignoreLoader
	out    []string
}

// dir lists absDir. inRepo is true once the walk is inside a git repository,
// either the root's or a nested one.
func (w *walk) dir(ctx context.Context, absDir, relDir string, rules *IgnoreRules, inRepo bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil
	}

	for _, entry := range entries {
		name := entry.Name()
		fullPath := filepath.Join(absDir, name)
		rel := joinRel(relDir, name)
		mode := entry.Type()

		if mode&os.ModeSymlink != 0 {
			continue
		}
		isDir := entry.IsDir()
		if isDir && name == ".git" {
			continue
		}
		if w.walker.protected(fullPath, name) {
			continue
		}
		if !w.opts.Hidden && w.walker.hidden(fullPath, name) {
			continue
		}
		if rules.Ignored(rel, isDir) {
			continue
		}

		if isDir {
			if w.opts.IncludeDirs {
				w.out = append(w.out, rel+"/")
			}
			childRules := rules
			childInRepo := inRepo
			if w.loader != nil {
				childInRepo = inRepo || hasGitDir(fullPath)
				childRules = w.loader.extend(rules, fullPath, rel, childInRepo)
			}
			if err := w.dir(ctx, fullPath, rel, childRules, childInRepo); err != nil {
				return err
			}
			continue
		}

		if !mode.IsRegular() {
			continue
		}
		if !w.glob.Match(rel) {
			continue
		}
		w.out = append(w.out, rel)
	}
	return nil
}

func hasGitDir(dir string) bool {
	_, err := os.Lstat(filepath.Join(dir, ".git"))
	return err == nil
}

func joinRel(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
