package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultMaxFindResults caps FindPaths when FindOptions.MaxResults is unset.
const DefaultMaxFindResults = 100

// ErrNotDirectory is returned by FindPaths for a root that is a file.
var ErrNotDirectory = errors.New("path must be a directory")

// FindOptions configures FindPaths.
type FindOptions struct {
	Path  string `json:"path"`
	Query string `json:"query"`
	// Hidden includes dot-files; off by default.
	Hidden bool `json:"hidden,omitempty"`
	// NoGitignore disables ignore files.
	NoGitignore bool `json:"noGitignore,omitempty"`
	MaxResults  int  `json:"maxResults,omitempty"`
}

// FoundPath is one FindPaths hit. Directory paths end with a slash.
type FoundPath struct {
	Path        string `json:"path"`
	IsDirectory bool   `json:"isDirectory"`
}

// FindResult lists the first MaxResults hits. TotalMatches counts every hit.
type FindResult struct {
	Matches      []FoundPath `json:"matches"`
	TotalMatches int         `json:"totalMatches"`
}

// FindPaths returns files and directories under the root whose relative path
// contains the query, compared case-insensitively. An empty query matches
// everything.
func (o *Orchestrator) FindPaths(ctx context.Context, opts FindOptions) (FindResult, error) {
	root, err := o.ResolveRoot(opts.Path)
	if err != nil {
		return FindResult{}, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return FindResult{}, fmt.Errorf("%w: %s: %v", ErrPathNotFound, root, err)
	}
	if !info.IsDir() {
		return FindResult{}, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	limit := opts.MaxResults
	if limit <= 0 {
		limit = DefaultMaxFindResults
	}

	paths, err := o.lister.List(ctx, root, ListOptions{
		Hidden:      opts.Hidden,
		Gitignore:   !opts.NoGitignore,
		IncludeDirs: true,
	})
	if err != nil {
		return FindResult{}, err
	}

	query := strings.ToLower(opts.Query)
	result := FindResult{Matches: []FoundPath{}}
	for _, p := range paths {
		isDir := strings.HasSuffix(p, "/")
		if query != "" && !strings.Contains(strings.ToLower(strings.TrimSuffix(p, "/")), query) {
			continue
		}
		result.TotalMatches++
		if len(result.Matches) < limit {
			result.Matches = append(result.Matches, FoundPath{Path: p, IsDirectory: isDir})
		}
	}
	return result, nil
}
