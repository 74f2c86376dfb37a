package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	fsutil "github.com/kk-code-lab/rsearch/internal/fs"
	"github.com/kk-code-lab/rsearch/internal/logger"
)

// Pattern is the per-search matching capability used by the Orchestrator.
// *CompiledPattern implements it.
type Pattern interface {
	HasMatch(data []byte) bool
	SearchBytes(data []byte, maxCount, offset int) (FileResult, error)
	Close() error
}

// FileReader loads file content. *fs.Reader implements it.
type FileReader interface {
	Read(path string) (*fsutil.View, bool)
}

// Orchestrator executes whole search requests. It may be shared; every Run
// compiles its own pattern and uses its own FileReader.
type Orchestrator struct {
	lister    Lister
	logger    logger.Logger
	compile   func(PatternConfig) (Pattern, error)
	newReader func() FileReader
	getwd     func() (string, error)
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger routes per-file warnings to l.
func WithLogger(l logger.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger.OrNop(l)
	}
}

// WithCompiler replaces pattern compilation.
func WithCompiler(compile func(PatternConfig) (Pattern, error)) OrchestratorOption {
	return func(o *Orchestrator) {
		o.compile = compile
	}
}

// WithReaderFactory replaces the FileReader created for each Run.
func WithReaderFactory(newReader func() FileReader) OrchestratorOption {
	return func(o *Orchestrator) {
		o.newReader = newReader
	}
}

// NewOrchestrator returns an Orchestrator listing directories with lister. A
// nil lister uses NewWalker.
func NewOrchestrator(lister Lister, opts ...OrchestratorOption) *Orchestrator {
	if lister == nil {
		lister = NewWalker()
	}
	o := &Orchestrator{
		lister: lister,
		logger: logger.Nop(),
		compile: func(cfg PatternConfig) (Pattern, error) {
			return Compile(cfg)
		},
		newReader: func() FileReader {
			return fsutil.NewReader()
		},
		getwd: os.Getwd,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ResolveRoot makes a relative path absolute against the working directory.
func (o *Orchestrator) ResolveRoot(path string) (string, error) {
	if path == "" {
		path = "."
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	cwd, err := o.getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return filepath.Join(cwd, path), nil
}

// Run executes req. It fails only for an invalid pattern or glob, a missing
// root, or cancellation; unreadable files and per-file match errors are
// skipped.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	root, info, err := o.statRoot(req.Path)
	if err != nil {
		return Result{}, err
	}

	pattern, err := o.compile(req.patternConfig())
	if err != nil {
		return Result{}, err
	}
	defer func() {
		_ = pattern.Close()
	}()

	job := &searchJob{
		req:     req,
		pattern: pattern,
		reader:  o.newReader(),
		types:   NewTypeFilter(req.Type),
		logger:  o.logger,
		result:  Result{Matches: []Match{}},
	}

	if !info.IsDir() {
		job.searchSingleFile(root)
		return job.result, nil
	}

	paths, err := o.lister.List(ctx, root, ListOptions{
		Glob:      req.Glob,
		Hidden:    req.IncludeHidden(),
		Gitignore: true,
	})
	if err != nil {
		return Result{}, err
	}
	o.logger.Debugf("search %q: %d candidate files under %s", req.Pattern, len(paths), root)

	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if job.searchFile(filepath.Join(root, filepath.FromSlash(rel)), rel) {
			break
		}
	}
	return job.result, nil
}

// Check reports the errors Run would fail with before touching any file: a
// missing root, an invalid pattern or an invalid glob.
func (o *Orchestrator) Check(req Request) error {
	if _, _, err := o.statRoot(req.Path); err != nil {
		return err
	}
	pattern, err := o.compile(req.patternConfig())
	if err != nil {
		return err
	}
	_ = pattern.Close()
	_, err = NewGlobFilter(req.Glob)
	return err
}

func (o *Orchestrator) statRoot(path string) (string, os.FileInfo, error) {
	root, err := o.ResolveRoot(path)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrPathNotFound, root, err)
	}
	return root, info, nil
}

// searchJob is the state of a single Run.
type searchJob struct {
	req     Request
	pattern Pattern
	reader  FileReader
	types   *TypeFilter
	logger  logger.Logger
	result  Result

	// collected counts matches materialised so far, in either mode.
	collected int
}

func (j *searchJob) maxCount() int {
	if j.req.MaxCount == nil {
		return -1
	}
	return max(*j.req.MaxCount, 0)
}

func (j *searchJob) searchSingleFile(path string) {
	if !j.types.Match(path) {
		return
	}
	data, release, ok := j.load(path)
	if !ok {
		return
	}
	defer release()

	if !j.pattern.HasMatch(data) {
		return
	}
	fr, err := j.pattern.SearchBytes(data, j.maxCount(), max(j.req.Offset, 0))
	if err != nil {
		j.logger.Warnf("search %s: %v", path, err)
		return
	}
	j.record(path, fr)
	j.result.LimitReached = fr.LimitReached
}

// searchFile handles one directory candidate and reports whether the walk
// must stop.
func (j *searchJob) searchFile(path, rel string) bool {
	if !j.types.Match(rel) {
		return false
	}
	data, release, ok := j.load(path)
	if !ok {
		return false
	}
	defer release()

	if !j.pattern.HasMatch(data) {
		return false
	}

	offset := max(j.req.Offset-j.result.TotalMatches, 0)
	remaining := -1
	if limit := j.maxCount(); limit >= 0 {
		remaining = max(limit-j.collected, 0)
		if remaining == 0 {
			j.result.LimitReached = true
			return true
		}
	}

	fr, err := j.pattern.SearchBytes(data, remaining, offset)
	if err != nil {
		j.logger.Warnf("search %s: %v", rel, err)
		return false
	}
	j.record(rel, fr)

	if fr.LimitReached || (remaining >= 0 && j.collected >= j.maxCount()) {
		j.result.LimitReached = true
		return true
	}
	return false
}

// load reads path and counts it as searched. Binary content is counted but
// not returned.
func (j *searchJob) load(path string) ([]byte, func(), bool) {
	view, ok := j.reader.Read(path)
	if !ok {
		return nil, nil, false
	}
	j.result.FilesSearched++

	data := fsutil.DecodeText(view.Bytes())
	if fsutil.LooksBinary(path, data) {
		view.Release()
		return nil, nil, false
	}
	return data, view.Release, true
}

func (j *searchJob) record(path string, fr FileResult) {
	if fr.MatchCount == 0 {
		return
	}
	j.result.FilesWithMatches++
	j.result.TotalMatches += fr.MatchCount
	j.collected += len(fr.Matches)

	if j.req.Mode == ModeCount {
		j.result.Matches = append(j.result.Matches, Match{
			Path:       path,
			MatchCount: fr.MatchCount,
		})
		return
	}

	for _, m := range fr.Matches {
		j.result.Matches = append(j.result.Matches, Match{
			Path:          path,
			LineNumber:    m.LineNumber,
			Line:          m.Line,
			ContextBefore: m.ContextBefore,
			ContextAfter:  m.ContextAfter,
			Truncated:     m.Truncated,
		})
	}
}
