// Package grep is the entry point for content search. A search runs either
// inline on the calling goroutine or as one job on a bounded worker pool; both
// paths return the same search.Result.
package grep

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kk-code-lab/rsearch/internal/logger"
	"github.com/kk-code-lab/rsearch/internal/pool"
	"github.com/kk-code-lab/rsearch/internal/search"
)

// WorkersEnv overrides the pool size. A positive integer sets the size; any
// other value forces the inline path.
const WorkersEnv = "RSEARCH_GREP_WORKERS"

const maxDefaultWorkers = 4

// Options configures an Engine.
type Options struct {
	// MaxWorkers bounds the pool. Values below 1 use DefaultWorkers.
	MaxWorkers int
	// Inline makes Grep run on the calling goroutine. GrepPool ignores it.
	Inline           bool
	IdleTimeout      time.Duration
	InitTimeout      time.Duration
	StuckGracePeriod time.Duration
	// Timeout bounds each search from the call, including any wait for a
	// worker; zero means only ctx applies.
	Timeout time.Duration
	Logger  logger.Logger
	// Lister replaces the directory walker.
	Lister search.Lister
}

// DefaultWorkers is the CPU count capped at 4.
func DefaultWorkers() int {
	return min(runtime.NumCPU(), maxDefaultWorkers)
}

// ApplyEnv applies WorkersEnv to opts. Unset leaves opts unchanged.
func ApplyEnv(opts Options) Options {
	value, ok := os.LookupEnv(WorkersEnv)
	if !ok {
		return opts
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		opts.Inline = true
		return opts
	}
	opts.MaxWorkers = n
	opts.Inline = false
	return opts
}

// Engine runs searches. The pool is started on the first pooled search.
type Engine struct {
	opts Options
	log  logger.Logger
	orch *search.Orchestrator

	mu      sync.Mutex
	workers *pool.Pool[search.Request, search.Result]
	closed  bool
}

// New returns an Engine for opts.
func New(opts Options) *Engine {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = DefaultWorkers()
	}
	log := logger.OrNop(opts.Logger)
	return &Engine{
		opts: opts,
		log:  log,
		orch: search.NewOrchestrator(opts.Lister, search.WithLogger(log)),
	}
}

// Grep runs req on the pool, or inline when the engine is configured so.
func (e *Engine) Grep(ctx context.Context, req search.Request) (search.Result, error) {
	if e.opts.Inline {
		return e.GrepInline(ctx, req)
	}
	return e.GrepPool(ctx, req)
}

// GrepInline runs req on the calling goroutine.
func (e *Engine) GrepInline(ctx context.Context, req search.Request) (search.Result, error) {
	if err := e.orch.Check(req); err != nil {
		return search.Result{}, err
	}
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, e.opts.Timeout, pool.ErrTimeout)
		defer cancel()
	}
	res, err := e.orch.Run(ctx, req)
	if err != nil && errors.Is(context.Cause(ctx), pool.ErrTimeout) {
		return search.Result{}, pool.ErrTimeout
	}
	return res, err
}

// GrepPool runs req as one job on a pool worker. Pattern, glob and root
// errors are reported before the job is queued.
func (e *Engine) GrepPool(ctx context.Context, req search.Request) (search.Result, error) {
	if err := e.orch.Check(req); err != nil {
		return search.Result{}, err
	}
	p, err := e.pool()
	if err != nil {
		return search.Result{}, err
	}
	var opts []pool.RequestOption
	if e.opts.Timeout > 0 {
		opts = append(opts, pool.WithTimeout(e.opts.Timeout))
	}
	return p.Request(ctx, req, opts...)
}

// Stats reports the pool state; zero before the first pooled search.
func (e *Engine) Stats() pool.Stats {
	e.mu.Lock()
	p := e.workers
	e.mu.Unlock()
	if p == nil {
		return pool.Stats{}
	}
	return p.Stats()
}

// Close terminates the pool. Later pooled searches fail with
// pool.ErrPoolTerminated.
func (e *Engine) Close() {
	e.mu.Lock()
	p := e.workers
	e.workers = nil
	e.closed = true
	e.mu.Unlock()
	if p != nil {
		p.Terminate()
	}
}

func (e *Engine) pool() (*pool.Pool[search.Request, search.Result], error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, pool.ErrPoolTerminated
	}
	if e.workers == nil {
		e.log.Debugf("starting grep pool with %d workers", e.opts.MaxWorkers)
		e.workers = pool.New(pool.GoroutineSpawner[search.Request, search.Result](e.orch.Run), pool.Config{
			MaxWorkers:       e.opts.MaxWorkers,
			IdleTimeout:      e.opts.IdleTimeout,
			InitTimeout:      e.opts.InitTimeout,
			StuckGracePeriod: e.opts.StuckGracePeriod,
			Logger:           e.log,
		})
	}
	return e.workers, nil
}

var (
	defaultMu     sync.Mutex
	defaultEngine *Engine
)

func getDefault() *Engine {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine == nil {
		defaultEngine = New(ApplyEnv(Options{}))
	}
	return defaultEngine
}

// Grep searches with the shared default engine.
func Grep(ctx context.Context, req search.Request) (search.Result, error) {
	return getDefault().Grep(ctx, req)
}

// GrepPool searches on the shared default pool.
func GrepPool(ctx context.Context, req search.Request) (search.Result, error) {
	return getDefault().GrepPool(ctx, req)
}

// GrepInline searches on the calling goroutine.
func GrepInline(ctx context.Context, req search.Request) (search.Result, error) {
	return getDefault().GrepInline(ctx, req)
}

// Shutdown terminates the default engine's pool. The next call creates a new
// engine.
func Shutdown() {
	defaultMu.Lock()
	e := defaultEngine
	defaultEngine = nil
	defaultMu.Unlock()
	if e != nil {
		e.Close()
	}
}
