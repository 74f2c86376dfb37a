// Package pool runs jobs on a bounded set of background workers.
//
// All pool state (workers, queued callers and in-flight requests) is owned by
// one run-loop goroutine. Callers, workers and timers only talk to it through
// channels, so nothing here needs a mutex.
package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kk-code-lab/rsearch/internal/logger"
)

const (
	DefaultInitTimeout      = 5 * time.Second
	DefaultStuckGracePeriod = 5 * time.Second
	DefaultSweepInterval    = 10 * time.Second
)

// Config sizes a Pool. Zero durations other than IdleTimeout take defaults.
type Config struct {
	// MaxWorkers bounds the number of live workers; values below 1 mean 1.
	MaxWorkers int
	// IdleTimeout evicts workers unused for this long. Zero disables eviction.
	IdleTimeout time.Duration
	// InitTimeout bounds the init/ready handshake of a new worker.
	InitTimeout time.Duration
	// StuckGracePeriod is how long a worker may still answer a request whose
	// caller already gave up before it is destroyed.
	StuckGracePeriod time.Duration
	// SweepInterval is the idle eviction period.
	SweepInterval time.Duration
	Logger        logger.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers < 1 {
		c.MaxWorkers = 1
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = DefaultInitTimeout
	}
	if c.StuckGracePeriod <= 0 {
		c.StuckGracePeriod = DefaultStuckGracePeriod
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.IdleTimeout < 0 {
		c.IdleTimeout = 0
	}
	c.Logger = logger.OrNop(c.Logger)
	return c
}

// Stats is a snapshot of the pool.
type Stats struct {
	Alive    int `json:"alive"`
	Idle     int `json:"idle"`
	Busy     int `json:"busy"`
	Starting int `json:"starting"`
	Waiters  int `json:"waiters"`
	Pending  int `json:"pending"`
}

// RequestOption tunes a single Request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	timeout time.Duration
}

// WithTimeout rejects the request with ErrTimeout if no response arrives
// within d of the call. Time spent queued for a worker counts.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.timeout = d
	}
}

// Pool dispatches requests to workers created by a Spawner.
type Pool[Req, Resp any] struct {
	cfg     Config
	spawner Spawner[Req, Resp]
	log     logger.Logger

	calls      chan *call[Req, Resp]
	events     chan event
	terminated chan struct{}
	stopped    chan struct{}
}

type outcome[Resp any] struct {
	resp Resp
	err  error
}

// call is one Request invocation.
type call[Req, Resp any] struct {
	req     Req
	timeout time.Duration
	reply   chan outcome[Resp]
	// id is assigned on dispatch; zero while queued.
	id       uint64
	answered bool
	timer    *time.Timer
}

func (c *call[Req, Resp]) answer(resp Resp, err error) {
	if c.answered {
		return
	}
	c.answered = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.reply <- outcome[Resp]{resp: resp, err: err}
}

type requestState int

const (
	inFlight requestState = iota
	timedOut
)

// pendingRequest tracks one dispatched job until its worker answers, crashes
// or outlives the grace period.
type pendingRequest[Req, Resp any] struct {
	id     uint64
	call   *call[Req, Resp]
	worker *pooledWorker[Req]
	state  requestState
	grace  *time.Timer
}

func (p *pendingRequest[Req, Resp]) dispose() {
	if p.grace != nil {
		p.grace.Stop()
	}
}

type pooledWorker[Req any] struct {
	id        uint64
	label     string
	worker    Worker[Req]
	ready     bool
	busy      bool
	lastUsed  time.Time
	current   uint64
	initID    uint64
	initTimer *time.Timer
}

type event any

type abortEvent[Req, Resp any] struct {
	call *call[Req, Resp]
	err  error
}

type timeoutEvent[Req, Resp any] struct{ call *call[Req, Resp] }

type graceEvent struct{ id uint64 }

type initTimeoutEvent struct{ worker, initID uint64 }

type responseEvent[Resp any] struct {
	worker uint64
	msg    Message[Resp]
}

type crashEvent struct {
	worker uint64
	err    error
}

type sweepEvent struct{}

type statsEvent struct{ reply chan Stats }

type terminateEvent struct{}

// New starts a pool. Workers are spawned lazily by the first requests.
func New[Req, Resp any](spawner Spawner[Req, Resp], cfg Config) *Pool[Req, Resp] {
	cfg = cfg.withDefaults()
	p := &Pool[Req, Resp]{
		cfg:        cfg,
		spawner:    spawner,
		log:        cfg.Logger,
		calls:      make(chan *call[Req, Resp]),
		events:     make(chan event),
		terminated: make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Request sends req to a worker and waits for its result. Cancelling ctx or
// hitting the WithTimeout deadline rejects the call at once; the worker is
// reclaimed only if it stays silent for the grace period.
func (p *Pool[Req, Resp]) Request(ctx context.Context, req Req, opts ...RequestOption) (Resp, error) {
	var zero Resp
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	c := &call[Req, Resp]{req: req, timeout: o.timeout, reply: make(chan outcome[Resp], 1)}
	select {
	case p.calls <- c:
	case <-p.terminated:
		return zero, ErrPoolTerminated
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case out := <-c.reply:
		return out.resp, out.err
	case <-ctx.Done():
		p.post(abortEvent[Req, Resp]{call: c, err: ctx.Err()})
		out := <-c.reply
		return out.resp, out.err
	}
}

// Stats returns a snapshot of the pool, or zero after Terminate.
func (p *Pool[Req, Resp]) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case p.events <- statsEvent{reply: reply}:
		return <-reply
	case <-p.terminated:
		return Stats{}
	}
}

// Terminate destroys every worker and rejects queued and in-flight requests
// with ErrPoolTerminated. It waits for the run loop to exit and is safe to
// call more than once.
func (p *Pool[Req, Resp]) Terminate() {
	select {
	case p.events <- terminateEvent{}:
	case <-p.terminated:
	}
	<-p.stopped
}

func (p *Pool[Req, Resp]) post(ev event) {
	select {
	case p.events <- ev:
	case <-p.terminated:
	}
}

// after posts ev to the run loop once d has elapsed.
func (p *Pool[Req, Resp]) after(d time.Duration, ev event) *time.Timer {
	return time.AfterFunc(d, func() { p.post(ev) })
}

// loop is the state owned by the run goroutine.
type loop[Req, Resp any] struct {
	*Pool[Req, Resp]

	workers map[uint64]*pooledWorker[Req]
	order   []uint64
	waiters []*call[Req, Resp]
	pending map[uint64]*pendingRequest[Req, Resp]
	nextID  uint64
	nextWID uint64
	sweep   *time.Timer
}

func (p *Pool[Req, Resp]) run() {
	defer close(p.stopped)
	l := &loop[Req, Resp]{
		Pool:    p,
		workers: make(map[uint64]*pooledWorker[Req]),
		pending: make(map[uint64]*pendingRequest[Req, Resp]),
	}

	for {
		select {
		case c := <-p.calls:
			l.enqueue(c)
		case ev := <-p.events:
			if _, ok := ev.(terminateEvent); ok {
				l.terminate()
				return
			}
			l.handle(ev)
		}
	}
}

func (l *loop[Req, Resp]) handle(ev event) {
	switch ev := ev.(type) {
	case abortEvent[Req, Resp]:
		l.abort(ev.call, ev.err)
	case timeoutEvent[Req, Resp]:
		if !ev.call.answered {
			l.abort(ev.call, ErrTimeout)
		}
	case graceEvent:
		l.graceExpired(ev.id)
	case initTimeoutEvent:
		if w, ok := l.workers[ev.worker]; ok && !w.ready && w.initID == ev.initID {
			l.initFailed(w, fmt.Errorf("%w: no ready message within %s", ErrWorkerInit, l.cfg.InitTimeout))
		}
	case responseEvent[Resp]:
		l.response(ev.worker, ev.msg)
	case crashEvent:
		l.crash(ev.worker, ev.err)
	case sweepEvent:
		l.sweepIdle()
	case statsEvent:
		ev.reply <- l.stats()
	}
}

func (l *loop[Req, Resp]) alive() int {
	return len(l.workers)
}

func (l *loop[Req, Resp]) starting() int {
	n := 0
	for _, w := range l.workers {
		if !w.ready {
			n++
		}
	}
	return n
}

// pump hands queued callers to idle workers in FIFO order, then spawns
// workers for callers still waiting while under capacity.
func (l *loop[Req, Resp]) pump() {
	for len(l.waiters) > 0 {
		w := l.idleWorker()
		if w == nil {
			break
		}
		c := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.dispatch(w, c)
	}

	for len(l.waiters) > l.starting() && l.alive() < l.cfg.MaxWorkers {
		if !l.spawn() {
			break
		}
	}
}

func (l *loop[Req, Resp]) idleWorker() *pooledWorker[Req] {
	for _, id := range l.order {
		if w := l.workers[id]; w.ready && !w.busy {
			return w
		}
	}
	return nil
}

func (l *loop[Req, Resp]) spawn() bool {
	l.nextWID++
	label := uuid.NewString()
	inbox := &Inbox[Resp]{worker: l.nextWID, label: label, events: l.events, closed: l.terminated}

	worker, err := l.spawner.Spawn(inbox)
	if err != nil {
		l.log.Errorf("pool: spawn worker: %v", err)
		if len(l.waiters) > 0 {
			c := l.waiters[0]
			l.waiters = l.waiters[1:]
			var zero Resp
			c.answer(zero, fmt.Errorf("%w: %v", ErrWorkerInit, err))
		}
		return false
	}

	l.nextID++
	w := &pooledWorker[Req]{id: l.nextWID, label: label, worker: worker, initID: l.nextID}
	l.workers[w.id] = w
	l.order = append(l.order, w.id)
	w.initTimer = l.after(l.cfg.InitTimeout, initTimeoutEvent{worker: w.id, initID: w.initID})
	worker.Post(Message[Req]{Type: TypeInit, ID: w.initID})
	l.log.Debugf("pool: spawned worker %s (%d alive)", label, l.alive())

	l.ensureSweep()
	return true
}

// enqueue starts the call's deadline and queues it for the next free worker.
func (l *loop[Req, Resp]) enqueue(c *call[Req, Resp]) {
	if c.timeout > 0 {
		c.timer = l.after(c.timeout, timeoutEvent[Req, Resp]{call: c})
	}
	l.waiters = append(l.waiters, c)
	l.pump()
}

func (l *loop[Req, Resp]) dispatch(w *pooledWorker[Req], c *call[Req, Resp]) {
	l.nextID++
	c.id = l.nextID
	w.busy = true
	w.current = c.id

	pr := &pendingRequest[Req, Resp]{id: c.id, call: c, worker: w}
	l.pending[c.id] = pr
	w.worker.Post(Message[Req]{Type: TypeJob, ID: c.id, Payload: c.req})
}

// abort rejects c with err. A dispatched request enters its grace period.
func (l *loop[Req, Resp]) abort(c *call[Req, Resp], err error) {
	var zero Resp
	if c.id == 0 {
		for i, waiting := range l.waiters {
			if waiting == c {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				break
			}
		}
		c.answer(zero, err)
		return
	}

	pr, ok := l.pending[c.id]
	if !ok || pr.state != inFlight {
		c.answer(zero, err)
		return
	}
	c.answer(zero, err)
	pr.state = timedOut
	pr.grace = l.after(l.cfg.StuckGracePeriod, graceEvent{id: pr.id})
	l.log.Debugf("pool: request %d on worker %s abandoned: %v", pr.id, pr.worker.label, err)
}

func (l *loop[Req, Resp]) graceExpired(id uint64) {
	pr, ok := l.pending[id]
	if !ok || pr.state != timedOut {
		return
	}
	delete(l.pending, id)
	l.log.Warnf("pool: worker %s silent for %s after request %d gave up, destroying it", pr.worker.label, l.cfg.StuckGracePeriod, id)
	l.remove(pr.worker, true)
	l.pump()
}

func (l *loop[Req, Resp]) response(workerID uint64, msg Message[Resp]) {
	w, ok := l.workers[workerID]
	if !ok {
		return
	}

	if !w.ready {
		if msg.Type == TypeReady && msg.ID == w.initID {
			w.ready = true
			w.lastUsed = time.Now()
			w.initTimer.Stop()
			l.pump()
			return
		}
		reason := fmt.Sprintf("unexpected %q during handshake", msg.Type)
		if msg.Type == TypeError {
			reason = msg.Error
		}
		l.initFailed(w, fmt.Errorf("%w: %s", ErrWorkerInit, reason))
		return
	}

	pr, ok := l.pending[msg.ID]
	if !ok || pr.worker != w {
		l.log.Debugf("pool: worker %s sent %q for unknown request %d", w.label, msg.Type, msg.ID)
		return
	}
	delete(l.pending, msg.ID)
	pr.dispose()

	var zero Resp
	switch msg.Type {
	case TypeResult:
		if pr.state == inFlight {
			pr.call.answer(msg.Payload, nil)
		} else {
			l.log.Debugf("pool: discarded late result %d from worker %s", msg.ID, w.label)
		}
		w.busy = false
		w.current = 0
		w.lastUsed = time.Now()
	case TypeError:
		pr.call.answer(zero, &WorkerError{Worker: w.label, Message: msg.Error})
		l.remove(w, true)
	default:
		pr.call.answer(zero, fmt.Errorf("%w: worker %s answered request %d with %q", ErrProtocol, w.label, msg.ID, msg.Type))
		l.remove(w, false)
	}
	l.pump()
}

func (l *loop[Req, Resp]) crash(workerID uint64, err error) {
	w, ok := l.workers[workerID]
	if !ok {
		return
	}
	if !w.ready {
		l.initFailed(w, fmt.Errorf("%w: %v", ErrWorkerInit, err))
		return
	}

	l.log.Warnf("pool: worker %s crashed: %v", w.label, err)
	if pr, ok := l.pending[w.current]; ok && w.busy {
		delete(l.pending, pr.id)
		pr.dispose()
		var zero Resp
		pr.call.answer(zero, &WorkerError{Worker: w.label, Message: err.Error(), Crashed: true})
	}
	l.remove(w, false)
	l.pump()
}

// initFailed tears down a worker that never became ready and fails the
// oldest waiter, so a worker that can never start does not respawn forever.
func (l *loop[Req, Resp]) initFailed(w *pooledWorker[Req], err error) {
	l.log.Errorf("pool: worker %s: %v", w.label, err)
	l.remove(w, false)
	if len(l.waiters) > 0 {
		c := l.waiters[0]
		l.waiters = l.waiters[1:]
		var zero Resp
		c.answer(zero, err)
	}
	l.pump()
}

// remove drops w from the pool. announce posts a destroy message first.
func (l *loop[Req, Resp]) remove(w *pooledWorker[Req], announce bool) {
	if _, ok := l.workers[w.id]; !ok {
		return
	}
	delete(l.workers, w.id)
	for i, id := range l.order {
		if id == w.id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	if w.initTimer != nil {
		w.initTimer.Stop()
	}
	if announce {
		l.nextID++
		w.worker.Post(Message[Req]{Type: TypeDestroy, ID: l.nextID})
	}
	w.worker.Terminate()
	l.log.Debugf("pool: removed worker %s (%d alive)", w.label, l.alive())
}

func (l *loop[Req, Resp]) ensureSweep() {
	if l.cfg.IdleTimeout == 0 || l.sweep != nil {
		return
	}
	l.sweep = l.after(l.cfg.SweepInterval, sweepEvent{})
}

func (l *loop[Req, Resp]) sweepIdle() {
	l.sweep = nil
	if len(l.waiters) == 0 {
		now := time.Now()
		for _, id := range append([]uint64(nil), l.order...) {
			w := l.workers[id]
			if w.ready && !w.busy && now.Sub(w.lastUsed) >= l.cfg.IdleTimeout {
				l.log.Debugf("pool: evicting idle worker %s", w.label)
				l.remove(w, true)
			}
		}
	}
	if l.alive() > 0 {
		l.ensureSweep()
	}
}

func (l *loop[Req, Resp]) stats() Stats {
	s := Stats{Alive: l.alive(), Waiters: len(l.waiters), Pending: len(l.pending)}
	for _, w := range l.workers {
		switch {
		case !w.ready:
			s.Starting++
		case w.busy:
			s.Busy++
		default:
			s.Idle++
		}
	}
	return s
}

func (l *loop[Req, Resp]) terminate() {
	close(l.terminated)
	if l.sweep != nil {
		l.sweep.Stop()
	}

	var zero Resp
	for _, c := range l.waiters {
		c.answer(zero, ErrPoolTerminated)
	}
	l.waiters = nil
	for id, pr := range l.pending {
		pr.dispose()
		pr.call.answer(zero, ErrPoolTerminated)
		delete(l.pending, id)
	}
	for _, id := range append([]uint64(nil), l.order...) {
		l.remove(l.workers[id], true)
	}
	l.log.Debugf("pool: terminated")
}
