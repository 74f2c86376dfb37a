package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSpawner scripts worker behaviour and records lifecycle counts.
type fakeSpawner struct {
	mu         sync.Mutex
	alive      int
	peak       int
	spawned    int
	terminated int
	destroys   int

	spawnErr error
	onInit   func(in *Inbox[int], msg Message[int])
	onJob    func(in *Inbox[int], msg Message[int])
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{
		onInit: func(in *Inbox[int], msg Message[int]) {
			in.Reply(Message[int]{Type: TypeReady, ID: msg.ID})
		},
		onJob: func(in *Inbox[int], msg Message[int]) {
			in.Reply(Message[int]{Type: TypeResult, ID: msg.ID, Payload: msg.Payload * 2})
		},
	}
}

func (s *fakeSpawner) Spawn(in *Inbox[int]) (Worker[int], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spawnErr != nil {
		return nil, s.spawnErr
	}
	s.alive++
	s.spawned++
	s.peak = max(s.peak, s.alive)
	return &fakeWorker{spawner: s, inbox: in}, nil
}

func (s *fakeSpawner) counts() (alive, peak, spawned, terminated, destroys int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive, s.peak, s.spawned, s.terminated, s.destroys
}

type fakeWorker struct {
	spawner *fakeSpawner
	inbox   *Inbox[int]
	dead    atomic.Bool
	once    sync.Once
}

func (w *fakeWorker) Post(msg Message[int]) {
	if msg.Type == TypeDestroy {
		w.spawner.mu.Lock()
		w.spawner.destroys++
		w.spawner.mu.Unlock()
		return
	}
	go func() {
		if w.dead.Load() {
			return
		}
		switch msg.Type {
		case TypeInit:
			w.spawner.onInit(w.inbox, msg)
		case TypeJob:
			w.spawner.onJob(w.inbox, msg)
		}
	}()
}

func (w *fakeWorker) Terminate() {
	w.once.Do(func() {
		w.dead.Store(true)
		w.spawner.mu.Lock()
		w.spawner.alive--
		w.spawner.terminated++
		w.spawner.mu.Unlock()
	})
}

func newTestPool(t *testing.T, s Spawner[int, int], cfg Config) *Pool[int, int] {
	t.Helper()
	p := New(s, cfg)
	t.Cleanup(p.Terminate)
	return p
}

func TestRequestRoundTrip(t *testing.T) {
	p := newTestPool(t, GoroutineSpawner(func(_ context.Context, n int) (int, error) {
		return n * 2, nil
	}), Config{MaxWorkers: 1})

	got, err := p.Request(context.Background(), 21)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, Stats{Alive: 1, Idle: 1}, p.Stats())
}

func TestPoolNeverExceedsMaxWorkers(t *testing.T) {
	s := newFakeSpawner()
	s.onJob = func(in *Inbox[int], msg Message[int]) {
		time.Sleep(20 * time.Millisecond)
		in.Reply(Message[int]{Type: TypeResult, ID: msg.ID, Payload: msg.Payload})
	}
	p := newTestPool(t, s, Config{MaxWorkers: 2})

	const requests = 7
	var wg sync.WaitGroup
	results := make([]int, requests)
	errs := make([]error, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Request(context.Background(), i)
		}(i)
	}
	wg.Wait()

	for i := 0; i < requests; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, i, results[i])
	}
	_, peak, spawned, terminated, _ := s.counts()
	assert.LessOrEqual(t, peak, 2)
	assert.Equal(t, 2, spawned)
	assert.Zero(t, terminated)
}

func TestWaitersAreServedInOrder(t *testing.T) {
	gate := make(chan struct{})
	var mu sync.Mutex
	var order []int
	p := newTestPool(t, GoroutineSpawner(func(_ context.Context, n int) (int, error) {
		mu.Lock()
		order = append(order, n)
		mu.Unlock()
		if n == 0 {
			<-gate
		}
		return n, nil
	}), Config{MaxWorkers: 1})

	var wg sync.WaitGroup
	submit := func(n int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Request(context.Background(), n)
			assert.NoError(t, err)
		}()
	}

	submit(0)
	require.Eventually(t, func() bool { return p.Stats().Busy == 1 }, time.Second, time.Millisecond)
	for n := 1; n <= 4; n++ {
		submit(n)
		want := n
		require.Eventually(t, func() bool { return p.Stats().Waiters == want }, time.Second, time.Millisecond)
	}
	close(gate)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestTimedOutRequestKeepsWorkerThatAnswersLate(t *testing.T) {
	s := newFakeSpawner()
	s.onJob = func(in *Inbox[int], msg Message[int]) {
		if msg.Payload == 1 {
			time.Sleep(50 * time.Millisecond)
		}
		in.Reply(Message[int]{Type: TypeResult, ID: msg.ID, Payload: msg.Payload})
	}
	p := newTestPool(t, s, Config{MaxWorkers: 1, StuckGracePeriod: time.Second})

	_, err := p.Request(context.Background(), 1, WithTimeout(10*time.Millisecond))
	require.ErrorIs(t, err, ErrTimeout)

	require.Eventually(t, func() bool {
		st := p.Stats()
		return st.Idle == 1 && st.Pending == 0
	}, time.Second, 5*time.Millisecond)

	got, err := p.Request(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	_, _, spawned, terminated, _ := s.counts()
	assert.Equal(t, 1, spawned)
	assert.Zero(t, terminated)
}

func TestTimeoutCountsTimeSpentQueued(t *testing.T) {
	s := newFakeSpawner()
	release := make(chan struct{})
	s.onJob = func(in *Inbox[int], msg Message[int]) {
		if msg.Payload == 1 {
			<-release
		}
		in.Reply(Message[int]{Type: TypeResult, ID: msg.ID, Payload: msg.Payload})
	}
	p := newTestPool(t, s, Config{MaxWorkers: 1, StuckGracePeriod: time.Second})
	t.Cleanup(func() { close(release) })

	first := make(chan error, 1)
	go func() {
		_, err := p.Request(context.Background(), 1)
		first <- err
	}()
	require.Eventually(t, func() bool { return p.Stats().Pending == 1 }, time.Second, 5*time.Millisecond)

	start := time.Now()
	_, err := p.Request(context.Background(), 2, WithTimeout(30*time.Millisecond))
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	st := p.Stats()
	assert.Zero(t, st.Waiters)
	assert.Equal(t, 1, st.Pending)
	select {
	case err := <-first:
		t.Fatalf("first request finished early: %v", err)
	default:
	}
}

func TestSilentWorkerIsRemovedOnceAfterGracePeriod(t *testing.T) {
	s := newFakeSpawner()
	s.onJob = func(*Inbox[int], Message[int]) {}
	p := newTestPool(t, s, Config{MaxWorkers: 1, StuckGracePeriod: 30 * time.Millisecond})

	_, err := p.Request(context.Background(), 1, WithTimeout(10*time.Millisecond))
	require.ErrorIs(t, err, ErrTimeout)

	require.Eventually(t, func() bool {
		_, _, _, terminated, _ := s.counts()
		return terminated == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	alive, _, _, terminated, destroys := s.counts()
	assert.Zero(t, alive)
	assert.Equal(t, 1, terminated)
	assert.Equal(t, 1, destroys)
	assert.Equal(t, Stats{}, p.Stats())
}

func TestStuckWorkerIsReplacedForWaiters(t *testing.T) {
	s := newFakeSpawner()
	var calls atomic.Int32
	s.onJob = func(in *Inbox[int], msg Message[int]) {
		if calls.Add(1) == 1 {
			return
		}
		in.Reply(Message[int]{Type: TypeResult, ID: msg.ID, Payload: msg.Payload})
	}
	p := newTestPool(t, s, Config{MaxWorkers: 1, StuckGracePeriod: 20 * time.Millisecond})

	_, err := p.Request(context.Background(), 1, WithTimeout(10*time.Millisecond))
	require.ErrorIs(t, err, ErrTimeout)

	got, err := p.Request(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	_, peak, spawned, terminated, _ := s.counts()
	assert.Equal(t, 2, spawned)
	assert.Equal(t, 1, terminated)
	assert.Equal(t, 1, peak)
}

func TestContextCancelRejectsImmediately(t *testing.T) {
	s := newFakeSpawner()
	s.onJob = func(*Inbox[int], Message[int]) {}
	p := newTestPool(t, s, Config{MaxWorkers: 1, StuckGracePeriod: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Request(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
	st := p.Stats()
	assert.Equal(t, 1, st.Alive, "worker is kept during the grace period")
	assert.Equal(t, 1, st.Pending)
}

func TestErrorResponseDiscardsWorker(t *testing.T) {
	s := newFakeSpawner()
	var calls atomic.Int32
	s.onJob = func(in *Inbox[int], msg Message[int]) {
		if calls.Add(1) == 1 {
			in.Reply(Message[int]{Type: TypeError, ID: msg.ID, Error: "boom"})
			return
		}
		in.Reply(Message[int]{Type: TypeResult, ID: msg.ID, Payload: msg.Payload})
	}
	p := newTestPool(t, s, Config{MaxWorkers: 1})

	_, err := p.Request(context.Background(), 1)
	var workerErr *WorkerError
	require.ErrorAs(t, err, &workerErr)
	assert.Equal(t, "boom", workerErr.Message)
	assert.False(t, workerErr.Crashed)

	got, err := p.Request(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	_, _, spawned, terminated, _ := s.counts()
	assert.Equal(t, 2, spawned)
	assert.Equal(t, 1, terminated)
}

func TestCrashRejectsAssignedRequest(t *testing.T) {
	s := newFakeSpawner()
	s.onJob = func(in *Inbox[int], _ Message[int]) {
		in.Crash(errors.New("segfault"))
	}
	p := newTestPool(t, s, Config{MaxWorkers: 1})

	_, err := p.Request(context.Background(), 1)
	var workerErr *WorkerError
	require.ErrorAs(t, err, &workerErr)
	assert.True(t, workerErr.Crashed)
	assert.Contains(t, workerErr.Error(), "segfault")

	require.Eventually(t, func() bool { return p.Stats().Alive == 0 }, time.Second, 5*time.Millisecond)
}

func TestUnknownResponseTypeIsProtocolError(t *testing.T) {
	s := newFakeSpawner()
	s.onJob = func(in *Inbox[int], msg Message[int]) {
		in.Reply(Message[int]{Type: "progress", ID: msg.ID})
	}
	p := newTestPool(t, s, Config{MaxWorkers: 1})

	_, err := p.Request(context.Background(), 1)
	require.ErrorIs(t, err, ErrProtocol)

	_, _, _, terminated, _ := s.counts()
	assert.Equal(t, 1, terminated)
}

func TestInitHandshakeTimeout(t *testing.T) {
	s := newFakeSpawner()
	s.onInit = func(*Inbox[int], Message[int]) {}
	p := newTestPool(t, s, Config{MaxWorkers: 1, InitTimeout: 20 * time.Millisecond})

	_, err := p.Request(context.Background(), 1)
	require.ErrorIs(t, err, ErrWorkerInit)
	assert.Equal(t, 0, p.Stats().Alive)
}

func TestInitHandshakeError(t *testing.T) {
	s := newFakeSpawner()
	s.onInit = func(in *Inbox[int], msg Message[int]) {
		in.Reply(Message[int]{Type: TypeError, ID: msg.ID, Error: "no index"})
	}
	p := newTestPool(t, s, Config{MaxWorkers: 1})

	_, err := p.Request(context.Background(), 1)
	require.ErrorIs(t, err, ErrWorkerInit)
	assert.Contains(t, err.Error(), "no index")
}

func TestSpawnFailure(t *testing.T) {
	s := newFakeSpawner()
	s.spawnErr = errors.New("no threads")
	p := newTestPool(t, s, Config{MaxWorkers: 1})

	_, err := p.Request(context.Background(), 1)
	require.ErrorIs(t, err, ErrWorkerInit)
}

func TestIdleWorkersAreEvicted(t *testing.T) {
	s := newFakeSpawner()
	p := newTestPool(t, s, Config{
		MaxWorkers:    2,
		IdleTimeout:   20 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	})

	_, err := p.Request(context.Background(), 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.Stats().Alive == 0 }, time.Second, 5*time.Millisecond)
	_, _, _, terminated, destroys := s.counts()
	assert.Equal(t, 1, terminated)
	assert.Equal(t, 1, destroys)
}

func TestZeroIdleTimeoutDisablesEviction(t *testing.T) {
	s := newFakeSpawner()
	p := newTestPool(t, s, Config{MaxWorkers: 1, SweepInterval: 5 * time.Millisecond})

	_, err := p.Request(context.Background(), 1)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, p.Stats().Alive)
}

func TestTerminateRejectsEverything(t *testing.T) {
	s := newFakeSpawner()
	s.onJob = func(*Inbox[int], Message[int]) {}
	p := New[int, int](s, Config{MaxWorkers: 1})

	errs := make(chan error, 2)
	go func() {
		_, err := p.Request(context.Background(), 1)
		errs <- err
	}()
	require.Eventually(t, func() bool { return p.Stats().Pending == 1 }, time.Second, time.Millisecond)
	go func() {
		_, err := p.Request(context.Background(), 2)
		errs <- err
	}()
	require.Eventually(t, func() bool { return p.Stats().Waiters == 1 }, time.Second, time.Millisecond)

	p.Terminate()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, <-errs, ErrPoolTerminated)
	}
	_, err := p.Request(context.Background(), 3)
	assert.ErrorIs(t, err, ErrPoolTerminated)

	alive, _, _, terminated, destroys := s.counts()
	assert.Zero(t, alive)
	assert.Equal(t, 1, terminated)
	assert.Equal(t, 1, destroys)
	assert.Equal(t, Stats{}, p.Stats())

	assert.NotPanics(t, p.Terminate)
}

func TestGoroutineWorkerErrorsAndPanics(t *testing.T) {
	p := newTestPool(t, GoroutineSpawner(func(_ context.Context, n int) (int, error) {
		switch n {
		case 1:
			return 0, errors.New("bad input")
		case 2:
			panic("exploded")
		}
		return n, nil
	}), Config{MaxWorkers: 1})

	_, err := p.Request(context.Background(), 1)
	var workerErr *WorkerError
	require.ErrorAs(t, err, &workerErr)
	assert.Equal(t, "bad input", workerErr.Message)

	_, err = p.Request(context.Background(), 2)
	require.ErrorAs(t, err, &workerErr)
	assert.True(t, workerErr.Crashed)
	assert.Contains(t, workerErr.Message, "exploded")

	got, err := p.Request(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, got)
}
