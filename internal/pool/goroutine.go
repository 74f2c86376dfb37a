package pool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// Handler performs one job. ctx is cancelled when the worker is terminated.
type Handler[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// GoroutineSpawner runs each worker on its own goroutine. Jobs execute one
// at a time. A handler error becomes an error response; a handler panic is
// reported as a crash and ends the worker.
func GoroutineSpawner[Req, Resp any](handler Handler[Req, Resp]) Spawner[Req, Resp] {
	return SpawnerFunc[Req, Resp](func(inbox *Inbox[Resp]) (Worker[Req], error) {
		ctx, cancel := context.WithCancel(context.Background())
		w := &goroutineWorker[Req, Resp]{
			handler: handler,
			inbox:   inbox,
			ctx:     ctx,
			cancel:  cancel,
			mailbox: make(chan Message[Req], 4),
		}
		go w.run()
		return w, nil
	})
}

type goroutineWorker[Req, Resp any] struct {
	handler Handler[Req, Resp]
	inbox   *Inbox[Resp]
	ctx     context.Context
	cancel  context.CancelFunc
	mailbox chan Message[Req]

	once sync.Once
}

func (w *goroutineWorker[Req, Resp]) Post(msg Message[Req]) {
	select {
	case w.mailbox <- msg:
	default:
		go func() {
			select {
			case w.mailbox <- msg:
			case <-w.ctx.Done():
			}
		}()
	}
}

func (w *goroutineWorker[Req, Resp]) Terminate() {
	w.once.Do(w.cancel)
}

func (w *goroutineWorker[Req, Resp]) run() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case msg := <-w.mailbox:
			switch msg.Type {
			case TypeInit:
				w.reply(Message[Resp]{Type: TypeReady, ID: msg.ID})
			case TypeJob:
				if !w.serve(msg) {
					return
				}
			case TypeDestroy:
				w.Terminate()
				return
			}
		}
	}
}

// serve runs one job and reports whether the worker is still usable.
func (w *goroutineWorker[Req, Resp]) serve(msg Message[Req]) (alive bool) {
	defer func() {
		if r := recover(); r != nil {
			alive = false
			w.inbox.Crash(fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
			w.Terminate()
		}
	}()

	resp, err := w.handler(w.ctx, msg.Payload)
	if w.ctx.Err() != nil {
		return false
	}
	if err != nil {
		w.reply(Message[Resp]{Type: TypeError, ID: msg.ID, Error: err.Error()})
		return true
	}
	w.reply(Message[Resp]{Type: TypeResult, ID: msg.ID, Payload: resp})
	return true
}

func (w *goroutineWorker[Req, Resp]) reply(msg Message[Resp]) {
	if w.ctx.Err() != nil {
		return
	}
	w.inbox.Reply(msg)
}
