package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout rejects a request whose deadline passed before a response.
	ErrTimeout = errors.New("request timeout")
	// ErrPoolTerminated rejects requests that were queued or in flight when
	// the pool shut down, and every request made afterwards.
	ErrPoolTerminated = errors.New("worker pool terminated")
	// ErrProtocol reports a response message of an unexpected type.
	ErrProtocol = errors.New("worker protocol violation")
	// ErrWorkerInit reports a worker that failed its init handshake.
	ErrWorkerInit = errors.New("worker failed to initialize")
)

// WorkerError is a failure reported by, or observed on, the worker that was
// serving a request. The worker is discarded.
type WorkerError struct {
	Worker  string
	Message string
	// Crashed is set when the worker died instead of answering.
	Crashed bool
}

func (e *WorkerError) Error() string {
	if e.Crashed {
		return fmt.Sprintf("worker %s crashed: %s", e.Worker, e.Message)
	}
	return fmt.Sprintf("worker %s: %s", e.Worker, e.Message)
}
