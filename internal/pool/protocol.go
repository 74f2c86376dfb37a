package pool

// MessageType tags a message crossing the pool/worker boundary.
type MessageType string

// Request message types, sent from the pool to a worker.
const (
	TypeInit    MessageType = "init"
	TypeJob     MessageType = "job"
	TypeDestroy MessageType = "destroy"
)

// Response message types, sent from a worker to the pool.
const (
	TypeReady  MessageType = "ready"
	TypeResult MessageType = "result"
	TypeError  MessageType = "error"
)

// Message is the envelope for both directions. ID correlates a response with
// the request it answers. Payload is only meaningful for job and result
// messages, Error only for error messages.
type Message[T any] struct {
	Type    MessageType `json:"type"`
	ID      uint64      `json:"id"`
	Payload T           `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Worker is one background execution context as seen by the pool.
type Worker[Req any] interface {
	// Post delivers msg without blocking the caller. It is called from the
	// pool's run loop, so it must not reply through the Inbox synchronously.
	Post(msg Message[Req])
	// Terminate stops the worker at once. Anything it sends afterwards is
	// ignored.
	Terminate()
}

// Spawner starts workers. A worker reports back through its Inbox, never from
// inside Spawn itself.
type Spawner[Req, Resp any] interface {
	Spawn(inbox *Inbox[Resp]) (Worker[Req], error)
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc[Req, Resp any] func(inbox *Inbox[Resp]) (Worker[Req], error)

func (f SpawnerFunc[Req, Resp]) Spawn(inbox *Inbox[Resp]) (Worker[Req], error) {
	return f(inbox)
}

// Inbox is a worker's channel back to the pool that spawned it.
type Inbox[Resp any] struct {
	worker uint64
	label  string
	events chan<- event
	closed <-chan struct{}
}

// Label identifies the worker in logs and errors.
func (in *Inbox[Resp]) Label() string {
	return in.label
}

// Reply delivers a response message. It never blocks past pool shutdown.
func (in *Inbox[Resp]) Reply(msg Message[Resp]) {
	in.post(responseEvent[Resp]{worker: in.worker, msg: msg})
}

// Crash reports that the worker died independently of any response.
func (in *Inbox[Resp]) Crash(err error) {
	in.post(crashEvent{worker: in.worker, err: err})
}

func (in *Inbox[Resp]) post(ev event) {
	select {
	case in.events <- ev:
	case <-in.closed:
	}
}
