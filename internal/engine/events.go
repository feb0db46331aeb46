package engine

import "sync"

// Event is raised by the engine for discovery, signaling and messaging.
// Listeners receive events in the order they were raised.
type Event interface {
	Kind() string
}

type PeerAdded struct {
	Peer Peer `json:"peer"`
}

type PeerUpdated struct {
	Peer Peer `json:"peer"`
}

type PeerRemoved struct {
	HostName string `json:"host"`
}

type CallStateChanged struct {
	HostName string    `json:"host"`
	State    CallState `json:"state"`
}

type IncomingCall struct {
	HostName string `json:"host"`
}

type CallAccepted struct {
	HostName string `json:"host"`
}

type EndCallRequested struct {
	HostName string `json:"host"`
}

type TextMessageArrived struct {
	HostName string `json:"host"`
	Text     string `json:"text"`
}

type FileSendRequested struct {
	HostName string `json:"host"`
	FileName string `json:"file"`
}

type FileAccepted struct {
	HostName string `json:"host"`
	FileName string `json:"file"`
}

type FileSent struct {
	HostName string `json:"host"`
	FileName string `json:"file"`
	Bytes    int64  `json:"bytes"`
}

type ReceiveCompleted struct {
	HostName string `json:"host"`
	FileName string `json:"file"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
}

// TransferFailed reports a file transfer that did not complete, in either
// direction.
type TransferFailed struct {
	HostName string `json:"host"`
	FileName string `json:"file"`
	Outbound bool   `json:"outbound"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

func (PeerAdded) Kind() string          { return "peer_added" }
func (PeerUpdated) Kind() string        { return "peer_updated" }
func (PeerRemoved) Kind() string        { return "peer_removed" }
func (CallStateChanged) Kind() string   { return "call_state" }
func (IncomingCall) Kind() string       { return "incoming_call" }
func (CallAccepted) Kind() string       { return "call_accepted" }
func (EndCallRequested) Kind() string   { return "end_call" }
func (TextMessageArrived) Kind() string { return "text" }
func (FileSendRequested) Kind() string  { return "file_offered" }
func (FileAccepted) Kind() string       { return "file_accepted" }
func (FileSent) Kind() string           { return "file_sent" }
func (ReceiveCompleted) Kind() string   { return "file_received" }
func (TransferFailed) Kind() string     { return "file_failed" }

// ---------------------------------------------------------------------------
// eventQueue
// ---------------------------------------------------------------------------

// eventQueue decouples the engine goroutine from listeners. push never
// blocks, so a listener may call back into the engine without deadlocking
// the mailbox loop.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.wake()
}

// next blocks until events are available. It returns false once the queue is
// closed and drained.
func (q *eventQueue) next() ([]Event, bool) {
	for {
		q.mu.Lock()
		items, closed := q.items, q.closed
		q.items = nil
		q.mu.Unlock()

		if len(items) > 0 {
			return items, true
		}
		if closed {
			return nil, false
		}
		<-q.signal
	}
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *eventQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
