// Package engine implements the peer-to-peer signaling protocol: the peer
// directory, frame routing, the call state machine and file offers.
//
// All engine state is owned by one goroutine. Inbound datagrams, transfer
// completions and local intents are posted into a single-consumer mailbox and
// executed there in arrival order, so the directory and call state need no
// locks. Events are handed to listeners on a separate dispatch goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/1ureka/lanchat/internal/netinfo"
	"github.com/1ureka/lanchat/internal/protocol"
	"github.com/1ureka/lanchat/internal/util"
)

// Errors returned by intents.
var (
	ErrNotStarted  = errors.New("engine not started")
	ErrClosed      = errors.New("engine closed")
	ErrUnknownPeer = errors.New("unknown peer")
	ErrNoTransfers = errors.New("file transfers not configured")
)

const mailboxSize = 64

// Sender broadcasts one datagram to the subnet.
type Sender interface {
	Send(payload []byte) error
}

// Receiver delivers datagrams from the discovery port until closed.
type Receiver interface {
	Start(ctx context.Context, onData func(payload []byte, srcIP string)) error
	Close() error
}

// CallSession streams media for one call. Start and Stop are idempotent.
type CallSession interface {
	Start() error
	Stop() error
}

// CallSessionFactory creates the media session for a call with peerIP.
type CallSessionFactory func(peerIP string) (CallSession, error)

// Download is an inbound transfer in progress.
type Download interface {
	// Wait blocks until the transfer ends and returns the written path and
	// byte count.
	Wait() (path string, n int64, err error)
}

// Transfers moves files between peers.
type Transfers interface {
	SendFile(ctx context.Context, path, destIP string) (int64, error)
	ReceiveFile(ctx context.Context, fileName string) (Download, error)
}

// Options wires an Engine to its collaborators. Calls and Files may be nil,
// in which case calls only signal and file offers cannot be accepted.
type Options struct {
	Identity netinfo.Identity
	Sender   Sender
	Receiver Receiver
	Calls    CallSessionFactory
	Files    Transfers
}

// Engine is the protocol engine. Create it with New, register listeners with
// OnEvent, then Start it.
type Engine struct {
	id      netinfo.Identity
	localIP string
	tx      Sender
	rx      Receiver
	newCall CallSessionFactory
	files   Transfers

	mailbox chan func()
	events  *eventQueue

	listenersMu sync.RWMutex
	listeners   []func(Event)

	// Owned by the loop goroutine.
	peers   map[string]*Peer
	active  string // host name of the call target, "" when no call
	session CallSession
	pending map[string]FileRequest

	// Lifecycle
	ctx          context.Context
	cancel       context.CancelFunc
	started      atomic.Bool
	closeOnce    sync.Once
	quit         chan struct{} // closed when the loop exits
	dispatchDone chan struct{}
	dispatching  atomic.Bool // a listener is running
	wg           sync.WaitGroup // transfer goroutines
}

// New creates an engine that is not yet listening.
func New(opts Options) *Engine {
	return &Engine{
		id:           opts.Identity,
		localIP:      opts.Identity.LocalIP.String(),
		tx:           opts.Sender,
		rx:           opts.Receiver,
		newCall:      opts.Calls,
		files:        opts.Files,
		mailbox:      make(chan func(), mailboxSize),
		events:       newEventQueue(),
		peers:        make(map[string]*Peer),
		pending:      make(map[string]FileRequest),
		quit:         make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}
}

// OnEvent registers a listener. Listeners run on the dispatch goroutine, one
// event at a time; they may call engine intents and Close. A Close issued
// from a listener returns without waiting for the remaining events to be
// delivered.
func (e *Engine) OnEvent(fn func(Event)) {
	e.listenersMu.Lock()
	e.listeners = append(e.listeners, fn)
	e.listenersMu.Unlock()
}

// HostName returns the local identity announced to peers.
func (e *Engine) HostName() string {
	return e.id.HostName
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Start launches the mailbox loop, starts the receiver and broadcasts HELLO.
// When ctx is cancelled the engine closes itself (BYE is still sent).
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine already started")
	}

	e.ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))

	go e.loop()
	go e.dispatch()

	if err := e.rx.Start(e.ctx, e.onDatagram); err != nil {
		e.shutdown()
		return fmt.Errorf("start receiver: %w", err)
	}

	go func() {
		select {
		case <-ctx.Done():
			e.Close()
		case <-e.quit:
		}
	}()

	util.LogInfo("joined LAN as %s (%s)", e.id.HostName, e.localIP)

	return e.do(ctx, func() error {
		return e.send(protocol.CmdHello, protocol.Broadcast, "")
	})
}

// Close ends any call, broadcasts BYE, closes the receiver and stops the
// engine. Safe to call more than once.
func (e *Engine) Close() error {
	if !e.started.Load() {
		return nil
	}

	var err error
	e.closeOnce.Do(func() {
		err = e.do(context.Background(), func() error {
			e.stopSession()
			if p := e.activePeer(); p != nil {
				e.setState(p, Idle)
			}
			return e.send(protocol.CmdBye, protocol.Broadcast, "")
		})
		if rxErr := e.rx.Close(); rxErr != nil {
			err = errors.Join(err, rxErr)
		}
		e.shutdown()
		util.LogInfo("left LAN")
	})
	return err
}

// shutdown stops the loop, waits for transfer goroutines and drains events.
func (e *Engine) shutdown() {
	e.cancel()
	<-e.quit
	e.wg.Wait()
	e.events.close()
	if e.dispatching.Load() {
		// Called from a listener; dispatch drains and exits on its own.
		return
	}
	<-e.dispatchDone
}

// Done is closed once the engine has stopped.
func (e *Engine) Done() <-chan struct{} {
	return e.quit
}

// ---------------------------------------------------------------------------
// Mailbox
// ---------------------------------------------------------------------------

// loop is the single owner of peers, active, session and pending.
func (e *Engine) loop() {
	defer close(e.quit)
	for {
		select {
		case fn := <-e.mailbox:
			fn()
		case <-e.ctx.Done():
			return
		}
	}
}

// post enqueues fn for the loop. It reports false once the loop has exited.
func (e *Engine) post(fn func()) bool {
	select {
	case e.mailbox <- fn:
		return true
	case <-e.quit:
		return false
	}
}

// do runs fn on the loop and waits for its result.
func (e *Engine) do(ctx context.Context, fn func() error) error {
	if !e.started.Load() {
		return ErrNotStarted
	}

	result := make(chan error, 1)
	select {
	case e.mailbox <- func() { result <- fn() }:
	case <-e.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-e.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onDatagram is the receiver callback; it runs on the receiver goroutine.
func (e *Engine) onDatagram(payload []byte, srcIP string) {
	e.post(func() { e.handleDatagram(payload, srcIP) })
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func (e *Engine) emit(ev Event) {
	e.events.push(ev)
}

func (e *Engine) dispatch() {
	defer close(e.dispatchDone)
	for {
		batch, ok := e.events.next()
		if !ok {
			return
		}

		e.listenersMu.RLock()
		listeners := e.listeners
		e.listenersMu.RUnlock()

		e.dispatching.Store(true)
		for _, ev := range batch {
			for _, fn := range listeners {
				fn(ev)
			}
		}
		e.dispatching.Store(false)
	}
}

// ---------------------------------------------------------------------------
// Helpers (loop goroutine only)
// ---------------------------------------------------------------------------

// send encodes and broadcasts one frame. Failures are logged and returned;
// nothing is retried.
func (e *Engine) send(cmd protocol.Command, target, param string) error {
	f := &protocol.Frame{Command: cmd, Target: target, Sender: e.id.HostName, Param: param}
	if err := e.tx.Send(protocol.Encode(f)); err != nil {
		util.LogWarning("failed to send %s to %s: %v", cmd, target, err)
		return err
	}
	util.LogDebug("sent %s to %s", cmd, target)
	return nil
}

func (e *Engine) activePeer() *Peer {
	if e.active == "" {
		return nil
	}
	return e.peers[e.active]
}

// setState moves p to state, maintaining the active call pointer.
func (e *Engine) setState(p *Peer, state CallState) {
	if p.State == state {
		return
	}
	p.State = state
	if state == Idle {
		if e.active == p.HostName {
			e.active = ""
		}
	} else {
		e.active = p.HostName
	}
	util.LogDebug("call with %s: %s", p.HostName, state)
	e.emit(CallStateChanged{HostName: p.HostName, State: state})
}
