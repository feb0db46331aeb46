package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/lanchat/internal/netinfo"
	"github.com/1ureka/lanchat/internal/protocol"
)

const waitTimeout = 2 * time.Second

// ---------------------------------------------------------------------------
// Sender / Receiver fakes
// ---------------------------------------------------------------------------

// fakeSender records every frame the engine broadcasts.
type fakeSender struct {
	mu     sync.Mutex
	frames []protocol.Frame
	err    error
}

func (s *fakeSender) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	f, err := protocol.Decode(payload)
	if err != nil {
		return err
	}
	s.frames = append(s.frames, *f)
	return nil
}

func (s *fakeSender) sent() []protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Frame(nil), s.frames...)
}

func (s *fakeSender) sentCommand(cmd protocol.Command) []protocol.Frame {
	var out []protocol.Frame
	for _, f := range s.sent() {
		if f.Command == cmd {
			out = append(out, f)
		}
	}
	return out
}

// fakeReceiver lets the test inject datagrams as if they came off the wire.
type fakeReceiver struct {
	mu     sync.Mutex
	onData func([]byte, string)
	closed bool
}

func (r *fakeReceiver) Start(ctx context.Context, onData func([]byte, string)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onData = onData
	return nil
}

func (r *fakeReceiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReceiver) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *fakeReceiver) deliver(raw, srcIP string) {
	r.mu.Lock()
	fn := r.onData
	r.mu.Unlock()
	if fn != nil {
		fn([]byte(raw), srcIP)
	}
}

// ---------------------------------------------------------------------------
// Call session fakes
// ---------------------------------------------------------------------------

type fakeCall struct {
	ip      string
	mu      sync.Mutex
	starts  int
	stops   int
	running bool
}

func (c *fakeCall) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	c.running = true
	return nil
}

func (c *fakeCall) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.running = false
	return nil
}

func (c *fakeCall) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

type callRecorder struct {
	mu    sync.Mutex
	calls []*fakeCall
}

func (r *callRecorder) factory(peerIP string) (CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &fakeCall{ip: peerIP}
	r.calls = append(r.calls, c)
	return c, nil
}

func (r *callRecorder) all() []*fakeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*fakeCall(nil), r.calls...)
}

// ---------------------------------------------------------------------------
// Transfer fakes
// ---------------------------------------------------------------------------

type sendCall struct {
	path, destIP string
}

type fakeDownload struct {
	ctx    context.Context
	name   string
	result chan downloadResult
}

type downloadResult struct {
	path string
	n    int64
	err  error
}

func (d *fakeDownload) Wait() (string, int64, error) {
	select {
	case r := <-d.result:
		return r.path, r.n, r.err
	case <-d.ctx.Done():
		return "", 0, d.ctx.Err()
	}
}

type fakeTransfers struct {
	sends     chan sendCall
	sendN     int64
	sendErr   error
	recvErr   error
	downloads chan *fakeDownload
}

func newFakeTransfers() *fakeTransfers {
	return &fakeTransfers{
		sends:     make(chan sendCall, 8),
		downloads: make(chan *fakeDownload, 8),
	}
}

func (f *fakeTransfers) SendFile(ctx context.Context, path, destIP string) (int64, error) {
	f.sends <- sendCall{path: path, destIP: destIP}
	return f.sendN, f.sendErr
}

func (f *fakeTransfers) ReceiveFile(ctx context.Context, fileName string) (Download, error) {
	if f.recvErr != nil {
		return nil, f.recvErr
	}
	d := &fakeDownload{ctx: ctx, name: fileName, result: make(chan downloadResult, 1)}
	f.downloads <- d
	return d, nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

// harness is one engine wired to fakes, with its events captured in order.
type harness struct {
	e      *Engine
	host   string
	ip     string
	tx     *fakeSender
	rx     *fakeReceiver
	calls  *callRecorder
	files  *fakeTransfers
	events chan Event
	flushN int
}

func newHarness(t *testing.T, host, ip string) *harness {
	t.Helper()
	h := &harness{
		host:   host,
		ip:     ip,
		tx:     &fakeSender{},
		rx:     &fakeReceiver{},
		calls:  &callRecorder{},
		files:  newFakeTransfers(),
		events: make(chan Event, 256),
	}
	h.e = New(Options{
		Identity: identity(host, ip),
		Sender:   h.tx,
		Receiver: h.rx,
		Calls:    h.calls.factory,
		Files:    h.files,
	})
	h.e.OnEvent(func(ev Event) { h.events <- ev })
	require.NoError(t, h.e.Start(context.Background()))
	t.Cleanup(func() { h.e.Close() })
	return h
}

func identity(host, ip string) netinfo.Identity {
	return netinfo.Identity{
		HostName:    host,
		LocalIP:     net.ParseIP(ip).To4(),
		BroadcastIP: net.IPv4(10, 0, 0, 255).To4(),
	}
}

// inject delivers a raw frame as if it arrived from srcIP.
func (h *harness) inject(raw, srcIP string) {
	h.rx.deliver(raw, srcIP)
}

// addPeer introduces host via HELLO and waits until it is in the directory.
func (h *harness) addPeer(t *testing.T, host, ip string) {
	t.Helper()
	h.inject(fmt.Sprintf("HELLO:ALL:%s:", host), ip)
	waitEvent[PeerAdded](t, h)
}

// flush injects a sentinel TEXT and returns every event raised before it.
// Because the mailbox and the dispatcher are both FIFO, the result is the
// complete set of events caused by earlier injections.
func (h *harness) flush(t *testing.T) []Event {
	t.Helper()
	h.flushN++
	token := fmt.Sprintf("flush-%d", h.flushN)
	h.inject(fmt.Sprintf("TEXT:%s:flusher:%s", h.host, token), "10.9.9.9")

	var out []Event
	for {
		ev := nextEvent(t, h)
		if tm, ok := ev.(TextMessageArrived); ok && tm.HostName == "flusher" && tm.Text == token {
			return out
		}
		out = append(out, ev)
	}
}

func (h *harness) peer(t *testing.T, host string) (Peer, bool) {
	t.Helper()
	peers, err := h.e.Peers(context.Background())
	require.NoError(t, err)
	for _, p := range peers {
		if p.HostName == host {
			return p, true
		}
	}
	return Peer{}, false
}

func (h *harness) state(t *testing.T, host string) CallState {
	t.Helper()
	p, ok := h.peer(t, host)
	require.True(t, ok, "peer %s not in directory", host)
	return p.State
}

func nextEvent(t *testing.T, h *harness) Event {
	t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// waitEvent skips events until one of type T arrives.
func waitEvent[T Event](t *testing.T, h *harness) T {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-h.events:
			if v, ok := ev.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func countEvents[T Event](events []Event) int {
	n := 0
	for _, ev := range events {
		if _, ok := ev.(T); ok {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")
