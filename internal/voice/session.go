package voice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/1ureka/lanchat/internal/util"
)

type sessionState int

const (
	stateNew sessionState = iota
	stateRunning
	stateStopped
)

// Session is one call's media stream with a single peer.
//
// Start binds the voice port, starts the device and launches two goroutines:
// a receive loop that feeds playback, and a sender that drains captured
// chunks. Stop tears all of it down. A stopped session cannot be restarted;
// every call gets a new Session.
type Session struct {
	peerIP net.IP
	dev    Device
	opts   Options

	mu     sync.Mutex
	state  sessionState
	conn   net.PacketConn
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	outbox chan []byte // captured chunks waiting to be sent
}

// NewSession creates a session with the peer at peerIP. Nothing is bound
// until Start.
func NewSession(peerIP string, dev Device, opts Options) (*Session, error) {
	ip := net.ParseIP(peerIP)
	if ip == nil {
		return nil, fmt.Errorf("%w: invalid peer address %q", ErrVoice, peerIP)
	}
	return &Session{
		peerIP: ip,
		dev:    dev,
		opts:   opts,
		outbox: make(chan []byte, sendQueueSize),
	}, nil
}

// Start begins streaming. Calling Start on a running session is a no-op.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateRunning:
		return nil
	case stateStopped:
		return ErrStopped
	}

	conn, err := net.ListenPacket("udp4", ":"+strconv.Itoa(s.opts.ListenPort))
	if err != nil {
		return fmt.Errorf("%w: bind voice port %d: %w", ErrVoice, s.opts.ListenPort, err)
	}
	remote := &net.UDPAddr{IP: s.peerIP, Port: s.opts.RemotePort}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.conn = conn

	s.wg.Add(2)
	go s.receiveLoop(conn)
	go s.sendLoop(conn, remote)

	chunks := newChunker(ChunkSize)
	onCapture := func(pcm []byte) {
		chunks.push(pcm, s.enqueue)
	}
	if err := s.dev.Start(onCapture); err != nil {
		s.teardown()
		s.state = stateStopped
		return fmt.Errorf("%w: start audio device: %w", ErrVoice, err)
	}

	s.state = stateRunning
	util.LogInfo("voice: streaming with %s (listen %s)", remote, conn.LocalAddr())
	return nil
}

// Stop ends the stream. It is safe to call more than once and before Start.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state = stateStopped
	if prev != stateRunning {
		return nil
	}

	err := s.dev.Stop()
	s.teardown()
	util.LogInfo("voice: stream with %s stopped", s.peerIP)
	if err != nil {
		return fmt.Errorf("%w: stop audio device: %w", ErrVoice, err)
	}
	return nil
}

// LocalAddr returns the bound voice address, or nil when not running.
func (s *Session) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning {
		return nil
	}
	return s.conn.LocalAddr()
}

// teardown cancels the loops, closes the socket and waits. Caller holds mu.
func (s *Session) teardown() {
	s.cancel()
	s.conn.Close()
	s.wg.Wait()
}

// enqueue hands a chunk to the sender. When the network falls behind the
// chunk is dropped rather than stalling the device thread.
func (s *Session) enqueue(chunk []byte) {
	select {
	case s.outbox <- chunk:
	case <-s.ctx.Done():
	default:
		util.LogDebug("voice: send queue full, dropped chunk")
	}
}

// ---------------------------------------------------------------------------
// Loops
// ---------------------------------------------------------------------------

// sendLoop is the single writer of the socket.
func (s *Session) sendLoop(conn net.PacketConn, remote *net.UDPAddr) {
	defer s.wg.Done()

	for {
		select {
		case chunk := <-s.outbox:
			if _, err := conn.WriteTo(chunk, remote); err != nil {
				if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				util.LogDebug("voice: send error: %v", err)
				continue
			}
			util.Stats.AddVoiceSent(len(chunk))

		case <-s.ctx.Done():
			return
		}
	}
}

// receiveLoop is the single reader of the socket.
func (s *Session) receiveLoop(conn net.PacketConn) {
	defer s.wg.Done()

	var backoff util.Backoff
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			util.LogDebug("voice: receive error: %v", err)
			if !backoff.Wait(s.ctx) {
				return
			}
			continue
		}
		backoff.Reset()
		if !s.fromPeer(addr) {
			util.LogDebug("voice: discarded %d bytes from %s", n, addr)
			continue
		}

		pcm := make([]byte, n)
		copy(pcm, buf[:n])
		util.Stats.AddVoiceRecv(n)
		s.dev.Play(pcm)
	}
}

func (s *Session) fromPeer(addr net.Addr) bool {
	udpAddr, ok := addr.(*net.UDPAddr)
	return ok && udpAddr.IP.Equal(s.peerIP)
}
