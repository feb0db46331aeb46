package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/1ureka/lanchat/internal/util"
)

// Receiver reads datagrams from the discovery port on a dedicated goroutine.
//
// Cancellation is by closing the socket: Close (or cancelling the context
// given to Start) unblocks the pending read, and the loop exits without
// reporting an error.
type Receiver struct {
	addr string

	mu     sync.Mutex
	conn   net.PacketConn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReceiver creates a receiver that will bind addr, e.g. ":11001".
func NewReceiver(addr string) *Receiver {
	return &Receiver{addr: addr}
}

// Start binds the socket and launches the receive loop. onData is called
// from the loop goroutine with a private copy of each payload and the
// sender's IP. Start may only be called once.
func (r *Receiver) Start(ctx context.Context, onData func(payload []byte, srcIP string)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return fmt.Errorf("%w: receiver already started", ErrTransport)
	}

	lc := net.ListenConfig{Control: broadcastControl}
	conn, err := lc.ListenPacket(ctx, "udp4", r.addr)
	if err != nil {
		return fmt.Errorf("%w: bind %s: %w", ErrTransport, r.addr, err)
	}

	rCtx, cancel := context.WithCancel(ctx)
	r.conn = conn
	r.cancel = cancel
	r.done = make(chan struct{})

	// Close the socket when the context is done so ReadFrom returns.
	go func() {
		<-rCtx.Done()
		conn.Close()
	}()

	go r.loop(rCtx, conn, onData)

	util.LogDebug("discovery receiver listening on %s", conn.LocalAddr())
	return nil
}

// packetReader is the read half of net.PacketConn.
type packetReader interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
}

// loop is the single reader of the socket. Read errors other than a close
// are retried with a growing delay.
func (r *Receiver) loop(ctx context.Context, conn packetReader, onData func([]byte, string)) {
	defer close(r.done)

	var backoff util.Backoff
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				// Intentional stop.
				return
			}
			util.LogWarning("discovery receive error: %v", err)
			if !backoff.Wait(ctx) {
				return
			}
			continue
		}
		backoff.Reset()

		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		util.Stats.AddFrameRecv()

		onData(payload, udpAddr.IP.String())
	}
}

// Addr returns the bound address, or nil before Start.
func (r *Receiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Done is closed once the receive loop has exited. It returns nil before
// Start.
func (r *Receiver) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Close stops the loop and releases the socket. Safe to call more than once
// and before Start.
func (r *Receiver) Close() error {
	r.mu.Lock()
	cancel, conn := r.cancel, r.conn
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: close receiver: %w", ErrTransport, err)
	}
	return nil
}
