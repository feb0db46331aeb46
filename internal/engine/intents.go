package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/1ureka/lanchat/internal/protocol"
	"github.com/1ureka/lanchat/internal/util"
)

// Local intents. Each one runs on the engine goroutine. Requests that are
// illegal in the current call state are ignored and return nil.

// Call dials host: Idle → RingOut, send RING.
func (e *Engine) Call(ctx context.Context, host string) error {
	return e.do(ctx, func() error {
		p, ok := e.peers[host]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPeer, host)
		}
		if p.State != Idle || e.active != "" {
			util.LogDebug("ignored call to %s: busy", host)
			return nil
		}

		if err := e.send(protocol.CmdRing, host, ""); err != nil {
			return err
		}
		e.setState(p, RingOut)
		return nil
	})
}

// Accept picks up the ringing call: RingIn → InProgress, send CALL_ACCEPTED,
// start the call session.
func (e *Engine) Accept(ctx context.Context) error {
	return e.do(ctx, func() error {
		p := e.activePeer()
		if p == nil || p.State != RingIn {
			util.LogDebug("ignored accept: no incoming call")
			return nil
		}

		e.setState(p, InProgress)
		sendErr := e.send(protocol.CmdCallAccepted, p.HostName, "")
		return errors.Join(sendErr, e.startSession(p))
	})
}

// EndCall hangs up or rejects: any non-Idle state → Idle, send END_CALL,
// stop the call session.
func (e *Engine) EndCall(ctx context.Context) error {
	return e.do(ctx, func() error {
		p := e.activePeer()
		if p == nil {
			util.LogDebug("ignored hang-up: no call")
			return nil
		}

		e.stopSession()
		e.setState(p, Idle)
		return e.send(protocol.CmdEndCall, p.HostName, "")
	})
}

// SendText sends a chat message to host.
func (e *Engine) SendText(ctx context.Context, host, text string) error {
	return e.do(ctx, func() error {
		if _, ok := e.peers[host]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPeer, host)
		}
		warnDelimiter("message", text)
		return e.send(protocol.CmdText, host, text)
	})
}

// SendFile offers the file at path to host. The transfer starts when host
// answers with FILE_ACCEPTED.
func (e *Engine) SendFile(ctx context.Context, host, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("offer file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("offer file: %s is not a regular file", path)
	}

	return e.do(ctx, func() error {
		if _, ok := e.peers[host]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPeer, host)
		}

		name := filepath.Base(path)
		warnDelimiter("file name", name)
		if prev, ok := e.pending[name]; ok {
			util.LogWarning("replacing pending offer of %s to %s", name, prev.HostName)
		}
		e.pending[name] = FileRequest{HostName: host, FileName: name, SourcePath: path}

		return e.send(protocol.CmdFile, host, name)
	})
}

// AcceptFile starts receiving fileName from host, then tells host to send it.
// FILE_ACCEPTED is only sent once the local listener is bound. If it cannot
// be sent the listener is closed before AcceptFile returns.
func (e *Engine) AcceptFile(ctx context.Context, host, fileName string) error {
	return e.do(ctx, func() error {
		if e.files == nil {
			return ErrNoTransfers
		}
		if _, ok := e.peers[host]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPeer, host)
		}

		rctx, cancel := context.WithCancel(e.ctx)
		dl, err := e.files.ReceiveFile(rctx, fileName)
		if err != nil {
			cancel()
			return err
		}

		if err := e.send(protocol.CmdFileAccepted, host, fileName); err != nil {
			// The sender will never connect; release the port now.
			cancel()
			dl.Wait()
			return err
		}

		e.waitReceive(host, fileName, dl, cancel)
		return nil
	})
}

// Peers returns a snapshot of the directory sorted by host name.
func (e *Engine) Peers(ctx context.Context) ([]Peer, error) {
	var out []Peer
	err := e.do(ctx, func() error {
		out = make([]Peer, 0, len(e.peers))
		for _, p := range e.peers {
			out = append(out, *p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].HostName < out[j].HostName })
	return out, err
}

// ActiveCall returns the current call target, if any.
func (e *Engine) ActiveCall(ctx context.Context) (Peer, bool, error) {
	var (
		out Peer
		ok  bool
	)
	err := e.do(ctx, func() error {
		if p := e.activePeer(); p != nil {
			out, ok = *p, true
		}
		return nil
	})
	return out, ok, err
}

// PendingOffers returns the outbound offers still waiting for acceptance.
func (e *Engine) PendingOffers(ctx context.Context) ([]FileRequest, error) {
	var out []FileRequest
	err := e.do(ctx, func() error {
		for _, req := range e.pending {
			out = append(out, req)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out, err
}

// warnDelimiter flags params that peers will drop as malformed.
func warnDelimiter(what, s string) {
	if strings.Contains(s, protocol.Delimiter) {
		util.LogWarning("%s contains %q; peers will drop this frame", what, protocol.Delimiter)
	}
}
