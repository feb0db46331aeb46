package engine

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/lanchat/internal/filexfer"
	"github.com/1ureka/lanchat/internal/protocol"
)

// tcpFiles exposes a real filexfer.Session as Transfers.
type tcpFiles struct {
	s *filexfer.Session
}

func (f tcpFiles) SendFile(ctx context.Context, path, destIP string) (int64, error) {
	return f.s.SendFile(ctx, path, destIP)
}

func (f tcpFiles) ReceiveFile(ctx context.Context, fileName string) (Download, error) {
	r, err := f.s.ReceiveFile(ctx, fileName)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func freeTCPPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestAcceptFileSendFailureReleasesPort(t *testing.T) {
	tx := &fakeSender{}
	rx := &fakeReceiver{}
	files := tcpFiles{filexfer.New(filexfer.Options{Port: freeTCPPort(t), DownloadDir: t.TempDir()})}

	e := New(Options{Identity: identity("alice", aliceIP), Sender: tx, Receiver: rx, Files: files})
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { e.Close() })

	ctx := context.Background()
	rx.deliver("HELLO:ALL:bob:", bobIP)
	require.Eventually(t, func() bool {
		peers, err := e.Peers(ctx)
		return err == nil && len(peers) == 1
	}, waitTimeout, 10*time.Millisecond)

	tx.mu.Lock()
	tx.err = errBoom
	tx.mu.Unlock()

	require.ErrorIs(t, e.AcceptFile(ctx, "bob", "report.pdf"), errBoom)

	tx.mu.Lock()
	tx.err = nil
	tx.mu.Unlock()

	// The first listener is gone, so the port binds again.
	require.NoError(t, e.AcceptFile(ctx, "bob", "report.pdf"))
	require.Len(t, tx.sentCommand(protocol.CmdFileAccepted), 1)
}
