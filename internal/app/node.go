// Package app wires the LAN node together: identity, discovery sockets, the
// protocol engine, voice, file transfers and the optional control bridge.
package app

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/1ureka/lanchat/internal/audio"
	"github.com/1ureka/lanchat/internal/config"
	"github.com/1ureka/lanchat/internal/control"
	"github.com/1ureka/lanchat/internal/engine"
	"github.com/1ureka/lanchat/internal/filexfer"
	"github.com/1ureka/lanchat/internal/netinfo"
	"github.com/1ureka/lanchat/internal/transport"
	"github.com/1ureka/lanchat/internal/util"
	"github.com/1ureka/lanchat/internal/voice"
)

// Node is a running LAN participant.
type Node struct {
	Identity netinfo.Identity
	Engine   *engine.Engine

	tx      *transport.Sender
	control *control.Server
}

// Start brings the node online:
//  1. Resolve the local identity
//  2. Open the discovery sockets
//  3. Build the engine with voice and file collaborators
//  4. Start the control bridge (if configured)
//  5. Join the LAN
//
// Listeners registered through onEvent see every event, including the
// PeerAdded events caused by the initial HELLO exchange. Cancelling ctx
// leaves the LAN.
func Start(ctx context.Context, cfg config.Config, onEvent func(engine.Event)) (*Node, error) {
	// ── 1. Identity ────────────────────────────────────────────────────
	id, err := netinfo.Resolve(netinfo.Options{HostName: cfg.HostName, Interface: cfg.Interface})
	if err != nil {
		return nil, err
	}
	util.LogInfo("identity: %s %s (broadcast %s)", id.HostName, id.LocalIP, id.BroadcastIP)

	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create downloads dir: %w", err)
	}

	// ── 2. Discovery sockets ───────────────────────────────────────────
	tx, err := transport.NewSender(id.BroadcastIP, cfg.DiscoveryPort)
	if err != nil {
		return nil, err
	}
	rx := transport.NewReceiver(":" + strconv.Itoa(cfg.DiscoveryPort))

	// ── 3. Engine ──────────────────────────────────────────────────────
	eng := engine.New(engine.Options{
		Identity: id,
		Sender:   tx,
		Receiver: rx,
		Calls:    voiceCalls(cfg.VoicePort),
		Files: fileTransfers{filexfer.New(filexfer.Options{
			Port:        cfg.FilePort,
			DownloadDir: cfg.DownloadDir,
			DialTimeout: cfg.DialTimeout,
		})},
	})
	if onEvent != nil {
		eng.OnEvent(onEvent)
	}

	n := &Node{Identity: id, Engine: eng, tx: tx}

	// ── 4. Control bridge ──────────────────────────────────────────────
	if cfg.ControlAddr != "" {
		n.control = control.NewServer(cfg.ControlAddr, cfg.ControlToken, eng)
		if _, err := n.control.Start(ctx); err != nil {
			tx.Close()
			return nil, err
		}
		eng.OnEvent(n.control.Broadcast)
	}

	// ── 5. Join ────────────────────────────────────────────────────────
	if err := eng.Start(ctx); err != nil {
		n.closeSockets()
		return nil, err
	}
	util.StartStatsReporter(ctx)

	return n, nil
}

// Close leaves the LAN (BYE) and releases every socket.
func (n *Node) Close() error {
	err := n.Engine.Close()
	n.closeSockets()
	return err
}

// Done is closed once the node has left the LAN.
func (n *Node) Done() <-chan struct{} {
	return n.Engine.Done()
}

func (n *Node) closeSockets() {
	if n.control != nil {
		n.control.Close()
	}
	n.tx.Close()
}

// voiceCalls builds one UDP voice session over a fresh duplex audio device
// per call.
func voiceCalls(port int) engine.CallSessionFactory {
	return func(peerIP string) (engine.CallSession, error) {
		s, err := voice.NewSession(peerIP, audio.NewDevice(), voice.Options{ListenPort: port, RemotePort: port})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// fileTransfers adapts filexfer to the engine's Transfers interface.
type fileTransfers struct {
	s *filexfer.Session
}

func (f fileTransfers) SendFile(ctx context.Context, path, destIP string) (int64, error) {
	return f.s.SendFile(ctx, path, destIP)
}

func (f fileTransfers) ReceiveFile(ctx context.Context, fileName string) (engine.Download, error) {
	r, err := f.s.ReceiveFile(ctx, fileName)
	if err != nil {
		return nil, err
	}
	return r, nil
}
