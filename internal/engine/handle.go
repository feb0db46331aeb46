package engine

import (
	"github.com/1ureka/lanchat/internal/protocol"
	"github.com/1ureka/lanchat/internal/util"
)

// handleDatagram applies the routing rules and dispatches one inbound frame.
// Malformed, self-originated and foreign-addressed frames are dropped
// silently.
func (e *Engine) handleDatagram(payload []byte, srcIP string) {
	if srcIP == e.localIP {
		return
	}

	f, err := protocol.Decode(payload)
	if err != nil {
		util.LogDebug("dropped frame from %s: %v", srcIP, err)
		return
	}

	if !f.IsBroadcast() && f.Target != e.id.HostName {
		return
	}
	if f.Sender == "" {
		util.LogDebug("dropped %s from %s: empty sender", f.Command, srcIP)
		return
	}
	if !f.Command.Known() {
		util.LogDebug("ignored unknown command %q from %s", f.Command, f.Sender)
		return
	}

	util.LogDebug("received %s from %s (%s)", f.Command, f.Sender, srcIP)

	switch f.Command {
	case protocol.CmdHello:
		e.upsertPeer(f.Sender, srcIP)
		e.send(protocol.CmdWelcome, f.Sender, "")

	case protocol.CmdWelcome:
		e.upsertPeer(f.Sender, srcIP)

	case protocol.CmdBye:
		e.removePeer(f.Sender)

	case protocol.CmdRing:
		e.handleRing(f.Sender)

	case protocol.CmdCallAccepted:
		e.handleCallAccepted(f.Sender)

	case protocol.CmdEndCall:
		e.handleEndCall(f.Sender)

	case protocol.CmdText:
		e.emit(TextMessageArrived{HostName: f.Sender, Text: f.Param})

	case protocol.CmdFile:
		e.emit(FileSendRequested{HostName: f.Sender, FileName: f.Param})

	case protocol.CmdFileAccepted:
		e.emit(FileAccepted{HostName: f.Sender, FileName: f.Param})
		e.startSend(f.Sender, f.Param, srcIP)
	}
}

// upsertPeer adds a peer or refreshes its address.
func (e *Engine) upsertPeer(host, ip string) {
	if p, ok := e.peers[host]; ok {
		if p.IP != ip {
			p.IP = ip
			util.LogEvent("peer moved", "host", host, "ip", ip)
			e.emit(PeerUpdated{Peer: *p})
		}
		return
	}

	p := &Peer{HostName: host, IP: ip, State: Idle}
	e.peers[host] = p
	util.LogEvent("peer online", "host", host, "ip", ip)
	e.emit(PeerAdded{Peer: *p})
}

// removePeer drops a peer. Unknown hosts are ignored, which makes repeated
// BYEs harmless. A call with the departing peer ends locally.
func (e *Engine) removePeer(host string) {
	p, ok := e.peers[host]
	if !ok {
		return
	}

	if e.active == host {
		e.stopSession()
		e.setState(p, Idle)
		e.emit(EndCallRequested{HostName: host})
	}

	for name, req := range e.pending {
		if req.HostName == host {
			delete(e.pending, name)
		}
	}

	delete(e.peers, host)
	util.LogEvent("peer offline", "host", host)
	e.emit(PeerRemoved{HostName: host})
}

// handleRing: Idle → RingIn, only when no other call is active.
func (e *Engine) handleRing(host string) {
	p, ok := e.peers[host]
	if !ok {
		util.LogDebug("ignored RING from unknown peer %s", host)
		return
	}
	if p.State != Idle || e.active != "" {
		util.LogDebug("ignored RING from %s: busy (%s)", host, p.State)
		return
	}

	e.setState(p, RingIn)
	e.emit(IncomingCall{HostName: host})
}

// handleCallAccepted: RingOut → InProgress for the active call target.
func (e *Engine) handleCallAccepted(host string) {
	p := e.activePeer()
	if p == nil || p.HostName != host || p.State != RingOut {
		util.LogDebug("ignored CALL_ACCEPTED from %s", host)
		return
	}

	e.setState(p, InProgress)
	if err := e.startSession(p); err != nil {
		util.LogError("failed to start call with %s: %v", host, err)
	}
	e.emit(CallAccepted{HostName: host})
}

// handleEndCall: any non-Idle state → Idle for the active call target.
func (e *Engine) handleEndCall(host string) {
	p := e.activePeer()
	if p == nil || p.HostName != host {
		util.LogDebug("ignored END_CALL from %s", host)
		return
	}

	e.stopSession()
	e.setState(p, Idle)
	e.emit(EndCallRequested{HostName: host})
}
