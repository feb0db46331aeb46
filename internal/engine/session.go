package engine

import (
	"context"

	"github.com/dustin/go-humanize"

	"github.com/1ureka/lanchat/internal/util"
)

// ---------------------------------------------------------------------------
// Call session (loop goroutine only)
// ---------------------------------------------------------------------------

// startSession creates and starts media for the call with p.
func (e *Engine) startSession(p *Peer) error {
	if e.newCall == nil {
		return nil
	}
	e.stopSession()

	s, err := e.newCall(p.IP)
	if err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		s.Stop()
		return err
	}
	e.session = s
	util.LogInfo("call with %s started", p.HostName)
	return nil
}

func (e *Engine) stopSession() {
	if e.session == nil {
		return
	}
	if err := e.session.Stop(); err != nil {
		util.LogWarning("failed to stop call session: %v", err)
	}
	e.session = nil
	util.LogInfo("call ended")
}

// ---------------------------------------------------------------------------
// File transfers
// ---------------------------------------------------------------------------

// startSend consumes the pending offer for fileName and sends it to destIP in
// the background. The outcome is posted back to the loop as an event.
func (e *Engine) startSend(host, fileName, destIP string) {
	req, ok := e.pending[fileName]
	if !ok || req.HostName != host {
		util.LogDebug("no pending offer of %s to %s", fileName, host)
		return
	}
	if e.files == nil {
		util.LogWarning("cannot send %s: %v", fileName, ErrNoTransfers)
		return
	}
	delete(e.pending, fileName)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		n, err := e.files.SendFile(e.ctx, req.SourcePath, destIP)
		e.post(func() {
			if err != nil {
				util.LogError("failed to send %s to %s: %v", fileName, host, err)
				e.emit(TransferFailed{HostName: host, FileName: fileName, Outbound: true, Reason: err.Error(), Err: err})
				return
			}
			util.LogSuccess("sent %s to %s (%s)", fileName, host, humanize.IBytes(uint64(n)))
			e.emit(FileSent{HostName: host, FileName: fileName, Bytes: n})
		})
	}()
}

// waitReceive waits for dl in the background and posts the outcome. cancel
// releases the transfer's context once it is over.
func (e *Engine) waitReceive(host, fileName string, dl Download, cancel context.CancelFunc) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()

		path, n, err := dl.Wait()
		e.post(func() {
			if err != nil {
				if util.IsBenignDisconnect(err) && e.ctx.Err() != nil {
					util.LogDebug("receive of %s stopped", fileName)
					return
				}
				util.LogError("failed to receive %s from %s: %v", fileName, host, err)
				e.emit(TransferFailed{HostName: host, FileName: fileName, Reason: err.Error(), Err: err})
				return
			}
			util.LogSuccess("received %s from %s (%s)", fileName, host, humanize.IBytes(uint64(n)))
			e.emit(ReceiveCompleted{HostName: host, FileName: fileName, Path: path, Bytes: n})
		})
	}()
}
