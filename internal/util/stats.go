package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide traffic counter.
var Stats = &stats{}

type stats struct {
	FramesSent atomic.Int64 // control frames broadcast on the discovery port
	FramesRecv atomic.Int64 // datagrams read from the discovery port
	VoiceSent  atomic.Int64 // voice bytes written to the peer
	VoiceRecv  atomic.Int64 // voice bytes read from the peer
	FileSent   atomic.Int64 // file bytes written over TCP
	FileRecv   atomic.Int64 // file bytes read over TCP
}

func (s *stats) AddFrameSent()      { s.FramesSent.Add(1) }
func (s *stats) AddFrameRecv()      { s.FramesRecv.Add(1) }
func (s *stats) AddVoiceSent(n int) { s.VoiceSent.Add(int64(n)) }
func (s *stats) AddVoiceRecv(n int) { s.VoiceRecv.Add(int64(n)) }
func (s *stats) AddFileSent(n int)  { s.FileSent.Add(int64(n)) }
func (s *stats) AddFileRecv(n int)  { s.FileRecv.Add(int64(n)) }

// snapshot is a point-in-time copy of the counters.
type snapshot struct {
	framesSent, framesRecv int64
	voiceSent, voiceRecv   int64
	fileSent, fileRecv     int64
}

func (s *stats) snapshot() snapshot {
	return snapshot{
		framesSent: s.FramesSent.Load(),
		framesRecv: s.FramesRecv.Load(),
		voiceSent:  s.VoiceSent.Load(),
		voiceRecv:  s.VoiceRecv.Load(),
		fileSent:   s.FileSent.Load(),
		fileRecv:   s.FileRecv.Load(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs traffic statistics every
// 10 seconds while there is voice or file traffic. It stops when ctx is
// cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		prev := Stats.snapshot()
		for {
			select {
			case <-ticker.C:
				cur := Stats.snapshot()
				if line, ok := formatStats(prev, cur, reportInterval); ok {
					pterm.DefaultLogger.Info(line)
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// formatStats renders the delta between two snapshots. It reports false when
// nothing but signaling moved during the interval.
func formatStats(prev, cur snapshot, interval time.Duration) (string, bool) {
	secs := interval.Seconds()
	voiceOut := float64(cur.voiceSent-prev.voiceSent) / secs
	voiceIn := float64(cur.voiceRecv-prev.voiceRecv) / secs
	fileOut := cur.fileSent - prev.fileSent
	fileIn := cur.fileRecv - prev.fileRecv

	if voiceOut == 0 && voiceIn == 0 && fileOut == 0 && fileIn == 0 {
		return "", false
	}

	return fmt.Sprintf("Voice: %s/s↑ %s/s↓ | Files: %s↑ %s↓ | Frames: %d↑ %d↓",
		humanize.IBytes(uint64(voiceOut)),
		humanize.IBytes(uint64(voiceIn)),
		humanize.IBytes(uint64(fileOut)),
		humanize.IBytes(uint64(fileIn)),
		cur.framesSent-prev.framesSent,
		cur.framesRecv-prev.framesRecv,
	), true
}
