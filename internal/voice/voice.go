// Package voice streams raw PCM between two peers over UDP for the duration
// of one call.
//
// Audio is 8 kHz, 16-bit signed little-endian, mono. Capture is cut into
// fixed 100 ms chunks and each chunk is sent as one headerless datagram.
// Inbound payloads are handed to the playback device in arrival order; there
// is no sequencing, jitter buffer or loss concealment.
package voice

import (
	"errors"
	"fmt"
)

const (
	SampleRate     = 8000
	BytesPerSample = 2
	Channels       = 1

	// ChunkSize is 100 ms of audio, the payload of every voice datagram.
	ChunkSize = SampleRate * BytesPerSample * Channels / 10

	maxDatagramSize = 64 * 1024
	sendQueueSize   = 32
)

var (
	// ErrVoice wraps socket and device failures.
	ErrVoice = errors.New("voice")
	// ErrStopped is returned when Start is called on a stopped session.
	ErrStopped = fmt.Errorf("%w: session stopped", ErrVoice)
)

// Device captures from the microphone and plays to the speaker.
type Device interface {
	// Start begins capture and playback. onCapture is called with raw PCM
	// from the device thread and must not block for long.
	Start(onCapture func(pcm []byte)) error
	// Play queues pcm for playback.
	Play(pcm []byte)
	Stop() error
}

// Options configures the UDP endpoints of a session.
type Options struct {
	ListenPort int // local voice port; 0 picks an ephemeral port
	RemotePort int // the peer's voice port
}
