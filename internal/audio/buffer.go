package audio

import "sync"

// playbackBuffer is a bounded FIFO of PCM bytes shared between the network
// goroutine (Write) and the device callback (Read).
type playbackBuffer struct {
	mu    sync.Mutex
	data  []byte
	limit int
}

func newPlaybackBuffer(limit int) *playbackBuffer {
	return &playbackBuffer{limit: limit, data: make([]byte, 0, limit)}
}

// Write appends p. Bytes that do not fit are dropped; it returns the number
// kept.
func (b *playbackBuffer) Write(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := min(b.limit-len(b.data), len(p))
	b.data = append(b.data, p[:n]...)
	return n
}

// Read fills out from the front of the buffer and pads the rest with
// silence. It returns the number of real bytes copied.
func (b *playbackBuffer) Read(out []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(out, b.data)
	clear(out[n:])

	// Shift the remainder down so the backing array never grows.
	rest := copy(b.data, b.data[n:])
	b.data = b.data[:rest]
	return n
}

// Len returns the number of buffered bytes.
func (b *playbackBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Reset discards everything buffered.
func (b *playbackBuffer) Reset() {
	b.mu.Lock()
	b.data = b.data[:0]
	b.mu.Unlock()
}
