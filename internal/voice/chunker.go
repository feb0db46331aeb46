package voice

// chunker re-slices an arbitrary capture stream into fixed-size chunks.
type chunker struct {
	size int
	buf  []byte
}

func newChunker(size int) *chunker {
	return &chunker{size: size, buf: make([]byte, 0, size)}
}

// push appends p and calls emit once per completed chunk. Each chunk passed
// to emit is a fresh slice the callee may keep.
func (c *chunker) push(p []byte, emit func(chunk []byte)) {
	for len(p) > 0 {
		n := min(c.size-len(c.buf), len(p))
		c.buf = append(c.buf, p[:n]...)
		p = p[n:]

		if len(c.buf) == c.size {
			chunk := make([]byte, c.size)
			copy(chunk, c.buf)
			c.buf = c.buf[:0]
			emit(chunk)
		}
	}
}

// pending returns the number of buffered bytes not yet emitted.
func (c *chunker) pending() int {
	return len(c.buf)
}
