// Package transport carries control frames over UDP broadcast on the
// discovery port. Delivery is best-effort: no acknowledgment, no retry, no
// ordering.
package transport

import (
	"errors"
)

// ErrTransport wraps every socket-level failure (open, bind, write, read).
var ErrTransport = errors.New("transport error")

// maxDatagramSize is the largest UDP payload the receiver accepts.
const maxDatagramSize = 64 * 1024
