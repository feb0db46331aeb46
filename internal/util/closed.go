// Package util provides logging, traffic counters and small network helpers
// shared by every lanchat package.
package util

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// IsBenignDisconnect reports whether err is the expected result of tearing a
// socket down on purpose: EOF, a closed connection, a reset or broken pipe
// from the remote side, or a cancelled context. Blocking loops use it to tell
// an intentional stop apart from a real failure.
func IsBenignDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
