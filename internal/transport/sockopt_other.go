//go:build !unix && !windows

package transport

import "syscall"

// broadcastControl is a no-op where the socket options are not exposed.
func broadcastControl(network, address string, c syscall.RawConn) error {
	return nil
}
