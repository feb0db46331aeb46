package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/1ureka/lanchat/internal/util"
)

// Sender writes datagrams to the subnet broadcast address. It is safe for
// concurrent use.
type Sender struct {
	conn net.PacketConn
	dst  *net.UDPAddr
}

// NewSender opens an ephemeral UDP socket with SO_BROADCAST set, aimed at
// broadcastIP:port.
func NewSender(broadcastIP net.IP, port int) (*Sender, error) {
	lc := net.ListenConfig{Control: broadcastControl}
	conn, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("%w: open sender socket: %w", ErrTransport, err)
	}

	return &Sender{
		conn: conn,
		dst:  &net.UDPAddr{IP: broadcastIP, Port: port},
	}, nil
}

// Send writes payload as one datagram. It does not retry.
func (s *Sender) Send(payload []byte) error {
	if _, err := s.conn.WriteTo(payload, s.dst); err != nil {
		return fmt.Errorf("%w: send to %s: %w", ErrTransport, s.dst, err)
	}
	util.Stats.AddFrameSent()
	return nil
}

// Destination returns the broadcast endpoint, e.g. "192.168.1.255:11001".
func (s *Sender) Destination() string {
	return net.JoinHostPort(s.dst.IP.String(), strconv.Itoa(s.dst.Port))
}

// Close releases the socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}
