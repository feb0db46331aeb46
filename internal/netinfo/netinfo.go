// Package netinfo resolves the local identity used on the LAN: host name,
// IPv4 address and the subnet's broadcast address.
package netinfo

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/wlynxg/anet"
)

// ErrResolution is returned when no usable IPv4 interface is found.
var ErrResolution = errors.New("network identity resolution failed")

// Identity is computed once at startup and never changes afterwards.
type Identity struct {
	HostName    string
	LocalIP     net.IP
	BroadcastIP net.IP
}

// Options narrows the lookup. Zero values mean "auto".
type Options struct {
	HostName  string // overrides os.Hostname
	Interface string // only consider this interface
}

// candidate is one interface with its addresses, decoupled from the OS so the
// selection logic can be tested.
type candidate struct {
	iface net.Interface
	addrs []net.Addr
}

// Resolve queries the OS for the local identity.
func Resolve(opts Options) (Identity, error) {
	hostName := opts.HostName
	if hostName == "" {
		h, err := os.Hostname()
		if err != nil {
			return Identity{}, fmt.Errorf("%w: hostname: %w", ErrResolution, err)
		}
		hostName = h
	}

	ifaces, err := anet.Interfaces()
	if err != nil {
		return Identity{}, fmt.Errorf("%w: list interfaces: %w", ErrResolution, err)
	}

	cands := make([]candidate, 0, len(ifaces))
	for i := range ifaces {
		addrs, err := anet.InterfaceAddrsByInterface(&ifaces[i])
		if err != nil {
			continue
		}
		cands = append(cands, candidate{iface: ifaces[i], addrs: addrs})
	}

	ipNet, err := pick(cands, opts.Interface)
	if err != nil {
		return Identity{}, err
	}

	return Identity{
		HostName:    hostName,
		LocalIP:     ipNet.IP,
		BroadcastIP: BroadcastAddr(ipNet),
	}, nil
}

// pick returns the first IPv4 network of the first up, non-loopback,
// broadcast-capable interface (or of the named one).
func pick(cands []candidate, name string) (*net.IPNet, error) {
	for _, c := range cands {
		if name != "" && c.iface.Name != name {
			continue
		}
		if c.iface.Flags&net.FlagUp == 0 ||
			c.iface.Flags&net.FlagLoopback != 0 ||
			c.iface.Flags&net.FlagBroadcast == 0 {
			continue
		}
		for _, a := range c.addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				return &net.IPNet{IP: ip4, Mask: ipNet.Mask}, nil
			}
		}
	}

	if name != "" {
		return nil, fmt.Errorf("%w: interface %q has no usable IPv4 address", ErrResolution, name)
	}
	return nil, fmt.Errorf("%w: no usable IPv4 interface", ErrResolution)
}

// BroadcastAddr returns the directed broadcast address of an IPv4 network.
func BroadcastAddr(n *net.IPNet) net.IP {
	ip := n.IP.To4()
	mask := n.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}

	out := make(net.IP, net.IPv4len)
	for i := range out {
		out[i] = ip[i] | ^mask[i]
	}
	return out
}
