package capture

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/icmp"
)

// PacketConnHandle is the unprivileged fallback backend: it uses
// golang.org/x/net/icmp's datagram-oriented ListenPacket (works on
// "udp4"/"udp6" network strings without CAP_NET_RAW on Linux, and on
// plain ICMP sockets when available), trading the ability to craft
// arbitrary TCP/UDP headers for portability. C4's connect engine never
// needs this; Open returns it (for C7 discovery's ICMP echo probes and
// every other caller) when opening the raw-socket backend fails, e.g.
// for lack of raw-socket permission.
type PacketConnHandle struct {
	conn    *icmp.PacketConn
	ipv6    bool
	viaUDP  bool // network was "udp4"/"udp6": WriteTo needs *net.UDPAddr, not *net.IPAddr
}

// NewPacketConnHandle opens an unprivileged ICMP listener. network is
// "udp4" or "udp6" (non-privileged datagram ICMP) or "ip4:icmp" /
// "ip6:ipv6-icmp" when the caller has raw-socket privilege but still
// wants x/net/icmp's message framing.
func NewPacketConnHandle(network, address string, ipv6 bool) (*PacketConnHandle, error) {
	conn, err := icmp.ListenPacket(network, address)
	if err != nil {
		return nil, fmt.Errorf("capture: icmp.ListenPacket(%s): %w", network, err)
	}
	viaUDP := len(network) >= 3 && network[:3] == "udp"
	return &PacketConnHandle{conn: conn, ipv6: ipv6, viaUDP: viaUDP}, nil
}

func (h *PacketConnHandle) Send(ctx context.Context, dst net.IP, frame []byte) error {
	var addr net.Addr
	if h.viaUDP {
		addr = &net.UDPAddr{IP: dst}
	} else {
		addr = &net.IPAddr{IP: dst}
	}
	_, err := h.conn.WriteTo(frame, addr)
	return err
}

func (h *PacketConnHandle) Receive(timeout time.Duration) ([]byte, error) {
	if err := h.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, 65536)
	n, _, err := h.conn.ReadFrom(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil
		}
		return nil, err
	}
	return buf[:n], nil
}

func (h *PacketConnHandle) Close() error {
	return h.conn.Close()
}
