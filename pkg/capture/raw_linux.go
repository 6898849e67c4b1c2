//go:build linux

package capture

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/doublegate/prortip-scanner-core/pkg/kernel"
)

// rawSocketHandle is a Linux IPPROTO_RAW/AF_PACKET-less send path: one
// IPPROTO_RAW socket with IP_HDRINCL for transmit (payload already
// contains the full IP header, built by pkg/packet), and a parallel
// AF_INET SOCK_RAW/IPPROTO_ICMP-style receive socket filtered by the
// caller reading whatever protocol it cares about.
//
// Grounded on
// _examples/other_examples/0ba6502d_carverauto-serviceradar__pkg-scan-syn_scanner.go.go's
// syn scanner, which opens exactly this socket pair.
type rawSocketHandle struct {
	sendFD int
	recvFD int
	ipv6   bool
}

func openRawSocket(opts Options) (Handle, error) {
	family := unix.AF_INET
	proto := unix.IPPROTO_RAW
	if opts.IPv6 {
		family = unix.AF_INET6
		proto = unix.IPPROTO_RAW
	}
	sendFD, err := unix.Socket(family, unix.SOCK_RAW, proto)
	if err != nil {
		return nil, fmt.Errorf("capture: socket(SOCK_RAW, IPPROTO_RAW): %w", err)
	}
	if !opts.IPv6 {
		if err := unix.SetsockoptInt(sendFD, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
			unix.Close(sendFD)
			return nil, fmt.Errorf("capture: setsockopt IP_HDRINCL: %w", err)
		}
	}

	recvProto := unix.IPPROTO_ICMP
	if opts.IPv6 {
		recvProto = unix.IPPROTO_ICMPV6
	}
	recvFD, err := unix.Socket(family, unix.SOCK_RAW, recvProto)
	if err != nil {
		unix.Close(sendFD)
		return nil, fmt.Errorf("capture: socket(SOCK_RAW, recv): %w", err)
	}
	tv := unix.NsecToTimeval(int64(200 * time.Millisecond))
	_ = unix.SetsockoptTimeval(recvFD, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)

	// Kernels before 4.14 reject SO_RCVBUFFORCE from unprivileged
	// contexts more aggressively and handle IP_HDRINCL option ordering
	// differently; on older kernels stick to the portable SO_RCVBUF so
	// a scan under a restrictive seccomp profile doesn't fail to open.
	const wantRecvBuf = 4 << 20
	if kernel.SupportsModernRawSocketOptions() {
		if err := unix.SetsockoptInt(recvFD, unix.SOL_SOCKET, unix.SO_RCVBUFFORCE, wantRecvBuf); err != nil {
			_ = unix.SetsockoptInt(recvFD, unix.SOL_SOCKET, unix.SO_RCVBUF, wantRecvBuf)
		}
	} else {
		_ = unix.SetsockoptInt(recvFD, unix.SOL_SOCKET, unix.SO_RCVBUF, wantRecvBuf)
	}

	if opts.Interface != "" {
		if err := unix.BindToDevice(sendFD, opts.Interface); err != nil {
			unix.Close(sendFD)
			unix.Close(recvFD)
			return nil, fmt.Errorf("capture: bind to device %s: %w", opts.Interface, err)
		}
	}

	return &rawSocketHandle{sendFD: sendFD, recvFD: recvFD, ipv6: opts.IPv6}, nil
}

func (h *rawSocketHandle) Send(ctx context.Context, dst net.IP, frame []byte) error {
	if h.ipv6 {
		var addr unix.SockaddrInet6
		copy(addr.Addr[:], dst.To16())
		return unix.Sendto(h.sendFD, frame, 0, &addr)
	}
	var addr unix.SockaddrInet4
	copy(addr.Addr[:], dst.To4())
	return unix.Sendto(h.sendFD, frame, 0, &addr)
}

func (h *rawSocketHandle) Receive(timeout time.Duration) ([]byte, error) {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(h.recvFD, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return nil, fmt.Errorf("capture: set recv timeout: %w", err)
	}
	buf := make([]byte, 65536)
	n, _, err := unix.Recvfrom(h.recvFD, buf, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, nil
		}
		return nil, fmt.Errorf("capture: recvfrom: %w", err)
	}
	return buf[:n], nil
}

func (h *rawSocketHandle) Close() error {
	err1 := unix.Close(h.sendFD)
	err2 := unix.Close(h.recvFD)
	if err1 != nil {
		return err1
	}
	return err2
}
