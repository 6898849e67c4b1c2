// Package capture is a thin polymorphic abstraction over raw send/
// receive at the IP layer, per spec §4.3: handles send fully built IP
// datagrams and return received IP datagrams. No backend sends or
// receives link-layer (Ethernet) frames.
//
// Grounded on the teacher's own per-platform split
// (pkg/tcpinfo/tcpinfo_{linux,darwin,windows,other}.go) generalized
// from "read TCP_INFO" to "open/send/receive/close a raw capture
// handle", and on
// _examples/other_examples/0ba6502d_carverauto-serviceradar__pkg-scan-syn_scanner.go.go
// for the Linux raw-socket + IP_HDRINCL send path.
package capture

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Handle is the interface every platform backend implements.
type Handle interface {
	// Send transmits a fully-built IP datagram (the caller, pkg/packet,
	// has already filled in every header).
	Send(ctx context.Context, dst net.IP, frame []byte) error
	// Receive blocks until a frame arrives or timeout elapses,
	// returning (nil, nil) on timeout.
	Receive(timeout time.Duration) ([]byte, error)
	Close() error
}

// Options configure how a Handle is opened.
type Options struct {
	Interface string // empty selects the route-determined default
	IPv6      bool
}

// Open selects and initializes the best backend for this platform and
// privilege level. Callers needing a specific backend (e.g. tests)
// should construct one of the concrete types directly.
func Open(opts Options) (Handle, error) {
	h, err := openRawSocket(opts)
	if err == nil {
		return h, nil
	}
	rawErr := err
	network, address := "udp4", "0.0.0.0"
	if opts.IPv6 {
		network, address = "udp6", "::"
	}
	h, err = NewPacketConnHandle(network, address, opts.IPv6)
	if err != nil {
		return nil, fmt.Errorf("capture: no usable backend (raw: %v, packetconn: %w)", rawErr, err)
	}
	return h, nil
}
