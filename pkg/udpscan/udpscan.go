// Package udpscan implements the UDP scan engine of spec §4.6:
// protocol-aware probes (falling back to an empty datagram when no
// known payload exists for the port) classified by whatever comes
// back — a UDP response means Open, an ICMP Port Unreachable means
// Closed, any other ICMP unreachable code means Filtered, and silence
// is reported Filtered (documented ambiguous open|filtered).
//
// Grounded on pkg/packet's ProtocolPayloads table and ICMP builders,
// and golang.org/x/net/icmp for parsing the unreachable response,
// following the same capture.Handle send/receive shape as pkg/stealth.
package udpscan

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/doublegate/prortip-scanner-core/pkg/aggregator"
	"github.com/doublegate/prortip-scanner-core/pkg/capture"
	"github.com/doublegate/prortip-scanner-core/pkg/packet"
	"github.com/doublegate/prortip-scanner-core/pkg/ratelimit"
	"github.com/doublegate/prortip-scanner-core/pkg/scantypes"
)

// Engine sends one UDP probe per port and classifies the ICMP or UDP
// response.
type Engine struct {
	Handle  capture.Handle
	SrcIP   net.IP
	SrcPort uint16
	Timing  scantypes.TimingTemplate
	Log     *logrus.Entry

	// Backoff, if set, is consulted before every probe the same way
	// pkg/stealth does: a target already in ICMP quench is classified
	// Filtered without sending anything.
	Backoff *ratelimit.BackoffMap
}

func New(h capture.Handle, srcIP net.IP, srcPort uint16, timing scantypes.TimingTemplate) *Engine {
	return &Engine{Handle: h, SrcIP: srcIP, SrcPort: srcPort, Timing: timing, Log: logrus.WithField("engine", "udpscan")}
}

// ScanPort sends a protocol-appropriate UDP probe (pkg/packet's
// ProtocolPayloads table covers DNS/NTP/NetBIOS/SNMP; any other port
// gets an empty datagram) and classifies the response per spec §4.6.
func (e *Engine) ScanPort(ctx context.Context, dst net.IP, port int) (scantypes.ScanResult, error) {
	if e.Backoff != nil && e.Backoff.Blocked(dst.String()) {
		return scantypes.NewResult(dst, port, scantypes.Filtered).Build(), nil
	}

	start := time.Now()
	frame, err := packet.BuildUDP(packet.UDPSpec{
		SrcIP: e.SrcIP, DstIP: dst,
		SrcPort: e.SrcPort, DstPort: uint16(port),
		TTLOrHopLimit: 64,
	})
	if err != nil {
		return scantypes.ScanResult{}, err
	}
	if err := e.Handle.Send(ctx, dst, frame); err != nil {
		return scantypes.ScanResult{}, err
	}

	timeout := time.Duration(e.Timing.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Second
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := e.Handle.Receive(time.Until(deadline))
		if err != nil {
			return scantypes.ScanResult{}, err
		}
		if resp == nil {
			break
		}
		if state, quench, ok := classify(resp, dst, uint16(port)); ok {
			if e.Backoff != nil {
				if quench {
					e.Backoff.Quench(dst.String())
				} else {
					e.Backoff.Reset(dst.String())
				}
			}
			elapsed := time.Since(start)
			return scantypes.NewResult(dst, port, state).WithResponseTime(elapsed).Build(), nil
		}
	}

	// No reply at all: UDP gives no positive signal for "open" the way a
	// RST does for TCP, so spec §4.6 reports this ambiguous case as
	// Filtered rather than assuming Open.
	elapsed := time.Since(start)
	return scantypes.NewResult(dst, port, scantypes.Filtered).WithResponseTime(elapsed).Build(), nil
}

// ScanPorts fans Port scans across ports gated by a counting semaphore
// of size maxConcurrent, mirroring pkg/connect's batch contract.
func (e *Engine) ScanPorts(ctx context.Context, dst net.IP, ports []int, maxConcurrent int, agg *aggregator.Aggregator) []scantypes.ScanResult {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for _, port := range ports {
		port := port
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return agg.DrainAll()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := e.ScanPort(ctx, dst, port)
			if err != nil {
				e.Log.WithError(err).WithField("port", port).Debug("udp scan: probe error")
				return
			}
			agg.Push(res)
		}()
	}
	wg.Wait()
	return agg.DrainAll()
}

// classify inspects a raw IPv4 or IPv6 datagram received on the ICMP
// capture socket: a Port Unreachable whose embedded UDP header names
// port means Closed, any other unreachable code for that port means
// Filtered (both quench the backoff map, since they are ICMP signals;
// the sender of the ICMP message is not checked), and a UDP datagram
// back from dst:port means Open. ok is false when raw isn't a reply to
// our probe at all (unrelated traffic sharing the raw socket).
func classify(raw []byte, dst net.IP, port uint16) (state scantypes.PortState, quench bool, ok bool) {
	if len(raw) < 1 {
		return 0, false, false
	}
	switch raw[0] >> 4 {
	case 4:
		return classifyV4(raw, dst, port)
	case 6:
		return classifyV6(raw, dst, port)
	default:
		return 0, false, false
	}
}

func classifyV4(raw []byte, dst net.IP, port uint16) (scantypes.PortState, bool, bool) {
	if len(raw) < 20 {
		return 0, false, false
	}
	ihl := int(raw[0]&0x0F) * 4
	switch raw[9] {
	case 17: // UDP
		if len(raw) < ihl+8 {
			return 0, false, false
		}
		srcIP := net.IP(raw[12:16])
		if !srcIP.Equal(dst.To4()) {
			return 0, false, false
		}
		if uint16(raw[ihl])<<8|uint16(raw[ihl+1]) != port {
			return 0, false, false
		}
		return scantypes.Open, false, true
	case 1: // ICMP
		msg, err := icmp.ParseMessage(1, raw[ihl:])
		if err != nil || msg.Type != ipv4.ICMPTypeDestinationUnreachable {
			return 0, false, false
		}
		body, ok := msg.Body.(*icmp.DstUnreach)
		if !ok {
			return 0, false, false
		}
		// The unreachable message embeds the original IP header and at
		// least 8 bytes of the UDP header; verify it is a reply about
		// our probe before trusting it.
		orig := body.Data
		if len(orig) < 20+8 {
			return 0, false, false
		}
		origIHL := int(orig[0]&0x0F) * 4
		if len(orig) < origIHL+4 {
			return 0, false, false
		}
		origDstPort := uint16(orig[origIHL+2])<<8 | uint16(orig[origIHL+3])
		if origDstPort != port {
			return 0, false, false
		}
		if msg.Code == 3 { // Port Unreachable
			return scantypes.Closed, true, true
		}
		return scantypes.Filtered, true, true
	default:
		return 0, false, false
	}
}

func classifyV6(raw []byte, dst net.IP, port uint16) (scantypes.PortState, bool, bool) {
	if len(raw) < 40 {
		return 0, false, false
	}
	switch raw[6] {
	case 17: // UDP
		if len(raw) < 48 {
			return 0, false, false
		}
		srcIP := net.IP(raw[8:24])
		if !srcIP.Equal(dst.To16()) {
			return 0, false, false
		}
		if uint16(raw[40])<<8|uint16(raw[41]) != port {
			return 0, false, false
		}
		return scantypes.Open, false, true
	case 58: // ICMPv6
		msg, err := icmp.ParseMessage(58, raw[40:])
		if err != nil || msg.Type != ipv6.ICMPTypeDestinationUnreachable {
			return 0, false, false
		}
		body, ok := msg.Body.(*icmp.DstUnreach)
		if !ok {
			return 0, false, false
		}
		orig := body.Data
		if len(orig) < 40+4 {
			return 0, false, false
		}
		origDstPort := uint16(orig[40+2])<<8 | uint16(orig[40+3])
		if origDstPort != port {
			return 0, false, false
		}
		// ICMPv6 type 1 code 4: port unreachable.
		if msg.Code == 4 {
			return scantypes.Closed, true, true
		}
		return scantypes.Filtered, true, true
	default:
		return 0, false, false
	}
}
