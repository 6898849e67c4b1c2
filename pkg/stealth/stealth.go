// Package stealth implements the FIN/NULL/Xmas/ACK raw-socket scan
// variants of spec §4.5. Each sends a single crafted TCP segment with
// no SYN and classifies the target port from whatever comes back (or
// doesn't), per RFC 793's "no response to a segment not matching an
// established connection is undefined, but closed ports send RST"
// behavior.
//
// Grounded on pkg/packet's TCP builder (generalized here into the four
// flag combinations spec §4.5 names) and pkg/capture's raw-socket
// Handle for transmit/receive, following the same send/read-loop shape
// as
// _examples/other_examples/0ba6502d_carverauto-serviceradar__pkg-scan-syn_scanner.go.go's
// SYN scanner.
package stealth

import (
	"context"
	"encoding/binary"
	"math/rand"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/doublegate/prortip-scanner-core/pkg/capture"
	"github.com/doublegate/prortip-scanner-core/pkg/packet"
	"github.com/doublegate/prortip-scanner-core/pkg/ratelimit"
	"github.com/doublegate/prortip-scanner-core/pkg/scantypes"
)

// Variant names the four flag combinations spec §4.5 defines.
type Variant int

const (
	VariantFIN Variant = iota
	VariantNull
	VariantXmas
	VariantAck
)

func (v Variant) flags() packet.TCPFlags {
	switch v {
	case VariantFIN:
		return packet.FlagFIN
	case VariantXmas:
		return packet.FlagFIN | packet.FlagPSH | packet.FlagURG
	case VariantAck:
		return packet.FlagACK
	default: // VariantNull
		return 0
	}
}

func (v Variant) scanType() scantypes.ScanType {
	switch v {
	case VariantFIN:
		return scantypes.Fin
	case VariantXmas:
		return scantypes.Xmas
	case VariantAck:
		return scantypes.Ack
	default:
		return scantypes.Null
	}
}

// Engine sends one stealth probe per port and classifies the response.
type Engine struct {
	Variant Variant
	Handle  capture.Handle
	SrcIP   net.IP
	SrcPort uint16
	Timing  scantypes.TimingTemplate
	Log     *logrus.Entry

	// Backoff, if set, is consulted before every probe per spec §4.5
	// step 1: a target already in ICMP quench is classified Filtered
	// without sending anything.
	Backoff *ratelimit.BackoffMap
}

// New constructs a stealth Engine bound to an already-open raw capture
// handle; callers own the handle's lifecycle.
func New(variant Variant, h capture.Handle, srcIP net.IP, timing scantypes.TimingTemplate) *Engine {
	return &Engine{
		Variant: variant,
		Handle:  h,
		SrcIP:   srcIP,
		SrcPort: uint16(1024 + rand.Intn(64511)),
		Timing:  timing,
		Log:     logrus.WithField("engine", "stealth"),
	}
}

// ScanPort sends the variant's probe and classifies the port per spec
// §4.5's table:
//   - RST received                    → Closed (ACK scan: "unfiltered")
//   - ICMP/ICMPv6 destination unreachable → Filtered
//   - no response within timeout      → Filtered (documented as
//     ambiguous open|filtered per spec §4.5 — a true Open is possible,
//     this just can't distinguish it from a silently-dropped probe)
func (e *Engine) ScanPort(ctx context.Context, dst net.IP, port int) (scantypes.ScanResult, error) {
	if e.Backoff != nil && e.Backoff.Blocked(dst.String()) {
		return scantypes.NewResult(dst, port, scantypes.Filtered).Build(), nil
	}

	start := time.Now()
	seq := rand.Uint32()
	frame, err := buildProbe(e.Variant, e.SrcIP, dst, e.SrcPort, uint16(port), seq)
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
		if flags, ok := matchResponse(resp, dst, e.SrcIP, uint16(port), e.SrcPort); ok {
			if e.Backoff != nil {
				e.Backoff.Reset(dst.String())
			}
			elapsed := time.Since(start)
			state := classify(e.Variant, flags)
			return scantypes.NewResult(dst, port, state).WithResponseTime(elapsed).Build(), nil
		}
		if isDestinationUnreachable(resp, dst) {
			if e.Backoff != nil {
				e.Backoff.Quench(dst.String())
			}
			elapsed := time.Since(start)
			return scantypes.NewResult(dst, port, scantypes.Filtered).WithResponseTime(elapsed).Build(), nil
		}
	}

	elapsed := time.Since(start)
	return scantypes.NewResult(dst, port, scantypes.Filtered).WithResponseTime(elapsed).Build(), nil
}

func classify(v Variant, respFlags packet.TCPFlags) scantypes.PortState {
	if respFlags&packet.FlagRST != 0 {
		if v == VariantAck {
			return scantypes.Unknown // "unfiltered"; callers inspect separately
		}
		return scantypes.Closed
	}
	return scantypes.Filtered
}

func buildProbe(v Variant, src, dst net.IP, srcPort, dstPort uint16, seq uint32) ([]byte, error) {
	return packet.BuildTCP(packet.TCPSpec{
		SrcIP: src, DstIP: dst,
		SrcPort: srcPort, DstPort: dstPort,
		Flags: v.flags(), Seq: seq, Window: 1024,
		TTLOrHopLimit: 64,
	})
}

// matchResponse extracts the TCP flags from a raw IPv4/IPv6 datagram if
// it is a TCP segment from dst:dstPort to src:srcPort, to filter out
// unrelated traffic sharing the raw socket.
func matchResponse(raw []byte, dst, src net.IP, dstPort, srcPort uint16) (packet.TCPFlags, bool) {
	if len(raw) < 1 {
		return 0, false
	}
	version := raw[0] >> 4
	var ihl int
	switch version {
	case 4:
		ihl = int(raw[0]&0x0F) * 4
		if len(raw) < ihl+20 {
			return 0, false
		}
		if raw[9] != 6 { // protocol != TCP
			return 0, false
		}
		if !net.IP(raw[12:16]).Equal(dst.To4()) {
			return 0, false
		}
		seg := raw[ihl:]
		return matchTCPSegment(seg, dstPort, srcPort)
	case 6:
		if len(raw) < 40+20 {
			return 0, false
		}
		if raw[6] != 6 {
			return 0, false
		}
		if !net.IP(raw[8:24]).Equal(dst.To16()) {
			return 0, false
		}
		seg := raw[40:]
		return matchTCPSegment(seg, dstPort, srcPort)
	default:
		return 0, false
	}
}

func matchTCPSegment(seg []byte, expectSrcPort, expectDstPort uint16) (packet.TCPFlags, bool) {
	if len(seg) < 14 {
		return 0, false
	}
	gotSrcPort := binary.BigEndian.Uint16(seg[0:2])
	gotDstPort := binary.BigEndian.Uint16(seg[2:4])
	if gotSrcPort != expectSrcPort || gotDstPort != expectDstPort {
		return 0, false
	}
	return packet.TCPFlags(seg[13]), true
}

// isDestinationUnreachable reports whether raw is an ICMP type 3 (v4)
// or ICMPv6 type 1 (v6) "destination unreachable" sent by dst, per
// spec §4.5 step 4. Any code under type 3/1 counts: nmap-style stealth
// scans treat all unreachable codes as filtered, not just code 3/4
// (port unreachable), since host/net/admin-prohibited unreachables
// equally mean the probe never got a TCP-layer answer.
func isDestinationUnreachable(raw []byte, dst net.IP) bool {
	if len(raw) < 1 {
		return false
	}
	version := raw[0] >> 4
	switch version {
	case 4:
		ihl := int(raw[0]&0x0F) * 4
		if len(raw) < ihl+8 || raw[9] != 1 { // protocol != ICMP
			return false
		}
		srcIP := net.IP(raw[12:16])
		if !srcIP.Equal(dst.To4()) {
			return false
		}
		return raw[ihl] == 3 // ICMP type 3: destination unreachable
	case 6:
		if len(raw) < 40+8 || raw[6] != 58 { // next header != ICMPv6
			return false
		}
		srcIP := net.IP(raw[8:24])
		if !srcIP.Equal(dst.To16()) {
			return false
		}
		return raw[40] == 1 // ICMPv6 type 1: destination unreachable
	default:
		return false
	}
}
