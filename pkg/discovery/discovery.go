// Package discovery implements host discovery per spec §4.7: ICMP Echo
// for IPv4, Neighbor Solicitation/Advertisement for IPv6 link-local
// reachability, and a TCP-SYN ping fallback when ICMP is filtered.
// ARP is out of scope (DESIGN.md Open Question 3): this package
// never touches the link layer directly.
//
// Grounded on pkg/packet's ICMP/NDP builders and golang.org/x/net/icmp
// for response parsing. The TCP-SYN fallback builds no packets itself:
// it dials with the OS's net.Dialer.
package discovery

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/doublegate/prortip-scanner-core/pkg/capture"
	"github.com/doublegate/prortip-scanner-core/pkg/packet"
)

// commonPorts is the fixed short list spec §4.7 names for the
// privilege-free TCP-SYN ping fallback: a connection attempt (success
// or ECONNREFUSED) to any of these implies the host is alive without
// needing CAP_NET_RAW.
var commonPorts = []int{80, 443, 22, 21, 25, 53, 3389, 3306, 5432}

// Method records which probe confirmed a host alive, supplementing
// spec §4.7 per SPEC_FULL.md §D's DiscoveryMethod enum.
type Method int

const (
	MethodNone Method = iota
	MethodICMPEcho
	MethodNeighborAdvertisement
	MethodTCPSynAck
)

func (m Method) String() string {
	switch m {
	case MethodICMPEcho:
		return "icmp_echo"
	case MethodNeighborAdvertisement:
		return "neighbor_advertisement"
	case MethodTCPSynAck:
		return "tcp_syn_ack"
	default:
		return "none"
	}
}

// Result reports whether a host responded and how.
type Result struct {
	IP      net.IP
	Alive   bool
	Method  Method
	Latency time.Duration
}

// Engine probes hosts for liveness. The capture handle is exclusive to
// one engine instance (spec §5's resource table) but DiscoverHosts runs
// many probes against it concurrently, so rawMu serializes the
// raw-socket send/receive sequence; the privilege-free TCP-SYN fallback
// uses independent OS connections and isn't subject to it.
type Engine struct {
	Handle     capture.Handle
	SrcIP      net.IP
	Timeout    time.Duration
	SynPort    uint16 // not consulted: the TCP-SYN fallback always walks commonPorts
	rawMu      sync.Mutex
	seqMu      sync.Mutex
	sequenceID int
}

func (e *Engine) nextSequenceID() int {
	e.seqMu.Lock()
	defer e.seqMu.Unlock()
	e.sequenceID++
	return e.sequenceID
}

func New(h capture.Handle, srcIP net.IP, timeout time.Duration) *Engine {
	return &Engine{Handle: h, SrcIP: srcIP, Timeout: timeout, SynPort: 80, sequenceID: rand.Intn(65536)}
}

// Probe runs the appropriate discovery sequence for dst's address
// family, falling back to a TCP-SYN ping if ICMP produces no reply.
func (e *Engine) Probe(ctx context.Context, dst net.IP) (Result, error) {
	if dst.To4() != nil {
		res, err := e.icmpEchoV4(ctx, dst)
		if err != nil {
			return Result{}, err
		}
		if res.Alive {
			return res, nil
		}
		return e.tcpSynPing(ctx, dst)
	}
	if dst.IsLoopback() {
		// NDP has no meaning on the loopback interface; spec §4.7 falls
		// back to ICMPv6 Echo directly instead of soliciting a neighbor.
		res, err := e.icmpEchoV6(ctx, dst)
		if err != nil {
			return Result{}, err
		}
		if res.Alive {
			return res, nil
		}
		return e.tcpSynPing(ctx, dst)
	}
	res, err := e.neighborSolicit(ctx, dst)
	if err != nil {
		return Result{}, err
	}
	if res.Alive {
		return res, nil
	}
	return e.tcpSynPing(ctx, dst)
}

func (e *Engine) icmpEchoV4(ctx context.Context, dst net.IP) (Result, error) {
	e.rawMu.Lock()
	defer e.rawMu.Unlock()
	start := time.Now()
	seq := e.nextSequenceID()
	body, err := packet.BuildICMPEchoV4(seq&0xFFFF, seq&0xFFFF, []byte("prortip"))
	if err != nil {
		return Result{}, err
	}
	frame, err := packet.WrapICMPv4(e.SrcIP, dst, 64, body)
	if err != nil {
		return Result{}, err
	}
	if err := e.Handle.Send(ctx, dst, frame); err != nil {
		return Result{}, err
	}

	deadline := time.Now().Add(e.Timeout)
	for time.Now().Before(deadline) {
		resp, err := e.Handle.Receive(time.Until(deadline))
		if err != nil {
			return Result{}, err
		}
		if resp == nil {
			break
		}
		if isEchoReplyFrom(resp, dst) {
			return Result{IP: dst, Alive: true, Method: MethodICMPEcho, Latency: time.Since(start)}, nil
		}
	}
	return Result{IP: dst, Alive: false}, nil
}

// icmpEchoV6 sends a plain ICMPv6 Echo Request, used for the loopback
// special case where NDP doesn't apply.
func (e *Engine) icmpEchoV6(ctx context.Context, dst net.IP) (Result, error) {
	e.rawMu.Lock()
	defer e.rawMu.Unlock()
	start := time.Now()
	seq := e.nextSequenceID()
	body, err := packet.BuildICMPv6Echo(seq&0xFFFF, seq&0xFFFF, []byte("prortip"))
	if err != nil {
		return Result{}, err
	}
	frame, err := packet.WrapICMPv6(e.SrcIP, dst, 64, body)
	if err != nil {
		return Result{}, err
	}
	if err := e.Handle.Send(ctx, dst, frame); err != nil {
		return Result{}, err
	}

	deadline := time.Now().Add(e.Timeout)
	for time.Now().Before(deadline) {
		resp, err := e.Handle.Receive(time.Until(deadline))
		if err != nil {
			return Result{}, err
		}
		if resp == nil {
			break
		}
		if isEchoReplyV6From(resp, dst) {
			return Result{IP: dst, Alive: true, Method: MethodICMPEcho, Latency: time.Since(start)}, nil
		}
	}
	return Result{IP: dst, Alive: false}, nil
}

func isEchoReplyV6From(raw []byte, from net.IP) bool {
	if len(raw) < 40 || raw[6] != 58 {
		return false
	}
	srcIP := net.IP(raw[8:24])
	if !srcIP.Equal(from.To16()) {
		return false
	}
	msg, err := icmp.ParseMessage(58, raw[40:])
	if err != nil {
		return false
	}
	return msg.Type == ipv6.ICMPTypeEchoReply
}

func isEchoReplyFrom(raw []byte, from net.IP) bool {
	if len(raw) < 20 {
		return false
	}
	ihl := int(raw[0]&0x0F) * 4
	if raw[9] != 1 || len(raw) < ihl+8 {
		return false
	}
	srcIP := net.IP(raw[12:16])
	if !srcIP.Equal(from.To4()) {
		return false
	}
	msg, err := icmp.ParseMessage(1, raw[ihl:])
	if err != nil {
		return false
	}
	return msg.Type == ipv4.ICMPTypeEchoReply
}

func (e *Engine) neighborSolicit(ctx context.Context, dst net.IP) (Result, error) {
	e.rawMu.Lock()
	defer e.rawMu.Unlock()
	start := time.Now()
	ns := packet.BuildNeighborSolicitation(dst, nil)
	frame, err := packet.WrapICMPv6(e.SrcIP, dst, 255, ns)
	if err != nil {
		return Result{}, err
	}
	if err := e.Handle.Send(ctx, dst, frame); err != nil {
		return Result{}, err
	}

	deadline := time.Now().Add(e.Timeout)
	for time.Now().Before(deadline) {
		resp, err := e.Handle.Receive(time.Until(deadline))
		if err != nil {
			return Result{}, err
		}
		if resp == nil {
			break
		}
		if isNeighborAdvertisementFrom(resp, dst) {
			return Result{IP: dst, Alive: true, Method: MethodNeighborAdvertisement, Latency: time.Since(start)}, nil
		}
	}
	return Result{IP: dst, Alive: false}, nil
}

func isNeighborAdvertisementFrom(raw []byte, target net.IP) bool {
	if len(raw) < 40 {
		return false
	}
	if raw[6] != 58 { // ICMPv6
		return false
	}
	msg, err := icmp.ParseMessage(58, raw[40:])
	if err != nil {
		return false
	}
	if msg.Type != ipv6.ICMPTypeNeighborAdvertisement {
		return false
	}
	return packet.ParseNeighborAdvertisement(raw[40:], target)
}

// tcpSynPing is the privilege-free discovery fallback of spec §4.7: it
// never touches capture.Handle, relying only on OS connect() against a
// fixed short list of common ports. A successful connect or an
// immediate ECONNREFUSED both imply the host is reachable; timeouts and
// other errors advance to the next port in the list.
func (e *Engine) tcpSynPing(ctx context.Context, dst net.IP) (Result, error) {
	start := time.Now()
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}
	for _, port := range commonPorts {
		addr := net.JoinHostPort(dst.String(), strconv.Itoa(port))
		dctx, cancel := context.WithTimeout(ctx, timeout)
		conn, err := dialer.DialContext(dctx, "tcp", addr)
		cancel()
		if err == nil {
			conn.Close()
			return Result{IP: dst, Alive: true, Method: MethodTCPSynAck, Latency: time.Since(start)}, nil
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			return Result{IP: dst, Alive: true, Method: MethodTCPSynAck, Latency: time.Since(start)}, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
	}
	return Result{IP: dst, Alive: false}, nil
}

func isTCPReplyFrom(raw []byte, from net.IP, dstPort uint16) bool {
	if len(raw) < 1 {
		return false
	}
	version := raw[0] >> 4
	var seg []byte
	if version == 4 {
		ihl := int(raw[0]&0x0F) * 4
		if raw[9] != 6 || len(raw) < ihl+20 {
			return false
		}
		srcIP := net.IP(raw[12:16])
		if !srcIP.Equal(from.To4()) {
			return false
		}
		seg = raw[ihl:]
	} else {
		if len(raw) < 60 || raw[6] != 6 {
			return false
		}
		srcIP := net.IP(raw[8:24])
		if !srcIP.Equal(from.To16()) {
			return false
		}
		seg = raw[40:]
	}
	if len(seg) < 18 {
		return false
	}
	gotDstPort := uint16(seg[2])<<8 | uint16(seg[3])
	return gotDstPort == dstPort
}

// DiscoverHosts fans out Probe across targets gated by a counting
// semaphore of size maxConcurrent, per spec §4.7's
// "discover_hosts(targets, max_concurrent)" contract, returning only
// the targets that answered alive. Order of the returned slice is not
// specified, matching §4.4's batch contract note for the analogous
// port-scan fan-out.
func (e *Engine) DiscoverHosts(ctx context.Context, targets []net.IP, maxConcurrent int) []Result {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	sem := make(chan struct{}, maxConcurrent)
	var mu sync.Mutex
	var alive []Result
	var wg sync.WaitGroup

	for _, dst := range targets {
		dst := dst
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return alive
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := e.Probe(ctx, dst)
			if err != nil || !res.Alive {
				return
			}
			mu.Lock()
			alive = append(alive, res)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return alive
}
