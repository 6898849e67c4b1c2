// Package decoy implements decoy/spoofed-source multiplexing (spec
// §4.12): a probe is sent once per decoy address (plus once for the
// real source), with the real source's position shuffled in among the
// decoys so a packet capture can't trivially pick it out by ordering.
//
// Grounded on decoy_scanner.rs's reserved-prefix exclusion lists and
// Fisher-Yates placement, using github.com/rs/xid for cheap
// k-sortable batch correlation IDs the way the original correlates a
// decoy burst to a single probe.
package decoy

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/rs/xid"

	"github.com/doublegate/prortip-scanner-core/pkg/capture"
	"github.com/doublegate/prortip-scanner-core/pkg/packet"
)

const maxDecoys = 256

// reserved prefixes are excluded from random decoy generation so a
// scan never "spoofs" traffic that would be dropped or misattributed
// at the first hop: loopback, link-local, multicast, documentation,
// and other special-use ranges per RFC 5735 / RFC 6890.
var reservedV4 = []*net.IPNet{
	mustCIDR("0.0.0.0/8"), mustCIDR("10.0.0.0/8"), mustCIDR("100.64.0.0/10"),
	mustCIDR("127.0.0.0/8"), mustCIDR("169.254.0.0/16"), mustCIDR("172.16.0.0/12"),
	mustCIDR("192.0.0.0/24"), mustCIDR("192.0.2.0/24"), mustCIDR("192.168.0.0/16"),
	mustCIDR("198.18.0.0/15"), mustCIDR("198.51.100.0/24"), mustCIDR("203.0.113.0/24"),
	mustCIDR("224.0.0.0/4"), mustCIDR("240.0.0.0/4"),
}

var reservedV6 = []*net.IPNet{
	mustCIDR("::1/128"), mustCIDR("::/128"), mustCIDR("fe80::/10"),
	mustCIDR("fc00::/7"), mustCIDR("ff00::/8"), mustCIDR("2001:db8::/32"),
}

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

func isReserved(ip net.IP) bool {
	list := reservedV4
	if ip.To4() == nil {
		list = reservedV6
	}
	for _, n := range list {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Batch is one real-source-plus-decoys send set, correlated by ID.
type Batch struct {
	ID        xid.ID
	Addresses []net.IP // includes the real source at RealIndex
	RealIndex int
}

// BuildBatch constructs a Batch containing realSrc and n random decoys
// of the same address family, with the real source's position shuffled
// among them. n plus 1 is capped at maxDecoys per spec §4.12. For v6,
// target carries the destination's /64 prefix so generated decoys stay
// on a routable prefix and only the interface identifier is randomized;
// target is ignored for v4.
func BuildBatch(realSrc net.IP, n int, v6 bool, target net.IP) (Batch, error) {
	if n < 0 {
		n = 0
	}
	if n+1 > maxDecoys {
		n = maxDecoys - 1
	}
	addrs := make([]net.IP, 0, n+1)
	for len(addrs) < n {
		var ip net.IP
		if v6 {
			ip = randomIPv6WithPrefix(target)
		} else {
			ip = randomIPv4()
		}
		if isReserved(ip) {
			continue
		}
		addrs = append(addrs, ip)
	}
	addrs = append(addrs, realSrc)
	fisherYatesShuffle(addrs)
	realIdx := -1
	for i, a := range addrs {
		if a.Equal(realSrc) {
			realIdx = i
			break
		}
	}
	if realIdx < 0 {
		return Batch{}, fmt.Errorf("decoy: real source lost during shuffle")
	}
	return Batch{ID: xid.New(), Addresses: addrs, RealIndex: realIdx}, nil
}

// BuildExplicit constructs a Batch from a caller-supplied decoy list
// (spec §4.12's "explicit decoy set" mode) plus the real source,
// shuffled the same way as BuildBatch.
func BuildExplicit(realSrc net.IP, decoys []net.IP) (Batch, error) {
	if len(decoys)+1 > maxDecoys {
		decoys = decoys[:maxDecoys-1]
	}
	addrs := append(append([]net.IP(nil), decoys...), realSrc)
	fisherYatesShuffle(addrs)
	realIdx := -1
	for i, a := range addrs {
		if a.Equal(realSrc) {
			realIdx = i
			break
		}
	}
	if realIdx < 0 {
		return Batch{}, fmt.Errorf("decoy: real source lost during shuffle")
	}
	return Batch{ID: xid.New(), Addresses: addrs, RealIndex: realIdx}, nil
}

func fisherYatesShuffle(s []net.IP) {
	for i := len(s) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

func randomIPv4() net.IP {
	b := make([]byte, 4)
	rand.Read(b)
	return net.IP(b)
}

// randomIPv6WithPrefix keeps target's /64 network prefix and randomizes
// only the 64-bit interface identifier, per spec §4.12: a fully random
// v6 address would almost never share a route with the real target,
// making the decoy traffic trivially distinguishable at the first hop.
// A nil target falls back to a fully random address.
func randomIPv6WithPrefix(target net.IP) net.IP {
	b := make([]byte, 16)
	if t16 := target.To16(); target != nil && t16 != nil && target.To4() == nil {
		copy(b[:8], t16[:8])
	} else {
		rand.Read(b[:8])
	}
	rand.Read(b[8:])
	return net.IP(b)
}

// Send transmits one crafted SYN per address in batch (the real source
// included), in the batch's shuffled order, via h — sleeping a uniform
// random 100-1000us between sends per spec §4.12. Each probe otherwise
// shares src/dst ports, sequence and TTL so a receiver can't tell decoy
// probes apart from the real one by anything but source address.
func Send(ctx context.Context, h capture.Handle, batch Batch, dst net.IP, srcPort, dstPort uint16, seq uint32, ttl uint8) error {
	for i, src := range batch.Addresses {
		frame, err := packet.BuildTCP(packet.TCPSpec{
			SrcIP: src, DstIP: dst,
			SrcPort: srcPort, DstPort: dstPort,
			Flags: packet.FlagSYN, Seq: seq, Window: 1024,
			TTLOrHopLimit: ttl,
		})
		if err != nil {
			return fmt.Errorf("decoy: build probe for %v: %w", src, err)
		}
		if err := h.Send(ctx, dst, frame); err != nil {
			return fmt.Errorf("decoy: send probe for %v: %w", src, err)
		}
		if i == len(batch.Addresses)-1 {
			break
		}
		sleep := time.Duration(100+rand.Intn(901)) * time.Microsecond
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// IsForRealSource reports whether a captured response's destination
// address is the batch's real source, per spec §4.12's response-
// handling rule: a decoy probe's reply is addressed to whichever
// spoofed source claimed it, so only responses destined for the real
// source ever reach this host; this still filters explicitly rather
// than trusting the capture socket not to see promiscuous traffic.
func IsForRealSource(batch Batch, respDst net.IP) bool {
	return respDst.Equal(batch.Addresses[batch.RealIndex])
}
