package packet

import (
	"encoding/binary"
	"net"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// BuildICMPEchoV4 builds an ICMPv4 Echo Request (type 8), per spec §4.7.
// Uses golang.org/x/net/icmp for message serialization.
func BuildICMPEchoV4(id, seq int, payload []byte) ([]byte, error) {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: payload},
	}
	return msg.Marshal(nil)
}

// BuildICMPv6Echo builds an ICMPv6 Echo Request (type 128). The
// checksum is computed by the caller via WrapICMPv6 since ICMPv6
// checksums require the IPv6 pseudo-header.
func BuildICMPv6Echo(id, seq int, payload []byte) ([]byte, error) {
	msg := icmp.Message{
		Type: ipv6.ICMPTypeEchoRequest,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: payload},
	}
	return msg.Marshal(nil)
}

// WrapICMPv4 assembles an ICMPv4 message into a full IPv4 datagram.
func WrapICMPv4(src, dst net.IP, ttl uint8, icmpBytes []byte) ([]byte, error) {
	s4, d4 := src.To4(), dst.To4()
	var src4, dst4 [4]byte
	copy(src4[:], s4)
	copy(dst4[:], d4)
	ip := buildIPv4Header(src4, dst4, 1, ttl, uint16(ipv4HeaderLen+len(icmpBytes)), 0, 0, false)
	return append(ip, icmpBytes...), nil
}

// WrapICMPv6 assembles an ICMPv6 message into a full IPv6 datagram,
// computing the pseudo-header checksum over the ICMPv6 payload per
// RFC 4443 §2.3.
func WrapICMPv6(src, dst net.IP, hopLimit uint8, icmpBytes []byte) ([]byte, error) {
	var src6, dst6 [16]byte
	copy(src6[:], src.To16())
	copy(dst6[:], dst.To16())

	pseudo := pseudoHeaderV6(src6, dst6, 58, uint32(len(icmpBytes)))
	cs := l4Checksum(pseudo, withZeroChecksum(icmpBytes))
	out := append([]byte(nil), icmpBytes...)
	binary.BigEndian.PutUint16(out[2:4], cs)

	ip := buildIPv6Header(src6, dst6, 58, hopLimit, uint16(len(out)))
	return append(ip, out...), nil
}

func withZeroChecksum(icmpBytes []byte) []byte {
	out := append([]byte(nil), icmpBytes...)
	out[2], out[3] = 0, 0
	return out
}

// BuildNeighborSolicitation builds an ICMPv6 Neighbor Solicitation
// (type 135) targeting target, with an optional source link-layer
// address option, per RFC 4861 §4.3.
func BuildNeighborSolicitation(target net.IP, srcLinkLayerAddr net.HardwareAddr) []byte {
	body := make([]byte, 4+16)
	// reserved (4 bytes) already zero
	copy(body[4:20], target.To16())
	if len(srcLinkLayerAddr) > 0 {
		opt := make([]byte, 2+len(srcLinkLayerAddr))
		opt[0] = 1 // Source Link-Layer Address option type
		opt[1] = byte((len(opt) + 7) / 8)
		copy(opt[2:], srcLinkLayerAddr)
		body = append(body, opt...)
	}
	// ICMPv6 header: type 135, code 0, checksum placeholder, then body.
	msg := make([]byte, 4+len(body))
	msg[0] = 135
	msg[1] = 0
	copy(msg[4:], body)
	return msg
}

// ParseNeighborAdvertisement reports whether an ICMPv6 Neighbor
// Advertisement (type 136) payload advertises the given target.
func ParseNeighborAdvertisement(icmpBytes []byte, target net.IP) bool {
	if len(icmpBytes) < 4+20 || icmpBytes[0] != 136 {
		return false
	}
	advertised := net.IP(icmpBytes[8:24])
	return advertised.Equal(target.To16())
}
