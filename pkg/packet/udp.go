package packet

import (
	"encoding/binary"
	"fmt"
	"net"
)

const udpHeaderLen = 8

// ProtocolPayloads maps well-known destination ports to the
// protocol-specific probe payload a UDP scan should send, per spec
// §4.2. Grounded on
// _examples/other_examples/f6672078_lucchesi-sec-portscan__internal-core-udp_scanner.go.go's
// per-port probe table.
var ProtocolPayloads = map[uint16][]byte{
	53:  dnsQueryPayload(),
	123: ntpClientPayload(),
	137: netbiosNameQueryPayload(),
	161: snmpGetRequestPayload(),
}

func dnsQueryPayload() []byte {
	// Minimal A-record query for "." — enough to elicit a response
	// from most resolvers without needing a real name.
	return []byte{
		0x00, 0x00, 0x01, 0x00, 0x00, 0x01, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01,
	}
}

func ntpClientPayload() []byte {
	buf := make([]byte, 48)
	buf[0] = 0x23 // LI=0, VN=4, Mode=3 (client)
	return buf
}

func netbiosNameQueryPayload() []byte {
	return []byte{
		0x00, 0x00, 0x00, 0x10, 0x00, 0x01, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x20, 0x43, 0x4b, 0x41, 0x41, 0x41, 0x41, 0x41,
		0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41,
		0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41,
		0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x00,
		0x00, 0x21, 0x00, 0x01,
	}
}

func snmpGetRequestPayload() []byte {
	// SNMPv1 GetRequest for sysDescr.0 under community "public".
	return []byte{
		0x30, 0x26, 0x02, 0x01, 0x00, 0x04, 0x06, 'p', 'u', 'b', 'l', 'i', 'c',
		0xa0, 0x19, 0x02, 0x01, 0x01, 0x02, 0x01, 0x00, 0x02, 0x01, 0x00,
		0x30, 0x0e, 0x30, 0x0c, 0x06, 0x08, 0x2b, 0x06, 0x01, 0x02, 0x01, 0x01, 0x01, 0x00, 0x05, 0x00,
	}
}

// UDPSpec is the input to BuildUDP.
type UDPSpec struct {
	SrcIP, DstIP     net.IP
	SrcPort, DstPort uint16
	Payload          []byte // nil uses ProtocolPayloads[DstPort] if present, else empty
	TTLOrHopLimit    uint8
	BadChecksum      bool
}

func BuildUDP(s UDPSpec) ([]byte, error) {
	payload := s.Payload
	if payload == nil {
		payload = ProtocolPayloads[s.DstPort]
	}
	v4src, v4dst := s.SrcIP.To4(), s.DstIP.To4()
	if v4src != nil && v4dst != nil {
		var src4, dst4 [4]byte
		copy(src4[:], v4src)
		copy(dst4[:], v4dst)
		return buildUDPv4(s, src4, dst4, payload)
	}
	v6src, v6dst := s.SrcIP.To16(), s.DstIP.To16()
	if v6src == nil || v6dst == nil || s.SrcIP.To4() != nil || s.DstIP.To4() != nil {
		return nil, fmt.Errorf("packet: invalid or mismatched src/dst IP")
	}
	var src6, dst6 [16]byte
	copy(src6[:], v6src)
	copy(dst6[:], v6dst)
	return buildUDPv6(s, src6, dst6, payload)
}

func udpSegment(s UDPSpec, payload []byte) []byte {
	seg := make([]byte, udpHeaderLen+len(payload))
	binary.BigEndian.PutUint16(seg[0:2], s.SrcPort)
	binary.BigEndian.PutUint16(seg[2:4], s.DstPort)
	binary.BigEndian.PutUint16(seg[4:6], uint16(len(seg)))
	copy(seg[8:], payload)
	return seg
}

func buildUDPv4(s UDPSpec, src, dst [4]byte, payload []byte) ([]byte, error) {
	seg := udpSegment(s, payload)
	pseudo := pseudoHeaderV4(src, dst, 17, uint16(len(seg)))
	cs := l4Checksum(pseudo, seg)
	if cs == 0 {
		cs = 0xFFFF // UDP: computed-zero checksum is transmitted as all-ones
	}
	if s.BadChecksum {
		cs = ^cs
	}
	binary.BigEndian.PutUint16(seg[6:8], cs)

	ttl := s.TTLOrHopLimit
	if ttl == 0 {
		ttl = 64
	}
	ip := buildIPv4Header(src, dst, 17, ttl, uint16(ipv4HeaderLen+len(seg)), 0, 0, false)
	return append(ip, seg...), nil
}

func buildUDPv6(s UDPSpec, src, dst [16]byte, payload []byte) ([]byte, error) {
	seg := udpSegment(s, payload)
	pseudo := pseudoHeaderV6(src, dst, 17, uint32(len(seg)))
	cs := l4Checksum(pseudo, seg)
	if s.BadChecksum {
		cs = ^cs
	}
	binary.BigEndian.PutUint16(seg[6:8], cs)

	hop := s.TTLOrHopLimit
	if hop == 0 {
		hop = 64
	}
	ip := buildIPv6Header(src, dst, 17, hop, uint16(len(seg)))
	return append(ip, seg...), nil
}
