package packet

import (
	"encoding/binary"
	"fmt"
	"net"
)

// TCPFlags is a bitmask over the six classic TCP control bits plus
// ECE/CWR, matching spec §4.2's flag list.
type TCPFlags uint8

const (
	FlagFIN TCPFlags = 1 << 0
	FlagSYN TCPFlags = 1 << 1
	FlagRST TCPFlags = 1 << 2
	FlagPSH TCPFlags = 1 << 3
	FlagACK TCPFlags = 1 << 4
	FlagURG TCPFlags = 1 << 5
	FlagECE TCPFlags = 1 << 6
	FlagCWR TCPFlags = 1 << 7
)

// TCPOption is a raw TCP option (kind, optional data) appended after
// the fixed 20-byte header. MSS/SACK-permitted/timestamps/window-scale
// are all expressible via Kind+Data.
type TCPOption struct {
	Kind byte
	Data []byte
}

const (
	OptEnd        = 0
	OptNop        = 1
	OptMSS        = 2
	OptWindowScl  = 3
	OptSACKPermit = 4
	OptTimestamps = 8
)

func MSSOption(mss uint16) TCPOption {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, mss)
	return TCPOption{Kind: OptMSS, Data: buf}
}

func SACKPermittedOption() TCPOption { return TCPOption{Kind: OptSACKPermit} }

func WindowScaleOption(shift byte) TCPOption {
	return TCPOption{Kind: OptWindowScl, Data: []byte{shift}}
}

func TimestampsOption(tsval, tsecr uint32) TCPOption {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], tsval)
	binary.BigEndian.PutUint32(buf[4:8], tsecr)
	return TCPOption{Kind: OptTimestamps, Data: buf}
}

func encodeOptions(opts []TCPOption) []byte {
	if len(opts) == 0 {
		return nil
	}
	var buf []byte
	for _, o := range opts {
		buf = append(buf, o.Kind)
		if o.Kind == OptEnd || o.Kind == OptNop {
			continue
		}
		buf = append(buf, byte(len(o.Data)+2))
		buf = append(buf, o.Data...)
	}
	for len(buf)%4 != 0 {
		buf = append(buf, OptNop)
	}
	return buf
}

// TCPSpec is the input to BuildTCP: everything spec §4.2 says a TCP
// builder must accept.
type TCPSpec struct {
	SrcIP, DstIP     net.IP
	SrcPort, DstPort uint16
	Flags            TCPFlags
	Seq, Ack         uint32
	Window           uint16
	TTLOrHopLimit    uint8
	BadChecksum      bool
	Options          []TCPOption
}

const tcpHeaderLen = 20

// BuildTCP constructs a full IPv4+TCP or IPv6+TCP datagram depending on
// the address family of SrcIP/DstIP, per spec §4.2.
func BuildTCP(s TCPSpec) ([]byte, error) {
	v4src, v4dst := s.SrcIP.To4(), s.DstIP.To4()
	if v4src != nil && v4dst != nil {
		var src4, dst4 [4]byte
		copy(src4[:], v4src)
		copy(dst4[:], v4dst)
		return buildTCPv4(s, src4, dst4)
	}
	v6src, v6dst := s.SrcIP.To16(), s.DstIP.To16()
	if v6src == nil || v6dst == nil {
		return nil, fmt.Errorf("packet: invalid src/dst IP")
	}
	if s.SrcIP.To4() != nil || s.DstIP.To4() != nil {
		return nil, fmt.Errorf("packet: mismatched IP versions between src and dst")
	}
	var src6, dst6 [16]byte
	copy(src6[:], v6src)
	copy(dst6[:], v6dst)
	return buildTCPv6(s, src6, dst6)
}

func tcpSegment(s TCPSpec, checksumOverride *uint16) []byte {
	opts := encodeOptions(s.Options)
	dataOffset := byte((tcpHeaderLen + len(opts)) / 4)
	seg := make([]byte, tcpHeaderLen+len(opts))
	binary.BigEndian.PutUint16(seg[0:2], s.SrcPort)
	binary.BigEndian.PutUint16(seg[2:4], s.DstPort)
	binary.BigEndian.PutUint32(seg[4:8], s.Seq)
	binary.BigEndian.PutUint32(seg[8:12], s.Ack)
	seg[12] = dataOffset << 4
	seg[13] = byte(s.Flags)
	binary.BigEndian.PutUint16(seg[14:16], s.Window)
	// checksum field (16:18) left zero for now
	// urgent pointer (18:20) left zero
	copy(seg[20:], opts)
	if checksumOverride != nil {
		binary.BigEndian.PutUint16(seg[16:18], *checksumOverride)
	}
	return seg
}

func buildTCPv4(s TCPSpec, src, dst [4]byte) ([]byte, error) {
	seg := tcpSegment(s, nil)
	pseudo := pseudoHeaderV4(src, dst, 6, uint16(len(seg)))
	cs := l4Checksum(pseudo, seg)
	if s.BadChecksum {
		cs = ^cs // deliberately wrong, per spec §4.2
	}
	binary.BigEndian.PutUint16(seg[16:18], cs)

	ttl := s.TTLOrHopLimit
	if ttl == 0 {
		ttl = 64
	}
	ip := buildIPv4Header(src, dst, 6, ttl, uint16(ipv4HeaderLen+len(seg)), 0, 0, false)
	return append(ip, seg...), nil
}

func buildTCPv6(s TCPSpec, src, dst [16]byte) ([]byte, error) {
	seg := tcpSegment(s, nil)
	pseudo := pseudoHeaderV6(src, dst, 6, uint32(len(seg)))
	cs := l4Checksum(pseudo, seg)
	if s.BadChecksum {
		cs = ^cs
	}
	binary.BigEndian.PutUint16(seg[16:18], cs)

	hop := s.TTLOrHopLimit
	if hop == 0 {
		hop = 64
	}
	ip := buildIPv6Header(src, dst, 6, hop, uint16(len(seg)))
	return append(ip, seg...), nil
}
