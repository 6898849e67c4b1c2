// Package packet builds raw IPv4/IPv6 + TCP/UDP/ICMP(v6) frames with
// correct checksums, optional IPv6 extension headers, and
// MTU-respecting fragmentation.
//
// Grounded on _examples/other_examples/0ba6502d_carverauto-serviceradar__pkg-scan-syn_scanner.go.go
// (IPv4/TCP byte layout and checksum routine) and
// original_source/crates/prtip-network/src/ipv6_packet.rs (IPv6
// extension-header chaining and NDP address derivation).
package packet

import "encoding/binary"

// checksum computes the standard Internet one's-complement checksum
// (RFC 791/793/768) over an odd- or even-length byte slice.
func checksum(data []byte) uint16 {
	var sum uint32
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// pseudoHeaderV4 builds the IPv4 pseudo-header used in TCP/UDP
// checksums (RFC 793 §3.1).
func pseudoHeaderV4(src, dst [4]byte, proto byte, length uint16) []byte {
	buf := make([]byte, 12)
	copy(buf[0:4], src[:])
	copy(buf[4:8], dst[:])
	buf[8] = 0
	buf[9] = proto
	binary.BigEndian.PutUint16(buf[10:12], length)
	return buf
}

// pseudoHeaderV6 builds the IPv6 pseudo-header (RFC 8200 §8.1).
func pseudoHeaderV6(src, dst [16]byte, nextHeader byte, length uint32) []byte {
	buf := make([]byte, 40)
	copy(buf[0:16], src[:])
	copy(buf[16:32], dst[:])
	binary.BigEndian.PutUint32(buf[32:36], length)
	buf[39] = nextHeader
	return buf
}

// l4Checksum computes a TCP/UDP/ICMPv6 checksum over the pseudo-header
// concatenated with the L4 segment.
func l4Checksum(pseudo, segment []byte) uint16 {
	buf := make([]byte, 0, len(pseudo)+len(segment))
	buf = append(buf, pseudo...)
	buf = append(buf, segment...)
	return checksum(buf)
}

func htons(v uint16) uint16 { return (v<<8)&0xff00 | v>>8 }
