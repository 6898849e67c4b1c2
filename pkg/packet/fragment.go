package packet

import (
	"encoding/binary"
	"fmt"
)

// FragmentIPv4 splits a built IPv4 datagram's payload into fragments
// whose sizes are multiples of 8 (except possibly the last), per
// spec §4.2/§4.13. The L4 checksum was already computed over the
// whole payload before this call, so fragments only adjust IP-layer
// fields.
func FragmentIPv4(datagram []byte, mtu int, id uint16) ([][]byte, error) {
	if len(datagram) < ipv4HeaderLen {
		return nil, fmt.Errorf("packet: datagram too short to fragment")
	}
	header := datagram[:ipv4HeaderLen]
	payload := datagram[ipv4HeaderLen:]

	maxPayload := mtu - ipv4HeaderLen
	maxPayload -= maxPayload % 8
	if maxPayload <= 0 {
		return nil, fmt.Errorf("packet: mtu %d too small to fragment", mtu)
	}

	var frags [][]byte
	for offset := 0; offset < len(payload); offset += maxPayload {
		end := offset + maxPayload
		more := true
		if end >= len(payload) {
			end = len(payload)
			more = false
		}
		chunk := payload[offset:end]
		h := append([]byte(nil), header...)
		binary.BigEndian.PutUint16(h[2:4], uint16(ipv4HeaderLen+len(chunk)))
		binary.BigEndian.PutUint16(h[4:6], id)
		flagsFrag := uint16(offset / 8)
		if more {
			flagsFrag |= 0x2000 // MF
		}
		binary.BigEndian.PutUint16(h[6:8], flagsFrag)
		h[10], h[11] = 0, 0
		cs := checksum(h)
		binary.BigEndian.PutUint16(h[10:12], cs)
		frags = append(frags, append(h, chunk...))
	}
	return frags, nil
}

// ReassembleIPv4 reconstructs the original payload from a set of
// fragments produced by FragmentIPv4, used by the round-trip test in
// spec §8's fragmentation property.
func ReassembleIPv4(frags [][]byte) ([]byte, error) {
	var out []byte
	for i, f := range frags {
		if len(f) < ipv4HeaderLen {
			return nil, fmt.Errorf("packet: fragment %d too short", i)
		}
		out = append(out, f[ipv4HeaderLen:]...)
	}
	return out, nil
}

// FragmentIPv6 splits an IPv6 payload (after the base header and any
// preceding extension headers) into 8-byte-multiple fragments,
// respecting the IPv6 minimum MTU of 1280, and chains a Fragment
// header (44) in front of each. originalNextHeader is the next-header
// value the unfragmented upper-layer payload would have carried.
func FragmentIPv6(src, dst [16]byte, originalNextHeader byte, payload []byte, mtu int, id uint32) ([][]byte, error) {
	if mtu < 1280 {
		return nil, fmt.Errorf("packet: ipv6 mtu %d below minimum 1280", mtu)
	}
	maxPayload := mtu - ipv6HeaderLen - 8 // fragment header is 8 bytes
	maxPayload -= maxPayload % 8
	if maxPayload <= 0 {
		return nil, fmt.Errorf("packet: mtu %d too small to fragment", mtu)
	}

	var packets [][]byte
	for offset := 0; offset < len(payload); offset += maxPayload {
		end := offset + maxPayload
		more := true
		if end >= len(payload) {
			end = len(payload)
			more = false
		}
		chunk := payload[offset:end]
		fragHeader := ExtensionHeader{
			Type:       ExtFragment,
			NextHeader: originalNextHeader,
			Data:       FragmentHeaderData(uint16(offset/8), more, id),
		}
		encoded := fragHeader.Encode()
		base := buildIPv6Header(src, dst, ExtFragment, 64, uint16(len(encoded)+len(chunk)))
		packets = append(packets, append(append(base, encoded...), chunk...))
	}
	return packets, nil
}
