package packet

import "encoding/binary"

const ipv6HeaderLen = 40

// IPv6 extension header type numbers, per RFC 8200.
const (
	ExtHopByHop    = 0
	ExtRouting     = 43
	ExtFragment    = 44
	ExtDestOptions = 60
)

// buildIPv6Header builds the fixed 40-byte IPv6 base header. payloadLen
// must cover every extension header plus the upper-layer payload, per
// spec §4.2.
func buildIPv6Header(src, dst [16]byte, nextHeader byte, hopLimit uint8, payloadLen uint16) []byte {
	h := make([]byte, ipv6HeaderLen)
	binary.BigEndian.PutUint32(h[0:4], 6<<28) // version 6, traffic class 0, flow label 0
	binary.BigEndian.PutUint16(h[4:6], payloadLen)
	h[6] = nextHeader
	h[7] = hopLimit
	copy(h[8:24], src[:])
	copy(h[24:40], dst[:])
	return h
}

// ExtensionHeader is one chained IPv6 extension header (Hop-by-Hop,
// Routing, Fragment, or Destination Options).
type ExtensionHeader struct {
	Type       byte
	NextHeader byte
	Data       []byte // header-type-specific content, excluding the 2-byte next-header/len prefix for HBH/Routing/DstOpts
}

// Encode serializes the extension header per RFC 8200 §4, padding
// Hop-by-Hop/Routing/Destination-Options to a multiple of 8 bytes. The
// Fragment header has a fixed 8-byte layout and is not length-padded.
func (e ExtensionHeader) Encode() []byte {
	if e.Type == ExtFragment {
		buf := make([]byte, 8)
		buf[0] = e.NextHeader
		buf[1] = 0 // reserved
		copy(buf[2:8], e.Data)
		return buf
	}
	body := make([]byte, 0, len(e.Data)+2)
	body = append(body, e.NextHeader, 0) // length filled below
	body = append(body, e.Data...)
	for len(body)%8 != 0 {
		body = append(body, 0)
	}
	body[1] = byte(len(body)/8 - 1)
	return body
}

// FragmentHeaderData builds the 6-byte fragment-specific payload
// (offset-in-8-byte-units + M flag, 32-bit identification) that follows
// the next-header/reserved prefix in an IPv6 Fragment header.
func FragmentHeaderData(offsetUnits uint16, moreFragments bool, id uint32) []byte {
	buf := make([]byte, 6)
	v := offsetUnits << 3
	if moreFragments {
		v |= 1
	}
	binary.BigEndian.PutUint16(buf[0:2], v)
	binary.BigEndian.PutUint32(buf[2:6], id)
	return buf
}

// SolicitedNodeMulticast derives ff02::1:ffNN:NNNN from the low 24 bits
// of target, per RFC 4861 §2.3 / spec §4.2.
func SolicitedNodeMulticast(target [16]byte) [16]byte {
	var addr [16]byte
	addr[0], addr[1] = 0xff, 0x02
	addr[11] = 0x01
	addr[12] = 0xff
	addr[13] = target[13]
	addr[14] = target[14]
	addr[15] = target[15]
	return addr
}

// ChainExtensionHeaders prepends the given extension headers (in
// order) to payload, wiring each header's next-header field to point
// at the following one (or to finalNextHeader for the last), and
// returns the combined bytes plus the next-header value the IPv6 base
// header itself must carry.
func ChainExtensionHeaders(headers []ExtensionHeader, finalNextHeader byte, payload []byte) (baseNextHeader byte, combined []byte) {
	if len(headers) == 0 {
		return finalNextHeader, payload
	}
	for i := range headers {
		if i+1 < len(headers) {
			headers[i].NextHeader = headers[i+1].Type
		} else {
			headers[i].NextHeader = finalNextHeader
		}
	}
	var out []byte
	for _, h := range headers {
		out = append(out, h.Encode()...)
	}
	out = append(out, payload...)
	return headers[0].Type, out
}
