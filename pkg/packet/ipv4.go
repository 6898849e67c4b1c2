package packet

import "encoding/binary"

const ipv4HeaderLen = 20

// buildIPv4Header builds a minimal 20-byte IPv4 header (no options),
// per RFC 791. flagsAndFrag is written to bytes 6:8 (MF flag and the
// offset-in-8-byte-units field) and id to bytes 4:6; dontFragment ORs
// in the DF bit. Every current caller builds an unfragmented packet
// and passes 0 for both; FragmentIPv4 (fragment.go) does not call this
// function and rewrites bytes 6:8 of a copied header instead.
func buildIPv4Header(src, dst [4]byte, proto byte, ttl uint8, totalLen uint16, flagsAndFrag uint16, id uint16, dontFragment bool) []byte {
	h := make([]byte, ipv4HeaderLen)
	h[0] = 0x45 // version 4, IHL 5 (20 bytes)
	h[1] = 0    // DSCP/ECN
	binary.BigEndian.PutUint16(h[2:4], totalLen)
	binary.BigEndian.PutUint16(h[4:6], id)
	flags := flagsAndFrag
	if dontFragment {
		flags |= 0x4000
	}
	binary.BigEndian.PutUint16(h[6:8], flags)
	h[8] = ttl
	h[9] = proto
	// checksum (10:12) computed below
	copy(h[12:16], src[:])
	copy(h[16:20], dst[:])
	cs := checksum(h)
	binary.BigEndian.PutUint16(h[10:12], cs)
	return h
}
