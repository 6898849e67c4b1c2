package shuffle

import (
	"encoding/binary"

	"github.com/dchest/siphash"
)

// SipHashRoundFunc mixes the round index and value through SipHash-2-4,
// keyed by seed. An alternative to AvalancheRoundFunc for callers that
// want a cryptographically-vetted mixer; scanning itself needs no
// secrecy, so either is a valid round function per spec §4.1.
func SipHashRoundFunc(round, value, seed uint64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], round)
	binary.LittleEndian.PutUint64(buf[8:16], value)
	return siphash.Hash(seed, ^seed, buf[:])
}

// SipHash24 exposes raw SipHash-2-4 keyed hashing for conformance
// testing against spec §8 Scenario D, and for any caller that wants a
// fast keyed hash unrelated to shuffling.
func SipHash24(k0, k1 uint64, data []byte) uint64 {
	return siphash.Hash(k0, k1, data)
}
