//go:build !linux

package capture

import "fmt"

// openRawSocket has no portable implementation outside Linux in this
// tree; darwin/windows callers needing raw TCP/UDP crafting (C5 stealth,
// C6 UDP, C12 decoys) are out of scope for those platforms per spec
// Non-goals on cross-platform raw capture, and fall back to
// PacketConnHandle for ICMP-only discovery.
func openRawSocket(opts Options) (Handle, error) {
	return nil, fmt.Errorf("capture: raw sockets not implemented on this platform")
}
