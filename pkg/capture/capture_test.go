package capture

import "testing"

func TestOpenFallsBackWithoutPrivilege(t *testing.T) {
	// This process is very unlikely to hold CAP_NET_RAW in CI, so Open
	// should either succeed via a raw socket (running as root) or fall
	// back to the unprivileged PacketConn backend rather than error.
	h, err := Open(Options{})
	if err != nil {
		t.Skipf("no capture backend available in this sandbox: %v", err)
	}
	defer h.Close()
}
