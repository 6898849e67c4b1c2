package udpscan

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/doublegate/prortip-scanner-core/pkg/scantypes"
)

type fakeHandle struct {
	resp []byte
	used bool
}

func (f *fakeHandle) Send(ctx context.Context, dst net.IP, frame []byte) error { return nil }

func (f *fakeHandle) Receive(timeout time.Duration) ([]byte, error) {
	if f.used {
		return nil, nil
	}
	f.used = true
	return f.resp, nil
}

func (f *fakeHandle) Close() error { return nil }

func buildPortUnreachable(dst net.IP, origDstPort uint16) []byte {
	origIP := make([]byte, 20)
	origIP[0] = 0x45
	origUDP := make([]byte, 8)
	binary.BigEndian.PutUint16(origUDP[2:4], origDstPort)
	embedded := append(origIP, origUDP...)

	icmpMsg := make([]byte, 8+len(embedded))
	icmpMsg[0] = 3 // Destination Unreachable
	icmpMsg[1] = 3 // Port Unreachable
	copy(icmpMsg[8:], embedded)

	ip := make([]byte, 20+len(icmpMsg))
	ip[0] = 0x45
	ip[9] = 1 // ICMP
	copy(ip[12:16], dst.To4())
	copy(ip[20:], icmpMsg)
	return ip
}

func TestUDPScanClosedOnPortUnreachable(t *testing.T) {
	dst := net.ParseIP("192.0.2.20")
	h := &fakeHandle{resp: buildPortUnreachable(dst, 53)}
	e := New(h, net.ParseIP("192.0.2.10"), 40000, scantypes.TimingTemplate{TimeoutMs: 200})

	res, err := e.ScanPort(context.Background(), dst, 53)
	if err != nil {
		t.Fatalf("ScanPort: %v", err)
	}
	if res.State != scantypes.Closed {
		t.Fatalf("State = %v, want Closed", res.State)
	}
}

func TestUDPScanSilentIsFiltered(t *testing.T) {
	h := &fakeHandle{}
	e := New(h, net.ParseIP("192.0.2.10"), 40000, scantypes.TimingTemplate{TimeoutMs: 50})

	res, err := e.ScanPort(context.Background(), net.ParseIP("192.0.2.20"), 53)
	if err != nil {
		t.Fatalf("ScanPort: %v", err)
	}
	if res.State != scantypes.Filtered {
		t.Fatalf("State = %v, want Filtered (ambiguous open|filtered)", res.State)
	}
}
