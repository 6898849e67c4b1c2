package stealth

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/doublegate/prortip-scanner-core/pkg/packet"
	"github.com/doublegate/prortip-scanner-core/pkg/ratelimit"
	"github.com/doublegate/prortip-scanner-core/pkg/scantypes"
)

// fakeHandle replays a single canned response to the first Receive
// call and nil (timeout) thereafter.
type fakeHandle struct {
	sent [][]byte
	resp []byte
	used bool
}

func (f *fakeHandle) Send(ctx context.Context, dst net.IP, frame []byte) error {
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeHandle) Receive(timeout time.Duration) ([]byte, error) {
	if f.used {
		return nil, nil
	}
	f.used = true
	return f.resp, nil
}

func (f *fakeHandle) Close() error { return nil }

func TestFINScanClassifiesRSTAsClosed(t *testing.T) {
	src := net.ParseIP("192.0.2.10")
	dst := net.ParseIP("192.0.2.20")
	h := &fakeHandle{}
	e := New(VariantFIN, h, src, scantypes.TimingTemplate{TimeoutMs: 200})

	rst, err := packet.BuildTCP(packet.TCPSpec{
		SrcIP: dst, DstIP: src, SrcPort: 80, DstPort: e.SrcPort,
		Flags: packet.FlagRST, TTLOrHopLimit: 64,
	})
	if err != nil {
		t.Fatalf("build rst: %v", err)
	}
	h.resp = rst

	res, err := e.ScanPort(context.Background(), dst, 80)
	if err != nil {
		t.Fatalf("ScanPort: %v", err)
	}
	if res.State != scantypes.Closed {
		t.Fatalf("State = %v, want Closed", res.State)
	}
}

func TestNullScanNoResponseIsFiltered(t *testing.T) {
	src := net.ParseIP("192.0.2.10")
	dst := net.ParseIP("192.0.2.20")
	h := &fakeHandle{}
	e := New(VariantNull, h, src, scantypes.TimingTemplate{TimeoutMs: 50})

	res, err := e.ScanPort(context.Background(), dst, 80)
	if err != nil {
		t.Fatalf("ScanPort: %v", err)
	}
	if res.State != scantypes.Filtered {
		t.Fatalf("State = %v, want Filtered (silent = ambiguous open|filtered, reported Filtered)", res.State)
	}
}

func TestBackedOffTargetSkipsSendAndIsFiltered(t *testing.T) {
	src := net.ParseIP("192.0.2.10")
	dst := net.ParseIP("192.0.2.30")
	h := &fakeHandle{}
	e := New(VariantFIN, h, src, scantypes.TimingTemplate{TimeoutMs: 50})
	e.Backoff = ratelimit.NewBackoffMap()
	e.Backoff.Quench(dst.String())

	res, err := e.ScanPort(context.Background(), dst, 80)
	if err != nil {
		t.Fatalf("ScanPort: %v", err)
	}
	if res.State != scantypes.Filtered {
		t.Fatalf("State = %v, want Filtered", res.State)
	}
	if len(h.sent) != 0 {
		t.Fatalf("expected no probe sent while backed off, sent %d", len(h.sent))
	}
}
