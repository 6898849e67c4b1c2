package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/doublegate/prortip-scanner-core/pkg/packet"
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

func buildEchoReply(from net.IP, id, seq int) []byte {
	msg := icmp.Message{Type: ipv4.ICMPTypeEchoReply, Code: 0, Body: &icmp.Echo{ID: id, Seq: seq}}
	b, _ := msg.Marshal(nil)
	ip := make([]byte, 20+len(b))
	ip[0] = 0x45
	ip[9] = 1
	copy(ip[12:16], from.To4())
	copy(ip[20:], b)
	return ip
}

func TestICMPEchoMarksAlive(t *testing.T) {
	dst := net.ParseIP("192.0.2.20")
	h := &fakeHandle{}
	e := New(h, net.ParseIP("192.0.2.10"), 200*time.Millisecond)
	h.resp = buildEchoReply(dst, (e.sequenceID+1)&0xFFFF, (e.sequenceID+1)&0xFFFF)

	res, err := e.Probe(context.Background(), dst)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !res.Alive || res.Method != MethodICMPEcho {
		t.Fatalf("Probe = %+v, want alive via ICMP echo", res)
	}
}

func TestSilentHostFallsBackToSynPing(t *testing.T) {
	dst := net.ParseIP("192.0.2.21")
	h := &fakeHandle{}
	e := New(h, net.ParseIP("192.0.2.10"), 50*time.Millisecond)

	res, err := e.Probe(context.Background(), dst)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.Alive {
		t.Fatalf("expected not alive, got %+v", res)
	}
}

func TestIsTCPReplyFromMatchesPort(t *testing.T) {
	dst := net.ParseIP("192.0.2.21")
	synack, _ := packet.BuildTCP(packet.TCPSpec{
		SrcIP: dst, DstIP: net.ParseIP("192.0.2.10"),
		SrcPort: 80, DstPort: 5555,
		Flags: packet.FlagSYN | packet.FlagACK, TTLOrHopLimit: 64,
	})
	if !isTCPReplyFrom(synack, dst, 5555) {
		t.Fatalf("expected match")
	}
	if isTCPReplyFrom(synack, dst, 9999) {
		t.Fatalf("expected no match for wrong port")
	}
}
