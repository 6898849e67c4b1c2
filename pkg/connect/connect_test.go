package connect

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/doublegate/prortip-scanner-core/pkg/scantypes"
)

func TestScanPortOpen(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	e := New(scantypes.TimingTemplate{TimeoutMs: 500, MaxRetries: 1})
	res, err := e.ScanPort(context.Background(), addr.IP, addr.Port)
	if err != nil {
		t.Fatalf("ScanPort: %v", err)
	}
	if res.State != scantypes.Open {
		t.Fatalf("State = %v, want Open", res.State)
	}
}

func TestScanPortClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close() // nothing listening now; connection should be refused

	e := New(scantypes.TimingTemplate{TimeoutMs: 500, MaxRetries: 1})
	res, err := e.ScanPort(context.Background(), addr.IP, addr.Port)
	if err != nil {
		t.Fatalf("ScanPort: %v", err)
	}
	if res.State != scantypes.Closed {
		t.Fatalf("State = %v, want Closed", res.State)
	}
}

func TestScanPortFilteredOnTimeout(t *testing.T) {
	// 192.0.2.0/24 is TEST-NET-1 (RFC 5737): never routed, so the dial
	// will hang until our own timeout fires rather than get refused.
	e := New(scantypes.TimingTemplate{TimeoutMs: 50, MaxRetries: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := e.ScanPort(ctx, net.ParseIP("192.0.2.1"), 80)
	if err != nil {
		t.Fatalf("ScanPort: %v", err)
	}
	if res.State != scantypes.Filtered {
		t.Fatalf("State = %v, want Filtered", res.State)
	}
}
