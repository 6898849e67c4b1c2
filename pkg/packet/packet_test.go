package packet

import (
	"bytes"
	"net"
	"testing"
)

func TestBuildTCPv4GoodChecksum(t *testing.T) {
	pkt, err := BuildTCP(TCPSpec{
		SrcIP: net.ParseIP("192.0.2.1"), DstIP: net.ParseIP("192.0.2.2"),
		SrcPort: 12345, DstPort: 80, Flags: FlagSYN, Seq: 1000, Window: 65535,
	})
	if err != nil {
		t.Fatalf("BuildTCP: %v", err)
	}
	if len(pkt) != ipv4HeaderLen+tcpHeaderLen {
		t.Fatalf("len(pkt) = %d, want %d", len(pkt), ipv4HeaderLen+tcpHeaderLen)
	}
	if checksum(pkt[:ipv4HeaderLen]) != 0 {
		t.Fatalf("IPv4 header checksum does not verify")
	}
}

func TestBuildTCPBadChecksum(t *testing.T) {
	good, _ := BuildTCP(TCPSpec{
		SrcIP: net.ParseIP("192.0.2.1"), DstIP: net.ParseIP("192.0.2.2"),
		SrcPort: 1, DstPort: 2, Flags: FlagSYN, Window: 1,
	})
	bad, _ := BuildTCP(TCPSpec{
		SrcIP: net.ParseIP("192.0.2.1"), DstIP: net.ParseIP("192.0.2.2"),
		SrcPort: 1, DstPort: 2, Flags: FlagSYN, Window: 1, BadChecksum: true,
	})
	goodCS := good[ipv4HeaderLen+16 : ipv4HeaderLen+18]
	badCS := bad[ipv4HeaderLen+16 : ipv4HeaderLen+18]
	if bytes.Equal(goodCS, badCS) {
		t.Fatalf("bad-checksum flag did not change the TCP checksum")
	}
}

func TestBuildTCPv6(t *testing.T) {
	pkt, err := BuildTCP(TCPSpec{
		SrcIP: net.ParseIP("2001:db8::1"), DstIP: net.ParseIP("2001:db8::2"),
		SrcPort: 1, DstPort: 2, Flags: FlagRST,
	})
	if err != nil {
		t.Fatalf("BuildTCP: %v", err)
	}
	if len(pkt) != ipv6HeaderLen+tcpHeaderLen {
		t.Fatalf("len(pkt) = %d, want %d", len(pkt), ipv6HeaderLen+tcpHeaderLen)
	}
}

func TestMismatchedIPVersionsRejected(t *testing.T) {
	_, err := BuildTCP(TCPSpec{SrcIP: net.ParseIP("192.0.2.1"), DstIP: net.ParseIP("2001:db8::1")})
	if err == nil {
		t.Fatalf("expected error for mismatched IP versions")
	}
}

func TestBuildUDPZeroChecksumBecomesAllOnes(t *testing.T) {
	pkt, err := BuildUDP(UDPSpec{
		SrcIP: net.ParseIP("192.0.2.1"), DstIP: net.ParseIP("192.0.2.2"),
		SrcPort: 1, DstPort: 2, Payload: []byte{},
	})
	if err != nil {
		t.Fatalf("BuildUDP: %v", err)
	}
	cs := pkt[ipv4HeaderLen+6 : ipv4HeaderLen+8]
	if cs[0] == 0 && cs[1] == 0 {
		t.Fatalf("UDP checksum of 0 must be transmitted as 0xFFFF")
	}
}

func TestSolicitedNodeMulticast(t *testing.T) {
	target := net.ParseIP("2001:db8::1:ff00:42ab").To16()
	var arr [16]byte
	copy(arr[:], target)
	sn := SolicitedNodeMulticast(arr)
	want := net.ParseIP("ff02::1:ff00:42ab")
	got := net.IP(sn[:])
	if !got.Equal(want) {
		t.Fatalf("SolicitedNodeMulticast = %v, want %v", got, want)
	}
}

func TestFragmentationRoundTripScenario(t *testing.T) {
	pkt, err := BuildUDP(UDPSpec{
		SrcIP: net.ParseIP("192.0.2.1"), DstIP: net.ParseIP("192.0.2.2"),
		SrcPort: 1, DstPort: 2, Payload: bytes.Repeat([]byte{0xAB}, 2000),
	})
	if err != nil {
		t.Fatalf("BuildUDP: %v", err)
	}
	frags, err := FragmentIPv4(pkt, 576, 0xBEEF)
	if err != nil {
		t.Fatalf("FragmentIPv4: %v", err)
	}
	if len(frags) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(frags))
	}
	for i, f := range frags[:len(frags)-1] {
		payloadLen := len(f) - ipv4HeaderLen
		if payloadLen%8 != 0 {
			t.Fatalf("fragment %d payload length %d not a multiple of 8", i, payloadLen)
		}
		mf := f[6]&0x20 != 0
		if !mf {
			t.Fatalf("fragment %d missing MF flag", i)
		}
	}
	lastMF := frags[len(frags)-1][6]&0x20 != 0
	if lastMF {
		t.Fatalf("last fragment must clear MF")
	}
	reassembled, err := ReassembleIPv4(frags)
	if err != nil {
		t.Fatalf("ReassembleIPv4: %v", err)
	}
	original := pkt[ipv4HeaderLen:]
	if !bytes.Equal(reassembled, original) {
		t.Fatalf("reassembled payload does not match original")
	}
}

func TestChainExtensionHeaders(t *testing.T) {
	hbh := ExtensionHeader{Type: ExtHopByHop, Data: []byte{0x01, 0x04, 0, 0, 0, 0}}
	nh, combined := ChainExtensionHeaders([]ExtensionHeader{hbh}, 6, []byte("payload"))
	if nh != ExtHopByHop {
		t.Fatalf("base next header = %d, want %d", nh, ExtHopByHop)
	}
	if combined[0] != 6 {
		t.Fatalf("HBH next-header not wired to final next header")
	}
}
