package scantypes

import (
	"net"
	"time"
)

// PortState is a total order used for tie-breaking in reporting:
// Open < Closed < Filtered < Unknown.
type PortState int

const (
	Open PortState = iota
	Closed
	Filtered
	Unknown
)

func (s PortState) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Filtered:
		return "filtered"
	default:
		return "unknown"
	}
}

// ScanType governs which engine handles a probe.
type ScanType int

const (
	Connect ScanType = iota
	Syn
	Fin
	Null
	Xmas
	Ack
	Udp
	Idle
)

func (t ScanType) String() string {
	switch t {
	case Connect:
		return "connect"
	case Syn:
		return "syn"
	case Fin:
		return "fin"
	case Null:
		return "null"
	case Xmas:
		return "xmas"
	case Ack:
		return "ack"
	case Udp:
		return "udp"
	case Idle:
		return "idle"
	default:
		return "unknown"
	}
}

// TimingTemplate presets balance speed against stealth. Values per
// spec §3 / §5.
type TimingTemplate struct {
	Name           string
	TimeoutMs      int
	InterProbeMs   int
	MaxParallelism int
	MaxRetries     int
}

var (
	T0 = TimingTemplate{Name: "T0", TimeoutMs: 300000, InterProbeMs: 300000, MaxParallelism: 1, MaxRetries: 5}
	T1 = TimingTemplate{Name: "T1", TimeoutMs: 15000, InterProbeMs: 15000, MaxParallelism: 1, MaxRetries: 5}
	T2 = TimingTemplate{Name: "T2", TimeoutMs: 1000, InterProbeMs: 400, MaxParallelism: 100, MaxRetries: 3}
	T3 = TimingTemplate{Name: "T3", TimeoutMs: 1000, InterProbeMs: 0, MaxParallelism: 1000, MaxRetries: 2}
	T4 = TimingTemplate{Name: "T4", TimeoutMs: 500, InterProbeMs: 0, MaxParallelism: 5000, MaxRetries: 1}
	T5 = TimingTemplate{Name: "T5", TimeoutMs: 250, InterProbeMs: 0, MaxParallelism: 10000, MaxRetries: 0}
)

// ScanResult is immutable once produced.
type ScanResult struct {
	TargetIP     net.IP
	Port         int
	State        PortState
	ResponseTime time.Duration
	Timestamp    time.Time
	Banner       *string
	Service      *string

	// Diagnostics carries optional TCP_INFO enrichment populated only
	// by the connect engine on platforms that support it (see
	// SPEC_FULL.md §D.1). Never required for classification.
	Diagnostics *TCPDiagnostics
}

// TCPDiagnostics is a minimal projection of kernel TCP_INFO relevant to
// a single connect attempt.
type TCPDiagnostics struct {
	RTT           time.Duration
	RTTVar        time.Duration
	Retransmits   uint8
	CongestionWnd uint64
}

// ResultBuilder constructs a ScanResult with a fluent interface,
// mirroring the builder pattern used by the original Rust ScanResult.
type ResultBuilder struct {
	r ScanResult
}

func NewResult(ip net.IP, port int, state PortState) *ResultBuilder {
	return &ResultBuilder{r: ScanResult{TargetIP: ip, Port: port, State: state, Timestamp: time.Now()}}
}

func (b *ResultBuilder) WithResponseTime(d time.Duration) *ResultBuilder {
	b.r.ResponseTime = d
	return b
}

func (b *ResultBuilder) WithBanner(s string) *ResultBuilder {
	b.r.Banner = &s
	return b
}

func (b *ResultBuilder) WithService(s string) *ResultBuilder {
	b.r.Service = &s
	return b
}

func (b *ResultBuilder) WithDiagnostics(d *TCPDiagnostics) *ResultBuilder {
	b.r.Diagnostics = d
	return b
}

func (b *ResultBuilder) Build() ScanResult {
	return b.r
}
