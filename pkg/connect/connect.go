// Package connect implements the TCP connect scan engine (spec §4.4):
// a full three-way handshake per port, classified into
// scantypes.PortOpen / PortClosed / PortFiltered, with optional
// TCP_INFO diagnostics enrichment.
//
// Grounded on sockstats.go's WrapConn/gatherAndReport pattern for
// pulling TCP_INFO off a live *net.TCPConn via SyscallConn().Control,
// generalized from "report socket lifecycle stats" to "classify a scan
// probe and optionally attach kernel-level RTT diagnostics".
package connect

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/doublegate/prortip-scanner-core/pkg/aggregator"
	"github.com/doublegate/prortip-scanner-core/pkg/scanerr"
	"github.com/doublegate/prortip-scanner-core/pkg/scantypes"
	"github.com/doublegate/prortip-scanner-core/pkg/tcpinfo"
)

// Engine runs TCP connect scans against individual (ip, port) pairs.
type Engine struct {
	Timing      scantypes.TimingTemplate
	Diagnostics bool // attach TCPDiagnostics via TCP_INFO when true
	Log         *logrus.Entry
}

// New constructs an Engine using the given timing template. Diagnostics
// defaults to disabled; enable it explicitly since reading TCP_INFO
// costs an extra syscall per connection.
func New(timing scantypes.TimingTemplate) *Engine {
	return &Engine{Timing: timing, Log: logrus.WithField("engine", "connect")}
}

// ScanPort attempts a full TCP handshake to ip:port, classifying the
// result per spec §4.4:
//   - connection succeeds            → PortOpen
//   - ECONNREFUSED / RST              → PortClosed
//   - timeout / no response           → PortFiltered
//   - any other error                 → PortFiltered, logged
func (e *Engine) ScanPort(ctx context.Context, ip net.IP, port int) (scantypes.ScanResult, error) {
	if port == 0 {
		return scantypes.ScanResult{}, scanerr.New(scanerr.InvalidInput, "connect: port 0 is not scannable")
	}
	start := time.Now()
	timeout := time.Duration(e.Timing.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	addr := net.JoinHostPort(ip.String(), strconv.Itoa(port))

	var lastErr error
	retries := e.Timing.MaxRetries
	if retries < 0 {
		retries = 0
	}
	var conn net.Conn
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
				return scantypes.ScanResult{}, ctx.Err()
			}
		}
		// A fresh ephemeral source port per attempt, per spec §4.4 step 3
		// ("retry with a fresh ephemeral source"): an unbound Dialer lets
		// the kernel pick a new one on each DialContext call.
		dialer := &net.Dialer{Timeout: timeout}
		dctx, cancel := context.WithTimeout(ctx, timeout)
		conn, lastErr = dialer.DialContext(dctx, "tcp", addr)
		cancel()
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return scantypes.ScanResult{}, ctx.Err()
		}
		if isPermissionDenied(lastErr) {
			break // not retriable: privilege won't change between attempts
		}
		if !isRetriable(lastErr) {
			break
		}
	}
	elapsed := time.Since(start)

	if lastErr == nil {
		defer conn.Close()
		rb := scantypes.NewResult(ip, port, scantypes.Open).WithResponseTime(elapsed)
		if e.Diagnostics {
			if diag := e.collectDiagnostics(conn); diag != nil {
				rb = rb.WithDiagnostics(diag)
			}
		}
		return rb.Build(), nil
	}

	if isRefused(lastErr) {
		return scantypes.NewResult(ip, port, scantypes.Closed).WithResponseTime(elapsed).Build(), nil
	}
	// Every remaining class (PermissionDenied, AddrInUse/NotAvailable,
	// other I/O errors, timeouts) classifies as Filtered per spec §4.4 —
	// these are domain outcomes, not programming errors (spec §7), so no
	// error is returned alongside a valid result.
	if !isTimeoutOrUnreachable(lastErr) && !isPermissionDenied(lastErr) {
		e.Log.WithError(lastErr).WithFields(logrus.Fields{"ip": ip.String(), "port": port}).
			Debug("connect scan: classifying unexpected error as filtered")
	}
	return scantypes.NewResult(ip, port, scantypes.Filtered).WithResponseTime(elapsed).Build(), nil
}

// ProgressCounters is the per-terminal-state tally spec §4.4's "Progress
// integration" note describes: one counter per classified PortState,
// plus a generic Other bucket for probes ScanPort returned an error
// for (those carry no classified state).
type ProgressCounters struct {
	Open, Closed, Filtered, Unknown, Other atomic.Uint64
}

// Record tallies one probe outcome; hadErr marks probes ScanPort
// returned a non-nil error for, which are counted under Other only and
// never under a PortState counter.
func (p *ProgressCounters) Record(state scantypes.PortState, hadErr bool) {
	if hadErr {
		p.Other.Add(1)
		return
	}
	switch state {
	case scantypes.Open:
		p.Open.Add(1)
	case scantypes.Closed:
		p.Closed.Add(1)
	case scantypes.Filtered:
		p.Filtered.Add(1)
	default:
		p.Unknown.Add(1)
	}
}

// ScanPorts implements spec §4.4's batch contract: scan_ports(ip,
// ports, max_concurrent) spawns up to max_concurrent concurrent
// per-port tasks gated by a counting semaphore, pushing every result
// into agg as it completes, then draining it once after the whole
// batch finishes. Order of the returned slice is not specified. progress
// may be nil.
func (e *Engine) ScanPorts(ctx context.Context, ip net.IP, ports []int, maxConcurrent int, agg *aggregator.Aggregator, progress *ProgressCounters) []scantypes.ScanResult {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for _, port := range ports {
		port := port
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return agg.DrainAll()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := e.ScanPort(ctx, ip, port)
			if err != nil {
				e.Log.WithError(err).WithField("port", port).Debug("connect scan: probe error")
			}
			if progress != nil {
				progress.Record(res.State, err != nil)
			}
			agg.Push(res)
		}()
	}
	wg.Wait()
	return agg.DrainAll()
}

func (e *Engine) collectDiagnostics(conn net.Conn) *scantypes.TCPDiagnostics {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return nil
	}
	var sys *tcpinfo.SysInfo
	var ctrlErr error
	err = rawConn.Control(func(fd uintptr) {
		sys, ctrlErr = tcpinfo.GetTCPInfo(fd)
	})
	if err != nil || ctrlErr != nil || sys == nil {
		return nil
	}
	info := sys.ToInfo()
	return &scantypes.TCPDiagnostics{
		RTT:           info.RTT,
		RTTVar:        info.RTTVar,
		CongestionWnd: info.SenderWindowSegs,
	}
}

// isRetriable reports whether spec §4.4 step 3 calls for a retry with a
// fresh ephemeral source: everything except ConnectionRefused and
// PermissionDenied, which classify immediately without retrying.
func isRetriable(err error) bool {
	return !isRefused(err) && !isPermissionDenied(err)
}

func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

func isPermissionDenied(err error) bool {
	return errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM)
}

func isTimeoutOrUnreachable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH)
}

