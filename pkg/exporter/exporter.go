/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package exporter is a Prometheus collector over live TCP
// connections' kernel TCP_INFO, adapted from its original HTTP-client
// socket-stats use case to cmd/metrics-exporter's job: surfacing RTT
// and window metrics for whichever connections the connect scan engine
// is currently holding open (relevant mainly to long-lived banner-grab
// follow-ups, since most connect probes close immediately after
// classification).
package exporter

import (
	"fmt"
	"net"
	"sync"

	"github.com/higebu/netfd"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/doublegate/prortip-scanner-core/pkg/tcpinfo"
)

type info struct {
	description *prometheus.Desc
	supplier    func(i *tcpinfo.Info, labelValues []string) prometheus.Metric
}

type connEntry struct {
	fd     uintptr
	labels []string
}

// TCPInfoCollector exposes TCP_INFO for a registered set of live
// connections as Prometheus metrics, re-querying the kernel on every
// Collect call.
type TCPInfoCollector struct {
	conns  map[net.Conn]connEntry
	mu     sync.Mutex
	logger func(error)
	infos  []info
}

func (t *TCPInfoCollector) Describe(descs chan<- *prometheus.Desc) {
	for _, inf := range t.infos {
		descs <- inf.description
	}
}

func (t *TCPInfoCollector) Collect(metrics chan<- prometheus.Metric) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for conn, entry := range t.conns {
		sys, err := tcpinfo.GetTCPInfo(entry.fd)
		if err != nil {
			t.logger(fmt.Errorf("error getting connection tcpinfo (removing conn %v -> %v): %w", conn.LocalAddr(), conn.RemoteAddr(), err))
			delete(t.conns, conn)
			continue
		}
		i := sys.ToInfo()
		for _, inf := range t.infos {
			metrics <- inf.supplier(i, entry.labels)
		}
	}
}

// Add registers conn for periodic TCP_INFO collection under labels
// (whose cardinality must match connectionLabels passed to
// NewTCPInfoCollector).
func (t *TCPInfoCollector) Add(conn net.Conn, labels []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conns[conn] = connEntry{
		fd:     uintptr(netfd.GetFdFromConn(conn)),
		labels: labels,
	}
}

func (t *TCPInfoCollector) Remove(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.conns, conn)
}

// NewTCPInfoCollector builds a collector whose metric names are
// prefixed with prefix and whose per-connection label set is
// connectionLabels (values supplied at Add time); constLabels apply to
// every emitted metric regardless of connection.
func NewTCPInfoCollector(
	prefix string,
	connectionLabels []string,
	constLabels prometheus.Labels,
	errorLoggingCallback func(error),
) *TCPInfoCollector {
	t := TCPInfoCollector{
		conns:  make(map[net.Conn]connEntry),
		logger: errorLoggingCallback,
	}
	t.addMetrics(prefix, connectionLabels, constLabels)
	return &t
}

func (t *TCPInfoCollector) addMetrics(prefix string, labels []string, constLabels prometheus.Labels) {
	mkDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prefix+"_"+name, help, labels, constLabels)
	}

	rtt := mkDesc("rtt_seconds", "Smoothed round-trip time estimate.")
	rttVar := mkDesc("rtt_variance_seconds", "Round-trip time variance estimate.")
	sendMSS := mkDesc("send_mss_bytes", "Sender maximum segment size.")
	recvWindow := mkDesc("recv_window_bytes", "Advertised receive window.")
	sendCwnd := mkDesc("send_cwnd_segments", "Sender congestion window, in segments.")

	t.infos = []info{
		{description: rtt, supplier: func(i *tcpinfo.Info, lv []string) prometheus.Metric {
			return prometheus.MustNewConstMetric(rtt, prometheus.GaugeValue, i.RTT.Seconds(), lv...)
		}},
		{description: rttVar, supplier: func(i *tcpinfo.Info, lv []string) prometheus.Metric {
			return prometheus.MustNewConstMetric(rttVar, prometheus.GaugeValue, i.RTTVar.Seconds(), lv...)
		}},
		{description: sendMSS, supplier: func(i *tcpinfo.Info, lv []string) prometheus.Metric {
			return prometheus.MustNewConstMetric(sendMSS, prometheus.GaugeValue, float64(i.SenderMSS), lv...)
		}},
		{description: recvWindow, supplier: func(i *tcpinfo.Info, lv []string) prometheus.Metric {
			return prometheus.MustNewConstMetric(recvWindow, prometheus.GaugeValue, float64(i.ReceiverWindow), lv...)
		}},
		{description: sendCwnd, supplier: func(i *tcpinfo.Info, lv []string) prometheus.Metric {
			return prometheus.MustNewConstMetric(sendCwnd, prometheus.GaugeValue, float64(i.SenderWindowSegs), lv...)
		}},
	}
}
