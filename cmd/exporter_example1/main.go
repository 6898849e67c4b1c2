/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// exporter_example1 demonstrates pkg/exporter.TCPInfoCollector against
// a live TCP connection: it dials a target, registers the connection
// for TCP_INFO collection, and serves the resulting metrics over
// /metrics until interrupted. Adapted from the original package's
// loopback "hallucinate" demo into a real outbound dial, since this
// module's TCPInfoCollector exists to observe scan-engine connections
// rather than an in-process echo.
package main

import (
	"flag"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/doublegate/prortip-scanner-core/pkg/exporter"
)

func main() {
	target := flag.String("target", "example.com:80", "host:port to dial and observe")
	listen := flag.String("listen", ":18080", "address to serve /metrics on")
	flag.Parse()

	hostname, err := os.Hostname()
	if err != nil {
		logrus.Fatalf("exporter_example1: %v", err)
	}

	conn, err := net.DialTimeout("tcp", *target, 5*time.Second)
	if err != nil {
		logrus.Fatalf("exporter_example1: dial %s: %v", *target, err)
	}

	exp := exporter.NewTCPInfoCollector(
		"prortip_example",
		nil,
		prometheus.Labels{
			"app":      "exporter_example1",
			"hostname": hostname,
			"target":   *target,
		},
		func(err error) {
			logrus.WithError(err).Warn("exporter_example1: collector error")
		},
	)
	exp.Add(conn, nil)
	prometheus.MustRegister(exp)

	http.Handle("/metrics", promhttp.Handler())
	logrus.Infof("exporter_example1: serving /metrics on %s for %s", *listen, *target)
	if err := http.ListenAndServe(*listen, nil); err != nil {
		logrus.Fatalf("exporter_example1: %v", err)
	}
}
