// metrics-exporter serves Prometheus metrics for a running scan's
// adaptive rate limiter alongside per-connection TCP_INFO, the
// composition root for SPEC_FULL.md's observability surface.
package main

import (
	"flag"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/doublegate/prortip-scanner-core/pkg/exporter"
	"github.com/doublegate/prortip-scanner-core/pkg/ratelimit"
)

func main() {
	listen := flag.String("listen", ":9090", "address to serve /metrics on")
	rateTarget := flag.Int("rate-target", 0, "probes/sec hint for the adaptive rate limiter, 0 for unbounded")
	flag.Parse()

	limiter := ratelimit.New(*rateTarget)
	defer limiter.Stop()

	tcpInfoCollector := exporter.NewTCPInfoCollector(
		"prortip_scan",
		[]string{"target"},
		prometheus.Labels{"component": "metrics-exporter"},
		func(err error) {
			logrus.WithError(err).Warn("metrics-exporter: tcpinfo collector error")
		},
	)

	prometheus.MustRegister(limiter, tcpInfoCollector)

	http.Handle("/metrics", promhttp.Handler())
	logrus.Infof("metrics-exporter: serving /metrics on %s", *listen)
	if err := http.ListenAndServe(*listen, nil); err != nil {
		logrus.Fatalf("metrics-exporter: %v", err)
	}
}
