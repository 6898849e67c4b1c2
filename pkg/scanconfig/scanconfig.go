// Package scanconfig is the scanner core's ambient configuration
// layer: a single validated Config struct threading through every
// engine, the way the teacher's packages take explicit options structs
// rather than reading globals or environment variables ad hoc.
package scanconfig

import (
	"time"

	"github.com/doublegate/prortip-scanner-core/pkg/scanerr"
	"github.com/doublegate/prortip-scanner-core/pkg/scantypes"
)

// Config bundles every knob a scan run needs.
type Config struct {
	Targets  []string // CIDR or single IPs, parsed by scantypes.NewTarget
	Ports    string    // e.g. "1-1024,8080"
	ScanType scantypes.ScanType
	Timing   scantypes.TimingTemplate

	Interface string
	SrcIP     string // empty selects the route-determined default

	RateLimitTarget int // probes/sec hint for pkg/ratelimit, 0 = unbounded
	MaxConcurrent   int // concurrent in-flight probes, 0 defaults to 256

	Decoys      int  // number of random decoys, 0 disables
	DecoyListV6 bool

	EventLogDir       string
	EventLogMaxBytes  int64
	EventLogRetention time.Duration

	TCPInfoDiagnostics bool // enable pkg/connect's TCP_INFO enrichment
}

// Default returns a Config with the T3 timing template and no
// decoys/logging, suitable as a starting point for cmd/ entry points.
func Default() Config {
	return Config{
		Ports:             "1-1024",
		ScanType:          scantypes.Connect,
		Timing:            scantypes.T3,
		EventLogMaxBytes:  64 * 1024 * 1024,
		EventLogRetention: 7 * 24 * time.Hour,
	}
}

// Validate checks the Config for internal consistency before any
// engine is constructed from it, per spec §7's fail-fast policy for
// Config-kind errors.
func (c Config) Validate() error {
	if len(c.Targets) == 0 {
		return scanerr.New(scanerr.Config, "at least one target is required")
	}
	for _, t := range c.Targets {
		if _, err := scantypes.NewTarget(t); err != nil {
			return scanerr.Wrap(scanerr.Config, "invalid target "+t, err)
		}
	}
	if _, err := scantypes.ParsePortRange(c.Ports); err != nil {
		return scanerr.Wrap(scanerr.Config, "invalid port range", err)
	}
	if c.Timing.TimeoutMs <= 0 {
		return scanerr.New(scanerr.Config, "timing template must have a positive timeout")
	}
	if c.Decoys < 0 {
		return scanerr.New(scanerr.Config, "decoys must not be negative")
	}
	if c.RateLimitTarget < 0 {
		return scanerr.New(scanerr.Config, "rate limit target must not be negative")
	}
	if c.MaxConcurrent < 0 {
		return scanerr.New(scanerr.Config, "max concurrent must not be negative")
	}
	return nil
}
