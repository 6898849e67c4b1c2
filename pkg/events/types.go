// Package events implements the scan event bus of spec §4.10: a
// pub/sub broadcaster with bounded ring-buffer history and a
// JSON-lines file sink, supplemented (SPEC_FULL.md §D.4) with the
// auxiliary enums the original events/types.rs carried (ScanStage,
// Throughput, PauseReason, DiscoveryMethod, WarningSeverity,
// MetricType) that spec.md's distillation left implicit.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ScanStage orders a scan's lifecycle for progress reporting.
type ScanStage int

const (
	StagePending ScanStage = iota
	StageResolving
	StageDiscovery
	StageScanning
	StageComplete
	StageCancelled
)

func (s ScanStage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageDiscovery:
		return "discovery"
	case StageScanning:
		return "scanning"
	case StageResolving:
		return "resolving"
	case StageComplete:
		return "complete"
	case StageCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// PauseReason records why a scan's progress stalled.
type PauseReason int

const (
	PauseRateLimited PauseReason = iota
	PauseUserRequested
	PauseResourceExhaustion
)

// WarningSeverity grades a ScanWarning event.
type WarningSeverity int

const (
	SeverityInfo WarningSeverity = iota
	SeverityWarning
	SeverityCritical
)

// MetricType names which counter a ScanMetric event updates.
type MetricType int

const (
	MetricPacketsSent MetricType = iota
	MetricPacketsReceived
	MetricBytesSent
	MetricBytesReceived
	MetricRetransmits
)

// Throughput is a point-in-time rate sample.
type Throughput struct {
	PacketsPerSecond float64
	BytesPerSecond   float64
}

// DiscoveryMethod mirrors pkg/discovery.Method for event payloads
// without importing pkg/discovery, keeping the event schema
// self-contained the way a wire format should be.
type DiscoveryMethod int

const (
	DiscoveryNone DiscoveryMethod = iota
	DiscoveryICMPEcho
	DiscoveryNeighborAdvertisement
	DiscoveryTCPSynAck
)

// EventType discriminates the ScanEvent union.
type EventType int

const (
	EventScanStarted EventType = iota
	EventHostDiscovered
	EventPortFound
	EventScanProgress
	EventScanPaused
	EventScanResumed
	EventScanWarning
	EventScanMetric
	EventScanStageChanged
	EventScanCompleted
	EventScanCancelled
	EventScanError
	EventValidationError
	EventDecoyBatchSent
	EventRateLimitAdjusted
	EventBackoffTriggered
	EventEventLogRotated
	EventShutdownRequested
)

func (t EventType) String() string {
	names := [...]string{
		"scan_started", "host_discovered", "port_found", "scan_progress",
		"scan_paused", "scan_resumed", "scan_warning", "scan_metric",
		"scan_stage_changed", "scan_completed", "scan_cancelled", "scan_error",
		"validation_error", "decoy_batch_sent", "rate_limit_adjusted",
		"backoff_triggered", "event_log_rotated", "shutdown_requested",
	}
	if int(t) < 0 || int(t) >= len(names) {
		return "unknown"
	}
	return names[t]
}

// ValidationError describes a malformed event payload rejected before
// publication, per SPEC_FULL.md §D.3.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return "events: invalid " + e.Field + ": " + e.Reason
}

// ScanEvent is the full 18-variant event union. Only the fields
// relevant to Type are populated; the rest are zero values. JSON tags
// follow spec §6's wire format: snake_case field names, Type itself
// marshaled through MarshalJSON as its string discriminator rather
// than the underlying int, so a published event serializes as
// {"type":"scan_started", ...} rather than {"Type":0, ...}.
type ScanEvent struct {
	Type      EventType `json:"-"`
	ScanID    uuid.UUID `json:"scan_id"`
	Timestamp time.Time `json:"timestamp"`

	// EventHostDiscovered / EventPortFound
	Host       string          `json:"host,omitempty"`
	Port       int             `json:"port,omitempty"`
	State      string          `json:"state,omitempty"` // scantypes.PortState.String(), kept as string to avoid an import cycle
	Method     DiscoveryMethod `json:"method,omitempty"`
	Confidence float64         `json:"confidence,omitempty"` // EventHostDiscovered only, 0..1

	// EventScanProgress
	Completed  uint64     `json:"completed,omitempty"`
	Total      uint64     `json:"total,omitempty"`
	Throughput Throughput `json:"throughput,omitempty"`

	// EventScanPaused
	PauseReason PauseReason `json:"pause_reason,omitempty"`

	// EventScanWarning
	Severity WarningSeverity `json:"severity,omitempty"`
	Message  string          `json:"message,omitempty"`

	// EventScanMetric
	Metric MetricType `json:"metric,omitempty"`
	Value  float64    `json:"value,omitempty"`

	// EventScanStageChanged
	Stage ScanStage `json:"stage,omitempty"`

	// EventScanError / EventValidationError
	Err        string           `json:"error,omitempty"`
	Validation *ValidationError `json:"validation,omitempty"`

	// EventDecoyBatchSent
	DecoyCount int `json:"decoy_count,omitempty"`
	RealIndex  int `json:"real_index,omitempty"`

	// EventRateLimitAdjusted
	NewBatchSize int `json:"new_batch_size,omitempty"`

	// EventBackoffTriggered
	Target string `json:"target,omitempty"`

	// EventEventLogRotated
	RotatedPath string `json:"rotated_path,omitempty"`
}

// MarshalJSON emits Type as its snake_case discriminator string
// instead of the underlying EventType int, per spec §6's wire format
// and Scenario F's literal "type":"scan_started" check.
func (e ScanEvent) MarshalJSON() ([]byte, error) {
	type alias ScanEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{
		Type:  e.Type.String(),
		alias: alias(e),
	})
}

// NewScanID mints a scan correlation ID. Grounded on rs/xid elsewhere
// in the pack for cheap k-sortable IDs, but scan IDs here use
// google/uuid (already a direct teacher dependency via sockstats'
// transitive chain) since events must match a stable external UUID
// format for the persistence layer's foreign keys.
func NewScanID() uuid.UUID {
	return uuid.New()
}

// Validate reports a ValidationError for obviously malformed events,
// supplementing spec §4.10 with events/types.rs's own validation pass.
func (e ScanEvent) Validate() error {
	if e.ScanID == uuid.Nil {
		return ValidationError{Field: "scan_id", Reason: "must not be nil"}
	}
	switch e.Type {
	case EventPortFound, EventHostDiscovered:
		if e.Host == "" {
			return ValidationError{Field: "host", Reason: "required"}
		}
		if e.Type == EventHostDiscovered && (e.Confidence < 0 || e.Confidence > 1) {
			return ValidationError{Field: "confidence", Reason: "must be between 0 and 1"}
		}
	case EventScanProgress:
		if e.Total > 0 && e.Completed > e.Total {
			return ValidationError{Field: "completed", Reason: "exceeds total"}
		}
		if e.Total > 0 {
			pct := float64(e.Completed) / float64(e.Total) * 100
			if pct < 0 || pct > 100 {
				return ValidationError{Field: "percentage", Reason: "out of range"}
			}
		}
	}
	return nil
}
