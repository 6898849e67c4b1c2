package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// protocolVersion is the event-log wire-format version stamped into
// every header, per spec §6. scannerVersion is this build's software
// version; spec.md's header example literally repeats a "version"
// key for both concepts, which isn't valid JSON (duplicate keys) — so
// this implementation keeps the wire-format version under "version"
// and names the build string "scanner_version".
const protocolVersion = "1.0"

var scannerVersion = "dev"

// header/footer records bracket a JSON-lines event log file, grounded
// on event_logger.rs's header/footer framing and aligned to spec §6's
// literal field names: "type", unix-second "start_time"/"end_time",
// and the footer's "scan_id".
type logHeader struct {
	Type           string    `json:"type"`
	Version        string    `json:"version"`
	ScanID         uuid.UUID `json:"scan_id"`
	StartTime      int64     `json:"start_time"`
	ScannerVersion string    `json:"scanner_version"`
}

type logFooter struct {
	Type       string    `json:"type"`
	ScanID     uuid.UUID `json:"scan_id"`
	EndTime    int64     `json:"end_time"`
	EventCount int       `json:"event_count"`
}

// FileLogger appends every event passed to Write as a JSON line (it
// holds no Bus subscription of its own; the caller subscribes and
// forwards events), rotating to a new file once the current one exceeds
// MaxBytes, gzip-compressing the rotated-out file under a
// <scan_id>-<suffix>.jsonl.gz name (suffix from rs/xid, per
// SPEC_FULL.md §B), and deleting rotated files older than Retention.
type FileLogger struct {
	dir       string
	scanID    uuid.UUID
	maxBytes  int64
	retention time.Duration
	log       *logrus.Entry

	mu         sync.Mutex
	f          *os.File
	enc        *json.Encoder
	written    int64
	eventCount int
}

// NewFileLogger creates (or truncates) the live log file
// <dir>/<scanID>.jsonl, per spec §6's event-log location.
func NewFileLogger(dir string, scanID uuid.UUID, maxBytes int64, retention time.Duration) (*FileLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("events: mkdir %s: %w", dir, err)
	}
	fl := &FileLogger{
		dir: dir, scanID: scanID, maxBytes: maxBytes, retention: retention,
		log: logrus.WithField("component", "event_logger"),
	}
	if err := fl.openNext(); err != nil {
		return nil, err
	}
	return fl, nil
}

// livePath is the active, not-yet-rotated log file for this scan.
func (fl *FileLogger) livePath() string {
	return filepath.Join(fl.dir, fl.scanID.String()+".jsonl")
}

func (fl *FileLogger) openNext() error {
	path := fl.livePath()
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("events: create %s: %w", path, err)
	}
	fl.f = f
	fl.enc = json.NewEncoder(f)
	fl.written = 0
	fl.eventCount = 0
	return fl.enc.Encode(logHeader{
		Type:           "header",
		Version:        protocolVersion,
		ScanID:         fl.scanID,
		StartTime:      time.Now().Unix(),
		ScannerVersion: scannerVersion,
	})
}

// Write appends one event, rotating first if the current file has
// grown past maxBytes.
func (fl *FileLogger) Write(e ScanEvent) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.maxBytes > 0 && fl.written >= fl.maxBytes {
		if err := fl.rotateLocked(); err != nil {
			return err
		}
	}
	before := fl.written
	if err := fl.enc.Encode(e); err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	info, err := fl.f.Stat()
	if err == nil {
		fl.written = info.Size()
	} else {
		fl.written = before + 1
	}
	fl.eventCount++
	return nil
}

// rotateLocked closes and renames the live file to
// <scan_id>-<xid>.jsonl, gzips it to .jsonl.gz, sweeps stale rotated
// files, then reopens a fresh live file.
func (fl *FileLogger) rotateLocked() error {
	if err := fl.closeCurrentLocked(); err != nil {
		return err
	}
	rotatedPath := filepath.Join(fl.dir, fmt.Sprintf("%s-%s.jsonl", fl.scanID.String(), xid.New().String()))
	if err := os.Rename(fl.livePath(), rotatedPath); err != nil {
		return fmt.Errorf("events: rename for rotation: %w", err)
	}
	if err := gzipFile(rotatedPath); err != nil {
		fl.log.WithError(err).WithField("path", rotatedPath).Warn("failed to gzip rotated event log")
	}
	fl.cleanupOld()
	return fl.openNext()
}

func (fl *FileLogger) closeCurrentLocked() error {
	if fl.f == nil {
		return nil
	}
	footer := logFooter{Type: "footer", ScanID: fl.scanID, EndTime: time.Now().Unix(), EventCount: fl.eventCount}
	if err := fl.enc.Encode(footer); err != nil {
		return err
	}
	return fl.f.Close()
}

// Close finalizes the current log file with its footer.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.closeCurrentLocked()
}

func gzipFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer out.Close()
	gw := gzip.NewWriter(out)
	if _, err := copyAll(gw, in); err != nil {
		gw.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

func copyAll(dst *gzip.Writer, src *os.File) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
}

// cleanupOld deletes rotated (.gz) log files in dir older than
// Retention, matching event_logger.rs's retention sweep.
func (fl *FileLogger) cleanupOld() {
	if fl.retention <= 0 {
		return
	}
	entries, err := os.ReadDir(fl.dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-fl.retention)
	var stale []string
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".gz" {
			continue
		}
		info, err := ent.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		stale = append(stale, filepath.Join(fl.dir, ent.Name()))
	}
	sort.Strings(stale)
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			fl.log.WithError(err).WithField("path", path).Warn("failed to remove stale event log")
		}
	}
}
