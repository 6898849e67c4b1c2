package events

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileLoggerWritesHeaderAndEvents(t *testing.T) {
	dir := t.TempDir()
	scanID := NewScanID()
	fl, err := NewFileLogger(dir, scanID, 0, 0)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	if err := fl.Write(ScanEvent{Type: EventScanStarted, ScanID: scanID}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if len(matches) != 1 {
		t.Fatalf("expected exactly one log file, got %v", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty log file")
	}

	lines := splitLines(t, data)
	if len(lines) != 3 {
		t.Fatalf("expected header+event+footer, got %d lines", len(lines))
	}
	if !strings.Contains(lines[0], `"type":"header"`) {
		t.Fatalf("first line missing header marker: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"type":"scan_started"`) {
		t.Fatalf("second line missing scan_started marker: %s", lines[1])
	}
	if !strings.Contains(lines[len(lines)-1], `"type":"footer"`) {
		t.Fatalf("last line missing footer marker: %s", lines[len(lines)-1])
	}
	if !strings.Contains(lines[len(lines)-1], `"scan_id"`) {
		t.Fatalf("footer missing scan_id: %s", lines[len(lines)-1])
	}
}

func splitLines(t *testing.T, data []byte) []string {
	t.Helper()
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestFileLoggerRotatesAndGzips(t *testing.T) {
	dir := t.TempDir()
	scanID := NewScanID()
	fl, err := NewFileLogger(dir, scanID, 1, 0) // maxBytes=1 forces rotation on every write
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	defer fl.Close()

	for i := 0; i < 3; i++ {
		if err := fl.Write(ScanEvent{Type: EventScanProgress, ScanID: scanID, Completed: uint64(i)}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	gzMatches, _ := filepath.Glob(filepath.Join(dir, "*.jsonl.gz"))
	if len(gzMatches) == 0 {
		t.Fatalf("expected at least one rotated gzip file")
	}
}
