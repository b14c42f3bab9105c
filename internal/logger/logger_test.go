package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slippy.log")
	log, err := New("warn", path)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hidden")
	log.Warn("tile failed")
	log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %q", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["msg"] != "tile failed" || entry["level"] != "warn" {
		t.Fatalf("entry %v", entry)
	}
	if ts, _ := entry["ts"].(string); !strings.Contains(ts, "T") {
		t.Fatalf("timestamp %v is not ISO8601", entry["ts"])
	}
}
