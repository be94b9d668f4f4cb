package marker

import (
	"encoding/json"
	"log/slog"
	"os"
)

// Marker is the startup record the managed service writes once its own
// initialization finishes. The service owns the file; the controller only
// reads it, and deletes it before each launch and on stop so a record from a
// previous run can never be mistaken for the current one. It is authoritative
// only when PID matches the pid the controller just spawned.
type Marker struct {
	PID  int `json:"pid"`
	Port int `json:"port"`
}

// Read parses the marker file. Errors include mid-write partial content;
// callers retry on the next poll tick rather than failing.
func Read(path string) (Marker, error) {
	var m Marker
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return Marker{}, err
	}
	return m, nil
}

// Remove deletes the marker best-effort.
func Remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("marker remove failed", "path", path, "error", err)
	}
}
