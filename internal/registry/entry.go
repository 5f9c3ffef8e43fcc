// Package registry is the file-backed directory of live instances and the
// resources they own. Writers rewrite the whole file atomically under a
// process-local lock; readers filter out entries whose heartbeat has gone
// stale. Writers in other processes can race on the same file; entries
// self-heal through the heartbeat/prune cycle, so the registry stays
// best-effort.
package registry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const fieldsPerLine = 9

// Entry is one (instance, resource) registration. Identity is the
// (InstanceID, Title) pair.
type Entry struct {
	Title         string
	Path          string
	InstanceID    string
	Port          int
	Host          string
	PID           int
	RegisteredAt  time.Time
	LastHeartbeat time.Time
	// LastSync is domain bookkeeping preserved across refreshes; zero means
	// never synced and is serialized as an empty field.
	LastSync time.Time
}

// Identity returns the uniqueness key for the entry.
func (e Entry) Identity() string {
	return e.InstanceID + "\x00" + e.Title
}

// encodeLine renders one registry line. Field order is part of the on-disk
// contract shared with every instance on the machine.
func encodeLine(e Entry) string {
	fields := []string{
		sanitize(e.Title),
		sanitize(e.Path),
		sanitize(e.InstanceID),
		strconv.Itoa(e.Port),
		sanitize(e.Host),
		strconv.Itoa(e.PID),
		e.RegisteredAt.UTC().Format(time.RFC3339),
		e.LastHeartbeat.UTC().Format(time.RFC3339),
		formatLastSync(e.LastSync),
	}
	return strings.Join(fields, "|")
}

// decodeLine parses one registry line; comment and blank lines must be
// filtered by the caller.
func decodeLine(line string) (Entry, error) {
	parts := strings.Split(line, "|")
	if len(parts) != fieldsPerLine {
		return Entry{}, fmt.Errorf("registry: line has %d fields, want %d", len(parts), fieldsPerLine)
	}
	port, err := strconv.Atoi(parts[3])
	if err != nil {
		return Entry{}, fmt.Errorf("registry: bad port %q: %w", parts[3], err)
	}
	pid, err := strconv.Atoi(parts[5])
	if err != nil {
		return Entry{}, fmt.Errorf("registry: bad pid %q: %w", parts[5], err)
	}
	registeredAt, err := time.Parse(time.RFC3339, parts[6])
	if err != nil {
		return Entry{}, fmt.Errorf("registry: bad registered_at %q: %w", parts[6], err)
	}
	heartbeat, err := time.Parse(time.RFC3339, parts[7])
	if err != nil {
		return Entry{}, fmt.Errorf("registry: bad heartbeat %q: %w", parts[7], err)
	}
	var lastSync time.Time
	if parts[8] != "" {
		lastSync, err = time.Parse(time.RFC3339, parts[8])
		if err != nil {
			return Entry{}, fmt.Errorf("registry: bad last_sync %q: %w", parts[8], err)
		}
	}
	return Entry{
		Title:         parts[0],
		Path:          parts[1],
		InstanceID:    parts[2],
		Port:          port,
		Host:          parts[4],
		PID:           pid,
		RegisteredAt:  registeredAt,
		LastHeartbeat: heartbeat,
		LastSync:      lastSync,
	}, nil
}

func formatLastSync(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// sanitize keeps free-text fields from breaking the line format.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "|", "/")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}
