package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hostbridge/bridgectl/internal/testutil/testlog"
)

func fixedStore(t *testing.T, staleness time.Duration) (*Store, *time.Time) {
	t.Helper()
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s := NewStore(t.TempDir(), staleness)
	s.now = func() time.Time { return now }
	return s, &now
}

func entry(title, instance string, port int) Entry {
	return Entry{
		Title:      title,
		Path:       "/models/" + title,
		InstanceID: instance,
		Port:       port,
		Host:       "127.0.0.1",
		PID:        4242,
	}
}

func TestRegisterReadAllRoundTrip(t *testing.T) {
	testlog.Start(t)

	s, _ := fixedStore(t, 120*time.Second)
	in := []Entry{
		entry("Doc1", "inst-a", 23717),
		entry("Doc2", "inst-a", 23717),
		entry("Doc1", "inst-b", 23718),
	}
	s.Register(in)

	out := s.ReadAll()
	if len(out) != len(in) {
		t.Fatalf("expected %d entries, got %d", len(in), len(out))
	}
	for _, e := range out {
		if e.Path != "/models/"+e.Title {
			t.Fatalf("path not preserved: %+v", e)
		}
		if e.Port == 0 || e.PID != 4242 || e.Host != "127.0.0.1" {
			t.Fatalf("fields not preserved: %+v", e)
		}
		if e.RegisteredAt.IsZero() || e.LastHeartbeat.IsZero() {
			t.Fatalf("timestamps not stamped: %+v", e)
		}
	}
}

func TestReadAllFiltersStaleAtBoundary(t *testing.T) {
	testlog.Start(t)

	s, now := fixedStore(t, 120*time.Second)
	s.Register([]Entry{entry("Doc1", "inst-a", 23717)})

	*now = now.Add(119 * time.Second)
	if got := len(s.ReadAll()); got != 1 {
		t.Fatalf("entry should be live just inside threshold, got %d", got)
	}

	*now = now.Add(2 * time.Second)
	if got := len(s.ReadAll()); got != 0 {
		t.Fatalf("entry should be stale past threshold, got %d", got)
	}
}

func TestRefreshPreservesLastSyncAndPrunes(t *testing.T) {
	testlog.Start(t)

	s, now := fixedStore(t, 120*time.Second)

	synced := entry("Doc1", "inst-a", 23717)
	synced.LastSync = now.Add(-time.Hour)
	s.Register([]Entry{synced, entry("Dead", "inst-dead", 23799)})

	// The dead instance stops heartbeating; ours refreshes past the
	// staleness threshold.
	*now = now.Add(121 * time.Second)
	s.Refresh([]Entry{entry("Doc1", "inst-a", 23717)})

	out := s.ReadAll()
	if len(out) != 1 {
		t.Fatalf("expected only refreshed entry, got %d", len(out))
	}
	if out[0].InstanceID != "inst-a" {
		t.Fatalf("wrong survivor: %+v", out[0])
	}
	if out[0].LastSync.IsZero() {
		t.Fatalf("last sync not preserved across refresh")
	}
	if !out[0].LastHeartbeat.Equal(*now) {
		t.Fatalf("heartbeat not restamped: %v != %v", out[0].LastHeartbeat, *now)
	}
}

func TestUnregisterRemovesOwnEntriesOnly(t *testing.T) {
	testlog.Start(t)

	s, _ := fixedStore(t, 120*time.Second)
	s.Register([]Entry{
		entry("Doc1", "inst-a", 23717),
		entry("Doc2", "inst-a", 23717),
		entry("Doc1", "inst-b", 23718),
	})
	s.Unregister("inst-a")

	out := s.ReadAll()
	if len(out) != 1 || out[0].InstanceID != "inst-b" {
		t.Fatalf("expected only inst-b to remain, got %+v", out)
	}
}

func TestReadSkipsCommentsAndMalformedLines(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	s := NewStore(dir, 120*time.Second)
	now := time.Now().UTC().Truncate(time.Second)
	good := Entry{
		Title: "Doc1", Path: "/p", InstanceID: "inst-a", Port: 23717,
		Host: "127.0.0.1", PID: 1, RegisteredAt: now, LastHeartbeat: now,
	}
	content := strings.Join([]string{
		"# header comment",
		encodeLine(good),
		"not|a|valid|line",
		"",
	}, "\n")
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatalf("seed registry file: %v", err)
	}

	out := s.ReadAll()
	if len(out) != 1 || out[0].Title != "Doc1" {
		t.Fatalf("expected one decoded entry, got %+v", out)
	}
}

func TestReadMissingFileYieldsEmpty(t *testing.T) {
	testlog.Start(t)

	s := NewStore(filepath.Join(t.TempDir(), "nope"), 120*time.Second)
	if out := s.ReadAll(); len(out) != 0 {
		t.Fatalf("expected empty view, got %+v", out)
	}
}
