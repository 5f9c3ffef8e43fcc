package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const FileName = "bridge.registry"

// Store mediates all access to the registry file for one process. File I/O
// failures are swallowed: a failed read yields an empty view, a failed write
// is logged and dropped.
type Store struct {
	mu        sync.Mutex
	path      string
	staleness time.Duration
	now       func() time.Time
}

func NewStore(dir string, staleness time.Duration) *Store {
	return &Store{
		path:      filepath.Join(dir, FileName),
		staleness: staleness,
		now:       time.Now,
	}
}

// Register stamps and writes the given entries, replacing any previous
// entries with the same identity.
func (s *Store) Register(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	all := s.readLocked()
	for _, e := range entries {
		if e.RegisteredAt.IsZero() {
			e.RegisteredAt = now
		}
		e.LastHeartbeat = now
		all[e.Identity()] = e
	}
	s.writeLocked(all)
}

// Unregister removes every entry owned by the instance.
func (s *Store) Unregister(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.readLocked()
	for key, e := range all {
		if e.InstanceID == instanceID {
			delete(all, key)
		}
	}
	s.writeLocked(all)
}

// ReadAll returns every live entry, sorted by instance then title. Stale
// entries are filtered here so no caller ever observes one.
func (s *Store) ReadAll() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	all := s.readLocked()
	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if now.Sub(e.LastHeartbeat) > s.staleness {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InstanceID != out[j].InstanceID {
			return out[i].InstanceID < out[j].InstanceID
		}
		return out[i].Title < out[j].Title
	})
	return out
}

// Refresh rewrites the instance's own entries with a fresh heartbeat,
// preserving LastSync recorded by previous refreshes, and prunes entries
// from any instance whose heartbeat exceeded the staleness threshold.
func (s *Store) Refresh(own []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	all := s.readLocked()

	for _, e := range own {
		key := e.Identity()
		if prev, ok := all[key]; ok {
			if e.LastSync.IsZero() {
				e.LastSync = prev.LastSync
			}
			if e.RegisteredAt.IsZero() {
				e.RegisteredAt = prev.RegisteredAt
			}
		}
		if e.RegisteredAt.IsZero() {
			e.RegisteredAt = now
		}
		e.LastHeartbeat = now
		all[key] = e
	}

	for key, e := range all {
		if now.Sub(e.LastHeartbeat) > s.staleness {
			delete(all, key)
		}
	}
	s.writeLocked(all)
}

// RunHeartbeat refreshes the instance's entries every interval until ctx is
// done, then unregisters on the way out.
func (s *Store) RunHeartbeat(ctx context.Context, interval time.Duration, instanceID string, own func() []Entry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Refresh(own())
	for {
		select {
		case <-ctx.Done():
			s.Unregister(instanceID)
			return
		case <-ticker.C:
			s.Refresh(own())
		}
	}
}

func (s *Store) readLocked() map[string]Entry {
	out := make(map[string]Entry)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("registry read failed")
		}
		return out
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := decodeLine(line)
		if err != nil {
			log.Warn().Err(err).Msg("registry line skipped")
			continue
		}
		out[e.Identity()] = e
	}
	return out
}

// writeLocked rewrites the whole file atomically via tmp+rename so readers
// never observe a torn file from this process.
func (s *Store) writeLocked(all map[string]Entry) {
	entries := make([]Entry, 0, len(all))
	for _, e := range all {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].InstanceID != entries[j].InstanceID {
			return entries[i].InstanceID < entries[j].InstanceID
		}
		return entries[i].Title < entries[j].Title
	})

	var b strings.Builder
	b.WriteString("# bridgectl instance registry\n")
	b.WriteString("# title|path|instance|port|host|pid|registered_at|last_heartbeat|last_sync\n")
	for _, e := range entries {
		b.WriteString(encodeLine(e))
		b.WriteByte('\n')
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		log.Warn().Err(err).Msg("registry dir create failed")
		return
	}
	tmp := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		log.Warn().Err(err).Str("path", tmp).Msg("registry write failed")
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("registry rename failed")
		_ = os.Remove(tmp)
	}
}
