package token

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hostbridge/bridgectl/internal/testutil/testlog"
)

func TestLoadGeneratesOnceAndReuses(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	first, err := Load(dir)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if len(first) != 2*secretLen {
		t.Fatalf("expected %d hex chars, got %q", 2*secretLen, first)
	}

	second, err := Load(dir)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if second != first {
		t.Fatalf("token changed between loads: %q != %q", second, first)
	}

	info, err := os.Stat(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != filePerms {
		t.Fatalf("token file mode = %v", info.Mode().Perm())
	}
}

func TestLoadTrimsStoredToken(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("  abc123\n\n"), filePerms); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tok, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tok != "abc123" {
		t.Fatalf("expected trimmed token, got %q", tok)
	}
}

func TestLoadRegeneratesEmptyFile(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("\n"), filePerms); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tok, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tok == "" {
		t.Fatalf("expected fresh token for empty file")
	}
}
