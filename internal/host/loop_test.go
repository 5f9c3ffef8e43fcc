package host

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hostbridge/bridgectl/internal/bridge"
	"github.com/hostbridge/bridgectl/internal/protocol"
	"github.com/hostbridge/bridgectl/internal/testutil/testlog"
)

func TestLoopDrainsBridgeOnSignal(t *testing.T) {
	testlog.Start(t)

	var loop *Loop
	b := bridge.New(4, 2*time.Second, func() { loop.Signal() })
	loop = NewLoop(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	for i := 0; i < 3; i++ {
		result, err := b.Submit(ctx, func(context.Context) protocol.WorkResult {
			return protocol.OK("ran")
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if !result.Success {
			t.Fatalf("submit %d failed: %+v", i, result)
		}
	}
	if got := b.Dispatched(); got != 3 {
		t.Fatalf("expected 3 dispatches, got %d", got)
	}
}

func TestCaptureWritesRelativeArtifact(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	rel, err := Capture(dir)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if filepath.IsAbs(rel) || !strings.HasPrefix(rel, "captures") {
		t.Fatalf("expected path relative to data dir, got %q", rel)
	}
	if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
}
