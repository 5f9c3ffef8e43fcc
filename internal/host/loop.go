package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hostbridge/bridgectl/internal/bridge"
)

// Loop is the demo stand-in for the host application's dispatch mechanism:
// one goroutine plays the single logical execution thread and drains the
// bridge when signalled. Real embeddings wire Signal into their own
// idle/dispatch hook and call RunNext from their UI thread.
type Loop struct {
	bridge *bridge.Bridge
	wake   chan struct{}
}

func NewLoop(b *bridge.Bridge) *Loop {
	return &Loop{
		bridge: b,
		wake:   make(chan struct{}, 1),
	}
}

// Signal never blocks; coalescing wake-ups is fine because Run drains the
// whole queue each pass.
func (l *Loop) Signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run occupies the calling goroutine as the host thread until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	log.Debug().Msg("host loop started")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("host loop stopped")
			return
		case <-l.wake:
			for l.bridge.RunNext(ctx) {
			}
		}
	}
}

// Capture writes a timestamped artifact file under dir and returns its path
// relative to dir. The demo artifact records what a real embedding would
// screenshot.
func Capture(dir string) (string, error) {
	name := fmt.Sprintf("capture-%s.txt", time.Now().UTC().Format("20060102-150405.000"))
	sub := filepath.Join(dir, "captures")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return "", fmt.Errorf("host: capture dir: %w", err)
	}
	path := filepath.Join(sub, name)
	body := fmt.Sprintf("captured at %s\n", time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("host: capture write: %w", err)
	}
	return filepath.Join("captures", name), nil
}
