// Package remote fans a query out to every live peer instance found in the
// registry, bounded in parallelism, and folds the line-oriented results.
// One peer failing or timing out never aborts its siblings; failures come
// back as per-peer errors alongside the partial results.
//
// Peers present self-signed certificates, so the dialer skips chain
// verification and relies on the shared bearer token as the perimeter for
// this loopback/LAN control plane.
package remote

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hostbridge/bridgectl/internal/observability"
	"github.com/hostbridge/bridgectl/internal/protocol"
	"github.com/hostbridge/bridgectl/internal/protocol/httpwire"
	"github.com/hostbridge/bridgectl/internal/registry"
)

// LocalServe answers a request in-process for peers that belong to this
// instance, avoiding a network round trip to ourselves.
type LocalServe func(entry registry.Entry, path string, body []byte) protocol.WorkResult

// FoldFunc receives each successful peer's parsed records. Calls are
// serialized by the client.
type FoldFunc func(entry registry.Entry, records []protocol.Record)

// PeerError reports one failed peer without affecting the others.
type PeerError struct {
	InstanceID string
	Title      string
	Addr       string
	Err        error
}

func (e PeerError) Error() string {
	return fmt.Sprintf("peer %s (%s at %s): %v", e.InstanceID, e.Title, e.Addr, e.Err)
}

// Options configures the fan-out.
type Options struct {
	Token          string
	SelfInstanceID string
	Parallelism    int
	Timeout        time.Duration
	Limits         httpwire.Limits
	Local          LocalServe
}

// Client reads peers from the registry and issues one bounded-concurrency
// request per live (instance, resource) entry.
type Client struct {
	reg  *registry.Store
	opts Options
}

func New(reg *registry.Store, opts Options) *Client {
	if opts.Parallelism < 1 {
		opts.Parallelism = 8
	}
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Limits.MaxBodyBytes == 0 {
		opts.Limits = httpwire.DefaultLimits()
	}
	return &Client{reg: reg, opts: opts}
}

// FanOut sends POST path to every live registry entry, building each body
// with bodyFor, and folds successful record sets. It returns per-peer
// errors; the error list and the folded results are independent.
func (c *Client) FanOut(ctx context.Context, path string, bodyFor func(registry.Entry) []byte, fold FoldFunc) []PeerError {
	entries := c.reg.ReadAll()

	var (
		mu       sync.Mutex
		failures []PeerError
	)
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(c.opts.Parallelism)

	for _, entry := range entries {
		entry := entry
		group.Go(func() error {
			records, err := c.queryOne(ctx, entry, path, bodyFor(entry))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, PeerError{
					InstanceID: entry.InstanceID,
					Title:      entry.Title,
					Addr:       peerAddr(entry),
					Err:        err,
				})
				return nil
			}
			if fold != nil {
				fold(entry, records)
			}
			return nil
		})
	}
	_ = group.Wait()
	return failures
}

// QueryCounts fans out a counts query for the given domain across every
// live resource.
func (c *Client) QueryCounts(ctx context.Context, domain string, fold FoldFunc) []PeerError {
	path := "/query/" + domain + "/counts"
	return c.FanOut(ctx, path, countsBody, fold)
}

// QueryElements fans out an elements query with the given filters.
func (c *Client) QueryElements(ctx context.Context, domain string, filters []json.RawMessage, fold FoldFunc) []PeerError {
	path := "/query/" + domain + "/elements"
	return c.FanOut(ctx, path, func(entry registry.Entry) []byte {
		body, _ := json.Marshal(map[string]any{
			"resource": entry.Title,
			"filters":  filters,
		})
		return body
	}, fold)
}

func countsBody(entry registry.Entry) []byte {
	body, _ := json.Marshal(map[string]string{"resource": entry.Title})
	return body
}

// queryOne serves same-instance entries in-process and everything else over
// one TLS connection with the per-peer timeout.
func (c *Client) queryOne(ctx context.Context, entry registry.Entry, path string, body []byte) ([]protocol.Record, error) {
	start := time.Now()

	var result protocol.WorkResult
	if entry.InstanceID == c.opts.SelfInstanceID && c.opts.Local != nil {
		result = c.opts.Local(entry, path, body)
	} else {
		var err error
		result, err = c.dialAndExchange(ctx, entry, path, body)
		if err != nil {
			observability.RecordPeerQuery(entry.InstanceID, false, time.Since(start))
			return nil, err
		}
	}

	if !result.Success {
		observability.RecordPeerQuery(entry.InstanceID, false, time.Since(start))
		return nil, fmt.Errorf("peer reported failure: %s", result.Error)
	}
	records, err := protocol.ParseRecords(result.Output)
	if err != nil {
		observability.RecordPeerQuery(entry.InstanceID, false, time.Since(start))
		return nil, fmt.Errorf("unparseable peer output: %w", err)
	}
	observability.RecordPeerQuery(entry.InstanceID, true, time.Since(start))
	return records, nil
}

func (c *Client) dialAndExchange(ctx context.Context, entry registry.Entry, path string, body []byte) (protocol.WorkResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	dialer := tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: true,
			MinVersion:         tls.VersionTLS12,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", peerAddr(entry))
	if err != nil {
		return protocol.WorkResult{}, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if ok {
		_ = conn.SetDeadline(deadline)
	}

	header := map[string]string{
		"X-Auth-Token": c.opts.Token,
		"Content-Type": "application/json",
	}
	if err := httpwire.WriteRequest(conn, http.MethodPost, path, header, body); err != nil {
		return protocol.WorkResult{}, fmt.Errorf("write: %w", err)
	}

	resp, err := httpwire.ReadResponse(bufio.NewReader(conn), c.opts.Limits)
	if err != nil {
		return protocol.WorkResult{}, fmt.Errorf("read: %w", err)
	}
	var result protocol.WorkResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return protocol.WorkResult{}, fmt.Errorf("bad envelope (status %d): %w", resp.Status, err)
	}
	if resp.Status == http.StatusUnauthorized {
		return protocol.WorkResult{}, fmt.Errorf("peer rejected token")
	}
	log.Debug().
		Str("peer", entry.InstanceID).
		Str("path", path).
		Int("status", resp.Status).
		Msg("peer_query")
	return result, nil
}

func peerAddr(entry registry.Entry) string {
	host := entry.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, entry.Port)
}
