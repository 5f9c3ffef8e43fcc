// Package server is the embedded control server: a loopback TLS listener,
// minimal one-shot HTTP framing, bearer-token authentication, and the
// endpoint router. Everything below the router resolves to a response
// envelope; transport failures drop the connection without a response.
package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hostbridge/bridgectl/internal/auth"
	"github.com/hostbridge/bridgectl/internal/bridge"
	"github.com/hostbridge/bridgectl/internal/host"
	"github.com/hostbridge/bridgectl/internal/observability"
	"github.com/hostbridge/bridgectl/internal/protocol/httpwire"
	"github.com/hostbridge/bridgectl/internal/snippet"
)

var ErrPortRangeExhausted = errors.New("server: port range exhausted")

// Options wires the server's collaborators.
type Options struct {
	InstanceName     string
	Validator        auth.Validator
	Bridge           *bridge.Bridge
	Model            *host.Model
	Engine           *snippet.Engine
	DataDir          string
	Certificate      tls.Certificate
	BasePort         int
	PortRange        int
	HandshakeTimeout time.Duration
	Limits           httpwire.Limits
}

// Server owns the listener and serves one request per accepted connection.
type Server struct {
	opts      Options
	tlsConfig *tls.Config
	ln        net.Listener
	port      int
}

func New(opts Options) *Server {
	if opts.Limits.MaxBodyBytes == 0 {
		opts.Limits = httpwire.DefaultLimits()
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.Engine == nil {
		opts.Engine = snippet.NewEngine()
	}
	return &Server{
		opts: opts,
		tlsConfig: &tls.Config{
			Certificates: []tls.Certificate{opts.Certificate},
			MinVersion:   tls.VersionTLS12,
		},
	}
}

// Listen probes the configured port range sequentially on loopback and
// binds the first free port. Startup fails when the range is exhausted.
func (s *Server) Listen() error {
	for port := s.opts.BasePort; port < s.opts.BasePort+s.opts.PortRange; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		s.ln = ln
		s.port = port
		log.Info().Int("port", port).Str("instance", s.opts.InstanceName).Msg("control listener bound")
		return nil
	}
	return fmt.Errorf("%w: %d..%d", ErrPortRangeExhausted,
		s.opts.BasePort, s.opts.BasePort+s.opts.PortRange-1)
}

// Port returns the bound port; valid after Listen.
func (s *Server) Port() int {
	return s.port
}

// Serve accepts connections until ctx is done, handling each on its own
// goroutine. It closes the listener on the way out.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("accept failed")
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn performs the TLS handshake under its own timeout, frames one
// request, routes it, and writes one response. Any failure before a request
// is fully parsed drops the connection silently.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	observability.ConnAccepted()
	succeeded := false
	defer func() {
		observability.ConnClosed(succeeded)
		_ = conn.Close()
	}()

	tlsConn := tls.Server(conn, s.tlsConfig)
	hsCtx, cancel := context.WithTimeout(ctx, s.opts.HandshakeTimeout)
	err := tlsConn.HandshakeContext(hsCtx)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("tls handshake failed")
		return
	}

	_ = tlsConn.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout))
	req, err := httpwire.ReadRequest(bufio.NewReader(tlsConn), s.opts.Limits)
	if err != nil {
		log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("malformed request dropped")
		return
	}
	_ = tlsConn.SetReadDeadline(time.Time{})

	start := time.Now()
	status, result := s.route(req)
	body := encodeEnvelope(result)

	_ = tlsConn.SetWriteDeadline(time.Now().Add(s.opts.HandshakeTimeout))
	if err := httpwire.WriteResponse(tlsConn, status, body); err != nil {
		log.Warn().Err(err).Msg("response write failed")
		return
	}
	succeeded = true

	observability.RecordRequest(s.opts.InstanceName, req.Path, status, time.Since(start))
	log.Info().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", status).
		Dur("duration", time.Since(start)).
		Msg("control_request")
}
