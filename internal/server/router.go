package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hostbridge/bridgectl/internal/auth"
	"github.com/hostbridge/bridgectl/internal/host"
	"github.com/hostbridge/bridgectl/internal/protocol"
	"github.com/hostbridge/bridgectl/internal/protocol/httpwire"
)

// Endpoint paths. Queries route by the /query/<domain>/<op> suffix.
const (
	PathSnippetExec = "/snippet-exec"
	PathCapture     = "/capture"
	queryPrefix     = "/query/"

	DomainFamilyTypes = "familytypes"
	DomainCategories  = "categories"
	DomainWorksets    = "worksets"

	OpCounts   = "counts"
	OpElements = "elements"
)

// queryRequest is the JSON body shared by the predefined query endpoints.
type queryRequest struct {
	Resource string               `json:"resource"`
	Filters  []host.ElementFilter `json:"filters,omitempty"`
}

// route authenticates and dispatches one parsed request, always returning a
// status plus a fully populated envelope. Panics from handlers surface as
// failure envelopes, never to the listener.
func (s *Server) route(req httpwire.Request) (status int, result protocol.WorkResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("path", req.Path).Msg("handler panic")
			status = http.StatusBadRequest
			result = protocol.Failuref("handler panic: %v", r)
		}
	}()

	if err := s.opts.Validator.Validate(auth.ExtractToken(req)); err != nil {
		if errors.Is(err, auth.ErrMisconfigured) {
			return http.StatusInternalServerError, protocol.Failure("server token not configured")
		}
		return http.StatusUnauthorized, protocol.Failure("invalid or missing auth token")
	}

	switch {
	case req.Path == PathSnippetExec:
		return s.handleSnippet(req)
	case req.Path == PathCapture:
		return s.handleCapture()
	case strings.HasPrefix(req.Path, queryPrefix):
		return s.handleQuery(req)
	default:
		return http.StatusNotFound, protocol.Failuref("unknown endpoint %q", req.Path)
	}
}

// handleSnippet compiles first; only a clean compile reaches the bridge.
func (s *Server) handleSnippet(req httpwire.Request) (int, protocol.WorkResult) {
	compiled, diags := s.opts.Engine.Compile(string(req.Body))
	if compiled == nil {
		return http.StatusBadRequest, protocol.CompileFailure(diags)
	}

	result, err := s.opts.Bridge.Submit(context.Background(), compiled.Run)
	if err != nil {
		return http.StatusBadRequest, protocol.Failuref("snippet not queued: %v", err)
	}
	result.Diagnostics = append(diags, result.Diagnostics...)
	return statusFor(result), result
}

// handleCapture produces an artifact without touching the live model, so it
// bypasses the bridge.
func (s *Server) handleCapture() (int, protocol.WorkResult) {
	rel, err := host.Capture(s.opts.DataDir)
	if err != nil {
		return http.StatusBadRequest, protocol.Failuref("capture failed: %v", err)
	}
	return http.StatusOK, protocol.OK(rel)
}

// handleQuery parses /query/<domain>/<op> plus the JSON body and runs the
// model read on the host thread through the bridge.
func (s *Server) handleQuery(req httpwire.Request) (int, protocol.WorkResult) {
	rest := strings.TrimPrefix(req.Path, queryPrefix)
	domain, op, ok := strings.Cut(rest, "/")
	if !ok || !validQuery(domain, op) {
		return http.StatusNotFound, protocol.Failuref("unknown endpoint %q", req.Path)
	}

	var q queryRequest
	if err := json.Unmarshal(req.Body, &q); err != nil {
		return http.StatusBadRequest, protocol.Failuref("bad query body: %v", err)
	}
	if strings.TrimSpace(q.Resource) == "" {
		return http.StatusBadRequest, protocol.Failure("query body missing resource")
	}

	result, err := s.opts.Bridge.Submit(context.Background(), func(ctx context.Context) protocol.WorkResult {
		return runQuery(s.opts.Model, domain, op, q)
	})
	if err != nil {
		return http.StatusBadRequest, protocol.Failuref("query not queued: %v", err)
	}
	return statusFor(result), result
}

func validQuery(domain, op string) bool {
	switch domain {
	case DomainFamilyTypes, DomainCategories, DomainWorksets:
	default:
		return false
	}
	switch op {
	case OpCounts, OpElements:
		return true
	}
	return false
}

// runQuery executes on the host thread and renders the record lines.
func runQuery(model *host.Model, domain, op string, q queryRequest) protocol.WorkResult {
	var records []protocol.Record
	found := true

	switch {
	case domain == DomainFamilyTypes && op == OpCounts:
		counts, ok := model.FamilyTypeCounts(q.Resource)
		found = ok
		for _, c := range counts {
			records = append(records, protocol.FamilyTypeRecord(c.Category, c.Family, c.Type, c.Count))
		}
	case domain == DomainFamilyTypes && op == OpElements,
		domain == DomainCategories && op == OpElements,
		domain == DomainWorksets && op == OpElements:
		elements, ok := model.Elements(q.Resource, q.Filters)
		found = ok
		for _, e := range elements {
			records = append(records, protocol.ElementRecord(e.Category, e.Family, e.Type, e.UniqueID, e.NumericID))
		}
	case domain == DomainCategories && op == OpCounts:
		counts, ok := model.CategoryCounts(q.Resource)
		found = ok
		for _, c := range counts {
			records = append(records, protocol.CategoryRecord(c.Category, c.Count))
		}
	case domain == DomainWorksets && op == OpCounts:
		worksets, ok := model.Worksets(q.Resource)
		found = ok
		for _, w := range worksets {
			records = append(records, protocol.WorksetRecord(w.Name, w.Kind, w.ElementCount))
		}
	}

	if !found {
		return protocol.Failuref("resource %q not open on this instance", q.Resource)
	}
	return protocol.OK(protocol.FormatRecords(records))
}

func statusFor(result protocol.WorkResult) int {
	if result.Success {
		return http.StatusOK
	}
	return http.StatusBadRequest
}

func encodeEnvelope(result protocol.WorkResult) []byte {
	body, err := json.Marshal(result)
	if err != nil {
		// WorkResult marshalling cannot realistically fail; keep the
		// envelope contract anyway.
		body = []byte(fmt.Sprintf(`{"success":false,"output":"","error":%q}`, err.Error()))
	}
	return body
}
