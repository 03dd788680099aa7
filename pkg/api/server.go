// Package api serves planning over HTTP, primarily behind API Gateway.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/config"
	"github.com/theory-cloud/stacktheory/pkg/observability"
	"github.com/theory-cloud/stacktheory/pkg/sanitization"
	"github.com/theory-cloud/stacktheory/pkg/state"
	"github.com/theory-cloud/stacktheory/pkg/topology"
)

const (
	codeBadRequest       = "app.bad_request"
	codeNotFound         = "app.not_found"
	codeMethodNotAllowed = "app.method_not_allowed"
	codeInternal         = "app.internal"
)

// maxBodyBytes bounds topology documents accepted over HTTP.
const maxBodyBytes = 1 << 20

// Server routes planning requests.
type Server struct {
	router *router
	cfg    config.Config
	store  state.Store
	logger observability.StructuredLogger
	clock  stacktheory.Clock
	ids    stacktheory.IDGenerator
}

// Option configures a Server.
type Option func(*Server)

// WithStore loads prior state for plans and enables the resources route.
func WithStore(store state.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

func WithLogger(logger observability.StructuredLogger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(clock stacktheory.Clock) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithIDGenerator(ids stacktheory.IDGenerator) Option {
	return func(s *Server) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// NewServer builds a Server planning against cfg.
func NewServer(cfg config.Config, opts ...Option) *Server {
	s := &Server{
		router: &router{},
		cfg:    cfg,
		logger: observability.NewNoOpLogger(),
		clock:  stacktheory.RealClock{},
		ids:    stacktheory.ULIDGenerator{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}

	s.router.add(http.MethodGet, "/healthz", s.health)
	s.router.add(http.MethodGet, "/topologies", s.topologies)
	s.router.add(http.MethodPost, "/plan", s.planDocument)
	s.router.add(http.MethodPost, "/plan/{topology}", s.planBuiltin)
	s.router.add(http.MethodGet, "/stacks/{stack}/resources", s.resources)
	return s
}

// Serve dispatches req and always returns a response.
func (s *Server) Serve(ctx context.Context, req Request) (resp Response) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Headers == nil {
		req.Headers = map[string][]string{}
	}
	requestID := ""
	if ids := req.Headers["x-request-id"]; len(ids) > 0 {
		requestID = ids[0]
	}
	if requestID == "" {
		requestID = s.ids.NewID()
	}
	started := s.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic", map[string]any{"request_id": requestID, "panic": r})
			resp = errorResponse(http.StatusInternalServerError, codeInternal, "internal error", requestID, nil)
		}
		resp.Headers["x-request-id"] = []string{requestID}
		s.logger.Info("request served", map[string]any{
			"request_id":  requestID,
			"method":      req.Method,
			"path":        req.Path,
			"status":      resp.Status,
			"duration_ms": s.clock.Now().Sub(started).Milliseconds(),
		})
		if resp.Status >= http.StatusBadRequest && len(req.Body) > 0 && isJSONRequest(req) {
			s.logger.Debug("rejected request body", map[string]any{
				"request_id": requestID,
				"body":       sanitization.SanitizeJSON(req.Body),
			})
		}
	}()

	match, allowed := s.router.match(req.Method, req.Path)
	if match == nil {
		if len(allowed) > 0 {
			return errorResponse(http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed", requestID,
				map[string][]string{"allow": {formatAllowHeader(allowed)}})
		}
		return errorResponse(http.StatusNotFound, codeNotFound, "not found", requestID, nil)
	}

	rc := &Context{
		ctx:       ctx,
		Request:   req,
		Params:    match.Params,
		RequestID: requestID,
		now:       s.clock.Now,
	}
	out, err := match.Route.Handler(rc)
	if err != nil {
		return s.responseForError(err, requestID)
	}
	return normalizeResponse(out)
}

func (s *Server) responseForError(err error, requestID string) Response {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return errorResponse(apiErr.Status, apiErr.Code, apiErr.Message, requestID, nil)
	}
	if code := stacktheory.ErrorCode(err); code != "" {
		return errorResponse(http.StatusUnprocessableEntity, code, sanitization.SanitizeLogString(err.Error()), requestID, nil)
	}
	s.logger.Error("request failed", map[string]any{"request_id": requestID, "error": err.Error()})
	return errorResponse(http.StatusInternalServerError, codeInternal, "internal error", requestID, nil)
}

func (s *Server) health(_ *Context) (*Response, error) {
	return JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) topologies(_ *Context) (*Response, error) {
	return JSON(http.StatusOK, map[string]any{"topologies": topology.Builtins()})
}

// planDocument plans a YAML or HCL topology posted as the body.
func (s *Server) planDocument(c *Context) (*Response, error) {
	if len(c.Request.Body) == 0 {
		return nil, &Error{Status: http.StatusBadRequest, Code: codeBadRequest, Message: "topology document is required"}
	}
	if len(c.Request.Body) > maxBodyBytes {
		return nil, &Error{Status: http.StatusRequestEntityTooLarge, Code: codeBadRequest, Message: "topology document is too large"}
	}
	cfg, err := s.requestConfig(c)
	if err != nil {
		return nil, err
	}

	var nodes []*stacktheory.Node
	if isHCL(c.Header("content-type")) {
		nodes, err = topology.LoadHCL(c.Request.Body, "request.hcl", cfg)
	} else {
		nodes, err = topology.LoadYAML(bytes.NewReader(c.Request.Body), cfg)
	}
	if err != nil {
		return nil, err
	}
	return s.plan(c, cfg, nodes)
}

// planBuiltin plans a named topology. An optional JSON body overlays config.
func (s *Server) planBuiltin(c *Context) (*Response, error) {
	cfg, err := s.requestConfig(c)
	if err != nil {
		return nil, err
	}
	if len(c.Request.Body) > 0 {
		var overlay map[string]string
		if err := json.Unmarshal(c.Request.Body, &overlay); err != nil {
			return nil, &Error{Status: http.StatusBadRequest, Code: codeBadRequest, Message: "config overlay must be a JSON object of strings"}
		}
		for key, value := range overlay {
			if err := cfg.Set(key, value); err != nil {
				return nil, &Error{Status: http.StatusBadRequest, Code: codeBadRequest, Message: err.Error()}
			}
		}
	}
	nodes, err := topology.Builtin(c.Param("topology"), cfg)
	if err != nil {
		if code := stacktheory.ErrorCode(err); code == "" {
			return nil, &Error{Status: http.StatusNotFound, Code: codeNotFound, Message: err.Error()}
		}
		return nil, err
	}
	return s.plan(c, cfg, nodes)
}

func (s *Server) requestConfig(c *Context) (config.Config, error) {
	cfg := s.cfg
	for _, key := range []string{config.KeyStage, config.KeyTenant} {
		if value := c.Query(key); value != "" {
			if err := cfg.Set(key, value); err != nil {
				return cfg, &Error{Status: http.StatusBadRequest, Code: codeBadRequest, Message: err.Error()}
			}
		}
	}
	return cfg, nil
}

func (s *Server) plan(c *Context, cfg config.Config, nodes []*stacktheory.Node) (*Response, error) {
	stack := cfg.StackName()
	var prior stacktheory.Prior
	if s.store != nil {
		resources, err := s.store.Load(c.Context(), stack)
		if err != nil {
			return nil, err
		}
		prior = state.ToPrior(resources)
	}

	planner := stacktheory.New(
		stacktheory.WithLogger(s.logger.WithField("request_id", c.RequestID)),
		stacktheory.WithClock(s.clock),
		stacktheory.WithIDGenerator(s.ids),
		stacktheory.WithStackName(stack),
	)
	plan, err := planner.Plan(c.Context(), nodes, prior)
	if err != nil {
		return nil, err
	}
	return JSON(http.StatusOK, sanitizePlan(plan))
}

func (s *Server) resources(c *Context) (*Response, error) {
	if s.store == nil {
		return nil, &Error{Status: http.StatusNotFound, Code: codeNotFound, Message: "no state store configured"}
	}
	resources, err := s.store.Load(c.Context(), c.Param("stack"))
	if err != nil {
		return nil, err
	}
	out := make([]state.Resource, 0, len(resources))
	for _, r := range resources {
		r.Properties = sanitization.SanitizeProperties(r.Properties)
		r.Outputs = sanitization.SanitizeProperties(r.Outputs)
		out = append(out, r)
	}
	return JSON(http.StatusOK, map[string]any{
		"stack":      c.Param("stack"),
		"resources":  out,
		"fetched_at": c.Now().UTC().Format(time.RFC3339),
	})
}

// sanitizePlan copies plan with sensitive property values redacted.
func sanitizePlan(plan *stacktheory.Plan) *stacktheory.Plan {
	out := *plan
	out.Operations = make([]stacktheory.ProvisionOperation, len(plan.Operations))
	for i, op := range plan.Operations {
		op.ResolvedProperties = sanitization.SanitizeProperties(op.ResolvedProperties)
		out.Operations[i] = op
	}
	return &out
}

func isHCL(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "hcl") || strings.Contains(contentType, "terraform")
}

func isJSONRequest(req Request) bool {
	values := req.Headers["content-type"]
	return len(values) > 0 && strings.Contains(strings.ToLower(values[0]), "json")
}
