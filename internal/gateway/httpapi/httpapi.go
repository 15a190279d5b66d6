// Package httpapi implements the HTTP gateway for the co-pilot.
//
// Security:
//   - API key authentication on every /v1 request (constant-time comparison)
//   - Request body size limits (default 1 MB)
//   - Per-user rate limiting via token bucket
//   - All requests logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/docuease/copilot/internal/audit"
	"github.com/docuease/copilot/internal/chat"
	"github.com/docuease/copilot/internal/observability"
	"github.com/docuease/copilot/internal/orchestrator"
	"github.com/docuease/copilot/internal/pending"
	"github.com/docuease/copilot/internal/ratelimit"
	"github.com/docuease/copilot/internal/workflow"
	"github.com/jkaninda/okapi"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Config configures the HTTP gateway.
type Config struct {
	ListenAddr     string // e.g., ":8080"
	EnableDocs     bool
	APIKeys        map[string]string // API key → user ID mapping. Keys from env.
	MaxRequestSize int64             // Maximum request body in bytes. 0 = 1 MB default.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP gateway. The orchestrator handles every tool
// invocation; the optional collaborators enable their route groups when
// attached.
type Gateway struct {
	config  Config
	orch    *orchestrator.Orchestrator
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	server  *http.Server

	audits    audit.Store       // nil = audit query endpoint disabled.
	chats     *chat.Service     // nil = chat endpoint disabled.
	workflows *workflow.Service // nil = management endpoint disabled.
	pendings  pending.Store     // nil = operations endpoint disabled.

	okapi *okapi.Okapi
	group *okapi.Group
}

// NewGateway creates an HTTP gateway over the orchestrator.
func NewGateway(cfg Config, orch *orchestrator.Orchestrator, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	return &Gateway{
		config:  cfg,
		orch:    orch,
		limiter: rl,
		logger:  logger,
		okapi:   okapi.New(okapi.WithMaxMultipartMemory(defaultMaxRequestSize)),
	}
}

// WithAudit attaches the audit query endpoint.
func (g *Gateway) WithAudit(store audit.Store) *Gateway {
	g.audits = store
	return g
}

// WithChat attaches the chat assistant endpoint.
func (g *Gateway) WithChat(svc *chat.Service) *Gateway {
	g.chats = svc
	return g
}

// WithWorkflows attaches the patient-management endpoint.
func (g *Gateway) WithWorkflows(svc *workflow.Service) *Gateway {
	g.workflows = svc
	return g
}

// WithPendingStore attaches the pending-operation inspection endpoints.
func (g *Gateway) WithPendingStore(store pending.Store) *Gateway {
	g.pendings = store
	return g
}

func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "EMR Co-Pilot",
			Version: "v0.1.0",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Authenticated /v1 group. Metrics/tracing middleware runs before
	// authentication so denied requests are counted too.
	middlewares := []okapi.Middleware{g.authenticate}
	if g.config.Metrics != nil || g.config.Tracer != nil {
		middlewares = append(
			[]okapi.Middleware{observability.MetricsMiddleware(g.config.Metrics, g.config.Tracer)},
			middlewares...,
		)
	}
	g.group = g.okapi.Group("/v1", middlewares...)

	g.group.Post("/agent/tools", g.handleToolInvocation,
		okapi.DocSummary("Invoke a clinical tool through the confirmation protocol"),
		okapi.DocTags("Tools"),
		okapi.DocRequestBody(orchestrator.Request{}),
		okapi.DocResponse(orchestrator.Response{}),
		okapi.DocResponse(http.StatusBadRequest, orchestrator.Response{}),
		okapi.DocResponse(http.StatusForbidden, orchestrator.Response{}),
		okapi.DocResponse(http.StatusConflict, orchestrator.Response{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Get("/healthz", g.handleHealth,
		okapi.DocSummary("Authenticated health check"),
		okapi.DocTags("Health"),
		okapi.DocResponse(HealthResponse{}),
	)

	if g.audits != nil {
		g.group.Get("/audit", g.handleAuditQuery,
			okapi.DocSummary("Query the audit trail, newest first"),
			okapi.DocTags("Audit"),
			okapi.DocResponse(AuditQueryResponse{}),
			okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		)
	}

	if g.chats != nil {
		g.group.Post("/chat", g.handleChat,
			okapi.DocSummary("Chat with the clinical assistant"),
			okapi.DocTags("Chat"),
			okapi.DocRequestBody(chat.Request{}),
			okapi.DocResponse(chat.Completion{}),
			okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		)
	}

	if g.workflows != nil {
		g.group.Post("/patients/{id}/management", g.handleManagement,
			okapi.DocSummary("Run a patient-management workflow action"),
			okapi.DocTags("Workflows"),
			okapi.DocPathParam("id", "string", "Patient ID"),
			okapi.DocRequestBody(ManagementRequest{}),
			okapi.DocResponse(workflow.Outcome{}),
			okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
			okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		)
	}

	if g.pendings != nil {
		g.group.Get("/operations/{id}", g.handleOperationGet,
			okapi.DocSummary("Inspect a pending operation"),
			okapi.DocTags("Operations"),
			okapi.DocPathParam("id", "string", "Pending operation ID"),
			okapi.DocResponse(OperationResponse{}),
			okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		)
		g.group.Post("/operations/{id}/reject", g.handleOperationReject,
			okapi.DocSummary("Reject a pending operation"),
			okapi.DocTags("Operations"),
			okapi.DocPathParam("id", "string", "Pending operation ID"),
			okapi.DocResponse(OperationResponse{}),
			okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
			okapi.DocResponse(http.StatusConflict, ErrorBody{}),
		)
	}

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http gateway starting", slog.String("addr", g.config.ListenAddr))

	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(_ context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// HealthResponse is the JSON response for the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleHealth(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleLiveness is the Kubernetes liveness probe.
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate validates the API key and stores the mapped user ID on the
// request context.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		userID := ""
		for key, mapped := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				userID = mapped
			}
		}
		if userID == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("userID", userID)
		return next(c)
	}
}

// rateLimit applies the per-user token bucket. Returns a non-nil response
// error when the caller is over budget.
func (g *Gateway) rateLimit(c *okapi.Context, userID string) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Allow(userID); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}
	return nil
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
