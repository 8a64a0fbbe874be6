package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vaultswap/core"
	"vaultswap/observability"
	"vaultswap/observability/logging"
)

// ServerConfig tunes the JSON-RPC listener.
type ServerConfig struct {
	AuthToken          string
	RateLimitPerMinute int
	Burst              int
	MaxBodyBytes       int64
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	TrustProxyHeaders  bool
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

type method struct {
	module string
	// privileged methods require the bearer token.
	privileged bool
	// throttled methods count against the per-source rate limit. Anything
	// that takes the ledger write lock is throttled.
	throttled bool
	handle    handlerFunc
}

// Server exposes the executor and ledger over JSON-RPC 2.0.
type Server struct {
	exec    *core.Executor
	cfg     ServerConfig
	logger  *slog.Logger
	limiter *sourceLimiter
	methods map[string]method
}

func NewServer(exec *core.Executor, cfg ServerConfig, logger *slog.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		exec:    exec,
		cfg:     cfg,
		logger:  logger,
		limiter: newSourceLimiter(cfg.RateLimitPerMinute, cfg.Burst),
	}
	s.methods = map[string]method{
		"vs_sendTransaction":     {module: "tx", privileged: true, throttled: true, handle: s.handleSendTransaction},
		"vs_simulateTransaction": {module: "tx", throttled: true, handle: s.handleSimulateTransaction},
		"vs_getAccount":          {module: "ledger", handle: s.handleGetAccount},
		"vs_getHolding":          {module: "ledger", handle: s.handleGetHolding},
		"vs_getMint":             {module: "ledger", handle: s.handleGetMint},
		"escrow_getRecord":       {module: "escrow", handle: s.handleEscrowGetRecord},
		"escrow_deriveAddresses": {module: "escrow", handle: s.handleEscrowDeriveAddresses},
	}
	return s
}

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(s.logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/", s.handle)
	return otelhttp.NewHandler(r, "vaultswap.rpc")
}

// MetricsHandler serves the Prometheus registry.
func MetricsHandler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Serve runs handler on addr until ctx is cancelled, then drains in-flight
// requests for up to five seconds.
func Serve(ctx context.Context, addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	w = rec

	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	m, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	defer func() {
		observability.ModuleMetrics().Observe(m.module, req.Method, rec.status, time.Since(start))
	}()

	if m.privileged {
		if authErr := s.requireAuth(r); authErr != nil {
			s.logger.Warn("rpc authentication failed",
				slog.String("requestId", RequestIDFrom(r.Context())),
				slog.String("method", req.Method),
				slog.String("source", s.clientSource(r)),
				slog.String("reason", authErr.Message),
				logging.MaskField("authorization", r.Header.Get("Authorization")))
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	if m.throttled {
		if source := s.clientSource(r); !s.limiter.allow(source) {
			observability.ModuleMetrics().RecordThrottle(m.module, "rate_limit")
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", source)
			return
		}
	}
	m.handle(w, r, req)
}
