package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"finadvisor/internal/domain"
	"finadvisor/internal/infra/config"
	"finadvisor/internal/infra/logger"
	"finadvisor/internal/infra/middleware"
)

// Caller-facing error strings.
const (
	errNotConfigured = "OpenAI API key not configured"
	errGeneric       = "Failed to get response from AI"
)

// Replier answers a chat exchange.
type Replier interface {
	Configured() bool
	Reply(ctx context.Context, msgs []domain.Message) (string, error)
}

// HTTPChannel serves the chat API.
type HTTPChannel struct {
	cfg     config.ServerConfig
	replier Replier
	logger  *slog.Logger
	ids     *middleware.IDGenerator

	server    *http.Server
	boundAddr string

	// Lifecycle of the rate limiter cleanup goroutine.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHTTPChannel creates an HTTP channel serving replier.
func NewHTTPChannel(cfg config.ServerConfig, replier Replier, logger *slog.Logger) *HTTPChannel {
	return &HTTPChannel{
		cfg:     cfg,
		replier: replier,
		logger:  logger,
		ids:     middleware.NewIDGenerator(),
	}
}

// Handler builds the full middleware chain. ctx bounds the rate limiter's
// background cleanup.
func (h *HTTPChannel) Handler(ctx context.Context) http.Handler {
	var chat http.Handler = http.HandlerFunc(h.handleChat)
	if h.cfg.RateLimit.Enabled {
		chat = middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerMin: h.cfg.RateLimit.RequestsPerMin,
			BurstSize:      h.cfg.RateLimit.Burst,
			TrustedProxies: h.cfg.RateLimit.TrustedProxies,
		})(chat)
	}

	mux := http.NewServeMux()
	mux.Handle(h.cfg.ChatPath, chat)
	mux.HandleFunc("/api/health", h.handleHealth)

	return middleware.RequestID(h.ids)(
		middleware.AccessLog(h.logger)(
			middleware.SecurityHeaders(mux),
		),
	)
}

// Start begins serving. Non-blocking.
func (h *HTTPChannel) Start(ctx context.Context) error {
	h.ctx, h.cancel = context.WithCancel(ctx)

	h.server = &http.Server{
		Addr:              h.cfg.Addr,
		Handler:           h.Handler(h.ctx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       h.cfg.ReadTimeout,
		WriteTimeout:      h.cfg.WriteTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		h.cancel()
		return fmt.Errorf("listen %s: %w", h.cfg.Addr, err)
	}
	h.boundAddr = ln.Addr().String()

	go func() {
		h.logger.Info("http channel started", "addr", h.boundAddr, "chat_path", h.cfg.ChatPath)
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address once started.
func (h *HTTPChannel) Addr() string { return h.boundAddr }

// Stop gracefully shuts down the server.
func (h *HTTPChannel) Stop(ctx context.Context) error {
	if h.cancel != nil {
		h.cancel()
	}
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HTTPChannel) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, domain.ErrorResponse{Error: "Method not allowed"})
		return
	}
	ctx := r.Context()

	// The credential check comes before the body is read.
	if !h.replier.Configured() {
		h.fail(w, r, domain.NewDomainError("HTTPChannel.Chat", domain.ErrConfig, ""))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, domain.NewDomainError("HTTPChannel.Chat", domain.ErrInvalidInput, err.Error()))
		return
	}

	reply, err := h.replier.Reply(ctx, req.Messages)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ChatResponse{Content: reply})
}

// fail is the single error boundary: the raw error is logged once and the
// caller sees a fixed message with a sanitized detail.
func (h *HTTPChannel) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCodeOf(err)
	log := logger.FromContext(r.Context(), h.logger)

	if errors.Is(err, domain.ErrConfig) {
		log.Warn("chat request rejected", "code", code, "error", err)
		writeJSON(w, http.StatusInternalServerError, domain.ErrorResponse{Error: errNotConfigured})
		return
	}

	log.Error("chat request failed", "code", code, "error", err)
	writeJSON(w, http.StatusInternalServerError, domain.ErrorResponse{
		Error:   errGeneric,
		Details: domain.PublicDetail(err),
	})
}

func (h *HTTPChannel) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeJSON(w, http.StatusMethodNotAllowed, domain.ErrorResponse{Error: "Method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
