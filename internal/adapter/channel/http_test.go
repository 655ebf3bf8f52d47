package channel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finadvisor/internal/adapter/assistant"
	"finadvisor/internal/domain"
	"finadvisor/internal/infra/config"
	"finadvisor/internal/infra/middleware"
	"finadvisor/internal/usecase"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testServerConfig() config.ServerConfig {
	cfg := config.Defaults().Server
	cfg.RateLimit.Enabled = false
	return cfg
}

// stubReplier is a canned Replier.
type stubReplier struct {
	configured bool
	reply      string
	err        error
	got        []domain.Message
	calls      int
}

func (s *stubReplier) Configured() bool { return s.configured }

func (s *stubReplier) Reply(_ context.Context, msgs []domain.Message) (string, error) {
	s.calls++
	s.got = msgs
	return s.reply, s.err
}

func serve(t *testing.T, h http.Handler, method, body string) (*httptest.ResponseRecorder, domain.ErrorResponse) {
	t.Helper()
	req := httptest.NewRequest(method, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var er domain.ErrorResponse
	if w.Code != http.StatusOK {
		_ = json.Unmarshal(w.Body.Bytes(), &er)
	}
	return w, er
}

func TestChatSuccess(t *testing.T) {
	r := &stubReplier{configured: true, reply: "Save 20% of income."}
	h := NewHTTPChannel(testServerConfig(), r, quietLogger()).Handler(context.Background())

	w, _ := serve(t, h, http.MethodPost, `{"messages":[{"role":"user","content":"A"},{"role":"user","content":"B"}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp domain.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Save 20% of income.", resp.Content)
	assert.Len(t, r.got, 2)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestChatMethodNotAllowed(t *testing.T) {
	r := &stubReplier{configured: true}
	h := NewHTTPChannel(testServerConfig(), r, quietLogger()).Handler(context.Background())

	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		w, _ := serve(t, h, m, "")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, m)
		assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
	}
	assert.Zero(t, r.calls)
}

func TestChatNotConfiguredSkipsBody(t *testing.T) {
	r := &stubReplier{configured: false}
	h := NewHTTPChannel(testServerConfig(), r, quietLogger()).Handler(context.Background())

	for _, body := range []string{"", "not json", `{"messages":[]}`, `{"messages":[{"role":"user","content":"hi"}]}`} {
		w, er := serve(t, h, http.MethodPost, body)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "OpenAI API key not configured", er.Error)
		assert.Empty(t, er.Details)
		assert.NotContains(t, w.Body.String(), "details")
	}
	assert.Zero(t, r.calls)
}

func TestChatMalformedBody(t *testing.T) {
	r := &stubReplier{configured: true}
	h := NewHTTPChannel(testServerConfig(), r, quietLogger()).Handler(context.Background())

	w, er := serve(t, h, http.MethodPost, `{"messages":`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to get response from AI", er.Error)
	assert.Equal(t, "Invalid chat request", er.Details)
	assert.Zero(t, r.calls)
}

func TestChatBodyTooLarge(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxBodyBytes = 64
	r := &stubReplier{configured: true}
	h := NewHTTPChannel(cfg, r, quietLogger()).Handler(context.Background())

	body := `{"messages":[{"role":"user","content":"` + strings.Repeat("x", 200) + `"}]}`
	w, er := serve(t, h, http.MethodPost, body)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Invalid chat request", er.Details)
	assert.Zero(t, r.calls)
}

func TestChatErrorsAreSanitized(t *testing.T) {
	tests := []struct {
		err     error
		details string
	}{
		{domain.NewDomainError("op", domain.ErrRunFailed, "server_error: sk-live-abc leaked"), "Assistant run failed"},
		{domain.NewDomainError("op", domain.ErrRunTimeout, ""), "Assistant run timed out"},
		{domain.ExternalAPIError("op", errors.New("dial tcp 10.1.2.3:443: refused")), "Assistant service unavailable"},
		{domain.ExternalAPIError("op", domain.ErrAuthInvalid), "Assistant service rejected the credentials"},
		{errors.New("unexpected"), "Internal error"},
	}
	for _, tt := range tests {
		r := &stubReplier{configured: true, err: tt.err}
		h := NewHTTPChannel(testServerConfig(), r, quietLogger()).Handler(context.Background())

		w, er := serve(t, h, http.MethodPost, `{"messages":[{"role":"user","content":"q"}]}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Failed to get response from AI", er.Error)
		assert.Equal(t, tt.details, er.Details)
		assert.NotContains(t, w.Body.String(), "sk-live")
		assert.NotContains(t, w.Body.String(), "10.1.2.3")
	}
}

func TestChatRateLimited(t *testing.T) {
	cfg := testServerConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 1}
	r := &stubReplier{configured: true, reply: "ok"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHTTPChannel(cfg, r, quietLogger()).Handler(ctx)

	w1, _ := serve(t, h, http.MethodPost, `{"messages":[{"role":"user","content":"q"}]}`)
	w2, _ := serve(t, h, http.MethodPost, `{"messages":[{"role":"user","content":"q"}]}`)
	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
}

func TestHealth(t *testing.T) {
	h := NewHTTPChannel(testServerConfig(), &stubReplier{}, quietLogger()).Handler(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStartStop(t *testing.T) {
	cfg := testServerConfig()
	cfg.Addr = "127.0.0.1:0"
	ch := NewHTTPChannel(cfg, &stubReplier{configured: true, reply: "hi"}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ch.Start(ctx))

	resp, err := http.Post("http://"+ch.Addr()+"/api/chat", "application/json",
		strings.NewReader(`{"messages":[{"role":"user","content":"q"}]}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, ch.Stop(stopCtx))
}

// --- end-to-end through the real advisor and the OpenAI adapter ---

type upstream struct {
	srv      *httptest.Server
	requests atomic.Int32
	status   string
	reply    map[string]any
}

func newUpstream(t *testing.T, finalStatus string, reply map[string]any) *upstream {
	t.Helper()
	u := &upstream{status: finalStatus, reply: reply}
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/assistants/asst_cfg", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"id": "asst_cfg", "object": "assistant", "model": "gpt-4-turbo-preview"})
	})
	mux.HandleFunc("POST /v1/threads", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"id": "thread_e2e", "object": "thread"})
	})
	mux.HandleFunc("POST /v1/threads/thread_e2e/messages", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"id": "msg_user", "object": "thread.message", "role": "user"})
	})
	mux.HandleFunc("POST /v1/threads/thread_e2e/runs", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"id": "run_e2e", "object": "thread.run", "thread_id": "thread_e2e", "status": "queued"})
	})
	mux.HandleFunc("GET /v1/threads/thread_e2e/runs/run_e2e", func(w http.ResponseWriter, _ *http.Request) {
		status := "in_progress"
		if polls.Add(1) >= 2 {
			status = u.status
		}
		writeJSON(w, 200, map[string]any{"id": "run_e2e", "object": "thread.run", "thread_id": "thread_e2e", "status": status})
	})
	mux.HandleFunc("GET /v1/threads/thread_e2e/messages", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"object": "list", "data": []any{u.reply}})
	})

	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.requests.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func textReply(text string) map[string]any {
	return map[string]any{
		"id": "msg_reply", "object": "thread.message", "role": "assistant",
		"content": []any{map[string]any{"type": "text", "text": map[string]any{"value": text, "annotations": []any{}}}},
	}
}

func newE2EHandler(u *upstream, configured bool) http.Handler {
	log := quietLogger()
	svc := assistant.NewOpenAIService(assistant.OpenAIConfig{APIKey: "sk-test", BaseURL: u.srv.URL + "/v1"}, u.srv.Client(), log)
	advisor := usecase.NewAdvisor(
		usecase.AdvisorConfig{Configured: configured},
		usecase.NewAssistantRegistry(svc, "asst_cfg", usecase.FinancialAdvisorPersona(), log),
		usecase.NewConversationSession(svc),
		usecase.NewRunExecutor(svc, usecase.RunExecutorConfig{PollInterval: time.Millisecond, MaxAttempts: 20}, log),
		nil,
		log,
	)
	return NewHTTPChannel(testServerConfig(), advisor, log).Handler(context.Background())
}

const budgetQuestion = `{"messages":[{"role":"user","content":"How should I budget?"}]}`

func TestEndToEndCompleted(t *testing.T) {
	u := newUpstream(t, "completed", textReply("Track income and expenses monthly."))

	w, _ := serve(t, newE2EHandler(u, true), http.MethodPost, budgetQuestion)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"content":"Track income and expenses monthly."}`, w.Body.String())
}

func TestEndToEndFailed(t *testing.T) {
	u := newUpstream(t, "failed", textReply("unused"))

	w, _ := serve(t, newE2EHandler(u, true), http.MethodPost, budgetQuestion)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to get response from AI","details":"Assistant run failed"}`, w.Body.String())
}

func TestEndToEndUnsupportedContent(t *testing.T) {
	u := newUpstream(t, "completed", map[string]any{
		"id": "msg_reply", "object": "thread.message", "role": "assistant",
		"content": []any{map[string]any{"type": "image_file", "image_file": map[string]any{"file_id": "file_1"}}},
	})

	w, _ := serve(t, newE2EHandler(u, true), http.MethodPost, budgetQuestion)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"content":"I'm sorry, I couldn't process your request in the expected format."}`, w.Body.String())
}

func TestEndToEndNotConfiguredMakesNoUpstreamCalls(t *testing.T) {
	u := newUpstream(t, "completed", textReply("unused"))

	w, er := serve(t, newE2EHandler(u, false), http.MethodPost, budgetQuestion)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "OpenAI API key not configured", er.Error)
	assert.Zero(t, u.requests.Load())
}
