package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"finadvisor/internal/domain"
	"finadvisor/internal/infra/tracer"
)

// OpenAIConfig configures the OpenAI Assistants client.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Organization string
}

// OpenAIService implements domain.AssistantService against the OpenAI
// Assistants API.
type OpenAIService struct {
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAIService creates an Assistants client. A nil httpClient uses the
// library default.
func NewOpenAIService(cfg OpenAIConfig, httpClient *http.Client, logger *slog.Logger) *OpenAIService {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.OrgID = cfg.Organization
	if httpClient != nil {
		oc.HTTPClient = httpClient
	}
	return &OpenAIService{
		client: openai.NewClientWithConfig(oc),
		logger: logger,
	}
}

// RetrievePersona fetches an existing assistant by id.
func (s *OpenAIService) RetrievePersona(ctx context.Context, id string) (_ *domain.Persona, err error) {
	ctx, span := tracer.StartSpan(ctx, "openai.retrieve_assistant")
	defer func() { tracer.Finish(span, err) }()
	span.SetAttributes(tracer.StringAttr("assistant.id", id))

	a, err := s.client.RetrieveAssistant(ctx, id)
	if err != nil {
		return nil, mapAPIError("OpenAI.RetrieveAssistant", err, domain.ErrPersonaNotFound)
	}
	return personaFromAssistant(a), nil
}

// CreatePersona creates a new assistant from spec.
func (s *OpenAIService) CreatePersona(ctx context.Context, spec domain.PersonaSpec) (_ *domain.Persona, err error) {
	ctx, span := tracer.StartSpan(ctx, "openai.create_assistant")
	defer func() { tracer.Finish(span, err) }()

	name, instructions := spec.Name, spec.Instructions
	req := openai.AssistantRequest{
		Model:        spec.Model,
		Name:         &name,
		Instructions: &instructions,
	}
	for _, t := range spec.Tools {
		req.Tools = append(req.Tools, openai.AssistantTool{Type: openai.AssistantToolType(t)})
	}

	a, err := s.client.CreateAssistant(ctx, req)
	if err != nil {
		return nil, mapAPIError("OpenAI.CreateAssistant", err, domain.ErrNotFound)
	}
	s.logger.Info("assistant persona created", "assistant_id", a.ID, "model", a.Model)
	return personaFromAssistant(a), nil
}

// CreateThread opens an empty thread.
func (s *OpenAIService) CreateThread(ctx context.Context) (_ *domain.Thread, err error) {
	ctx, span := tracer.StartSpan(ctx, "openai.create_thread")
	defer func() { tracer.Finish(span, err) }()

	th, err := s.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return nil, mapAPIError("OpenAI.CreateThread", err, domain.ErrNotFound)
	}
	return &domain.Thread{ID: th.ID}, nil
}

// CreateMessage appends msg to the thread.
func (s *OpenAIService) CreateMessage(ctx context.Context, threadID string, msg domain.Message) (err error) {
	ctx, span := tracer.StartSpan(ctx, "openai.create_message")
	defer func() { tracer.Finish(span, err) }()
	span.SetAttributes(tracer.StringAttr("thread.id", threadID))

	_, err = s.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    msg.Role,
		Content: msg.Content,
	})
	if err != nil {
		return mapAPIError("OpenAI.CreateMessage", err, domain.ErrNotFound)
	}
	return nil
}

// CreateRun starts the persona on the thread.
func (s *OpenAIService) CreateRun(ctx context.Context, threadID, personaID string) (_ *domain.Run, err error) {
	ctx, span := tracer.StartSpan(ctx, "openai.create_run")
	defer func() { tracer.Finish(span, err) }()
	span.SetAttributes(tracer.StringAttr("thread.id", threadID), tracer.StringAttr("assistant.id", personaID))

	r, err := s.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: personaID})
	if err != nil {
		return nil, mapAPIError("OpenAI.CreateRun", err, domain.ErrPersonaNotFound)
	}
	return runFromOpenAI(r), nil
}

// RetrieveRun fetches the current state of a run.
func (s *OpenAIService) RetrieveRun(ctx context.Context, threadID, runID string) (_ *domain.Run, err error) {
	ctx, span := tracer.StartSpan(ctx, "openai.retrieve_run")
	defer func() { tracer.Finish(span, err) }()
	span.SetAttributes(tracer.StringAttr("run.id", runID))

	r, err := s.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return nil, mapAPIError("OpenAI.RetrieveRun", err, domain.ErrNotFound)
	}
	span.SetAttributes(tracer.StringAttr("run.status", string(r.Status)))
	return runFromOpenAI(r), nil
}

// CancelRun asks the service to stop a run.
func (s *OpenAIService) CancelRun(ctx context.Context, threadID, runID string) (err error) {
	ctx, span := tracer.StartSpan(ctx, "openai.cancel_run")
	defer func() { tracer.Finish(span, err) }()
	span.SetAttributes(tracer.StringAttr("run.id", runID))

	if _, err = s.client.CancelRun(ctx, threadID, runID); err != nil {
		return mapAPIError("OpenAI.CancelRun", err, domain.ErrNotFound)
	}
	return nil
}

// ListMessages returns up to limit thread messages, newest first.
func (s *OpenAIService) ListMessages(ctx context.Context, threadID string, limit int) (_ []domain.ThreadMessage, err error) {
	ctx, span := tracer.StartSpan(ctx, "openai.list_messages")
	defer func() { tracer.Finish(span, err) }()
	span.SetAttributes(tracer.StringAttr("thread.id", threadID), tracer.IntAttr("limit", limit))

	order := "desc"
	list, err := s.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return nil, mapAPIError("OpenAI.ListMessages", err, domain.ErrNotFound)
	}

	out := make([]domain.ThreadMessage, 0, len(list.Messages))
	for _, m := range list.Messages {
		out = append(out, messageFromOpenAI(m))
	}
	return out, nil
}

func personaFromAssistant(a openai.Assistant) *domain.Persona {
	p := &domain.Persona{ID: a.ID, Model: a.Model}
	if a.Name != nil {
		p.Name = *a.Name
	}
	if a.Instructions != nil {
		p.Instructions = *a.Instructions
	}
	for _, t := range a.Tools {
		p.Tools = append(p.Tools, domain.ToolType(t.Type))
	}
	return p
}

func runFromOpenAI(r openai.Run) *domain.Run {
	run := &domain.Run{
		ID:        r.ID,
		ThreadID:  r.ThreadID,
		PersonaID: r.AssistantID,
		Status:    domain.RunStatus(r.Status),
	}
	if r.LastError != nil {
		run.LastError = fmt.Sprintf("%s: %s", r.LastError.Code, r.LastError.Message)
	}
	return run
}

func messageFromOpenAI(m openai.Message) domain.ThreadMessage {
	tm := domain.ThreadMessage{ID: m.ID, Role: m.Role}
	for _, c := range m.Content {
		if c.Type == "text" && c.Text != nil {
			tm.Content = append(tm.Content, &domain.TextContent{Value: c.Text.Value})
			continue
		}
		tm.Content = append(tm.Content, &domain.UnsupportedContent{Type: c.Type})
	}
	return tm
}

// mapAPIError classifies a client error by HTTP status and wraps it as an
// external API error. notFound refines a 404 for the resource being addressed.
func mapAPIError(op string, err error, notFound error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusNotFound:
		err = fmt.Errorf("%w: %w", notFound, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		err = fmt.Errorf("%w: %w", domain.ErrAuthInvalid, err)
	case status == http.StatusTooManyRequests:
		err = fmt.Errorf("%w: %w", domain.ErrRateLimit, err)
	}
	return domain.ExternalAPIError(op, err)
}

var _ domain.AssistantService = (*OpenAIService)(nil)
