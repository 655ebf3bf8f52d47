package main

import (
	"fmt"
	"log/slog"

	"finadvisor/internal/adapter/assistant"
	"finadvisor/internal/adapter/journal"
	"finadvisor/internal/domain"
	"finadvisor/internal/infra/config"
	"finadvisor/internal/usecase"
)

// app holds the wired components of the chat service.
type app struct {
	registry *usecase.AssistantRegistry
	runs     *usecase.RunExecutor
	advisor  *usecase.Advisor
	journal  domain.RunJournal
}

func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	j, err := openJournal(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	svc := newAssistantService(cfg.Assistant, log)
	registry := usecase.NewAssistantRegistry(svc, cfg.Assistant.PersonaID, usecase.FinancialAdvisorPersona(), log)
	runs := usecase.NewRunExecutor(svc, usecase.RunExecutorConfig{
		PollInterval: cfg.Run.PollInterval,
		MaxAttempts:  cfg.Run.MaxAttempts,
		Timeout:      cfg.Run.Timeout,
	}, log)

	advisor := usecase.NewAdvisor(usecase.AdvisorConfig{
		Configured:    cfg.Assistant.Configured(),
		MaxConcurrent: cfg.Run.MaxConcurrent,
	}, registry, usecase.NewConversationSession(svc), runs, j, log)

	return &app{
		registry: registry,
		runs:     runs,
		advisor:  advisor,
		journal:  j,
	}, nil
}

func (a *app) Close() error {
	return a.journal.Close()
}

// newAssistantService builds the OpenAI client, wrapped in a circuit breaker
// when enabled.
func newAssistantService(cfg config.AssistantConfig, log *slog.Logger) domain.AssistantService {
	var svc domain.AssistantService = assistant.NewOpenAIService(assistant.OpenAIConfig{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		Organization: cfg.Organization,
	}, assistant.NewHTTPClient(cfg), log)

	if cfg.CircuitBreaker.Enabled {
		svc = assistant.NewCircuitBreakerService(svc, cfg.CircuitBreaker, log)
	}
	return svc
}

func openJournal(cfg config.JournalConfig) (domain.RunJournal, error) {
	if !cfg.Enabled {
		return journal.Noop{}, nil
	}
	return journal.NewSQLiteJournal(cfg.Path)
}
