package usecase

import (
	"context"
	"log/slog"
	"sync"

	"finadvisor/internal/domain"
)

// Persona parameters used when no persona id is configured.
const (
	PersonaName  = "Financial Advisor"
	PersonaModel = "gpt-4-turbo-preview"

	PersonaInstructions = `You are a knowledgeable financial advisor assistant. Your role is to:
1. Provide clear, concise financial advice
2. Explain complex financial concepts in simple terms
3. Focus on educational content rather than specific investment recommendations
4. Always remind users to consult with professional financial advisors for personalized advice
5. Stay within the scope of general financial education and guidance`
)

// FinancialAdvisorPersona returns the fixed creation parameters of the persona.
func FinancialAdvisorPersona() domain.PersonaSpec {
	return domain.PersonaSpec{
		Name:         PersonaName,
		Instructions: PersonaInstructions,
		Model:        PersonaModel,
		Tools:        []domain.ToolType{domain.ToolCodeInterpreter},
	}
}

// AssistantRegistry resolves the persona used for every conversation and
// caches it for the process lifetime.
type AssistantRegistry struct {
	svc       domain.AssistantService
	personaID string
	spec      domain.PersonaSpec
	logger    *slog.Logger

	mu      sync.Mutex
	persona *domain.Persona
}

// NewAssistantRegistry creates a registry. An empty personaID means a new
// persona is created from spec on first resolution.
func NewAssistantRegistry(svc domain.AssistantService, personaID string, spec domain.PersonaSpec, logger *slog.Logger) *AssistantRegistry {
	return &AssistantRegistry{
		svc:       svc,
		personaID: personaID,
		spec:      spec,
		logger:    logger,
	}
}

// Resolve obtains the persona from the service without consulting the cache.
// A configured id is only ever fetched; otherwise a persona is only ever
// created.
func (r *AssistantRegistry) Resolve(ctx context.Context) (*domain.Persona, error) {
	if r.personaID != "" {
		p, err := r.svc.RetrievePersona(ctx, r.personaID)
		if err != nil {
			return nil, domain.WrapOp("AssistantRegistry.Resolve", err)
		}
		return p, nil
	}

	p, err := r.svc.CreatePersona(ctx, r.spec)
	if err != nil {
		return nil, domain.WrapOp("AssistantRegistry.Resolve", err)
	}
	return p, nil
}

// Persona returns the cached persona, resolving it on first use. A failed
// resolution is not cached.
func (r *AssistantRegistry) Persona(ctx context.Context) (*domain.Persona, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.persona != nil {
		return r.persona, nil
	}
	p, err := r.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	r.persona = p
	r.logger.Info("assistant persona resolved", "persona_id", p.ID, "created", r.personaID == "")
	return p, nil
}

// Reset drops the cached persona.
func (r *AssistantRegistry) Reset() {
	r.mu.Lock()
	r.persona = nil
	r.mu.Unlock()
}
