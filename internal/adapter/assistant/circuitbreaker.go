package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker/v2"

	"finadvisor/internal/domain"
	"finadvisor/internal/infra/config"
)

// CircuitBreakerService wraps an AssistantService so that a failing upstream
// is short-circuited instead of being hit by every poll of every request.
type CircuitBreakerService struct {
	inner   domain.AssistantService
	breaker *gobreaker.CircuitBreaker[any]
}

// NewCircuitBreakerService wraps inner with a circuit breaker. Zero-valued
// settings fall back to the config defaults.
func NewCircuitBreakerService(inner domain.AssistantService, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerService {
	def := config.Defaults().Assistant.CircuitBreaker
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = def.MaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = def.Timeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = def.Interval
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "assistant",
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: isBreakerSuccess,
	})
	return &CircuitBreakerService{inner: inner, breaker: cb}
}

// isBreakerSuccess keeps caller-side errors from tripping the breaker: a
// missing resource or a cancelled request says nothing about upstream health.
func isBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, context.Canceled)
}

func guard[T any](p *CircuitBreakerService, op string, fn func() (T, error)) (T, error) {
	v, err := p.breaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, domain.ExternalAPIError(op, fmt.Errorf("%w: %w", domain.ErrCircuitOpen, err))
		}
		return zero, err
	}
	return v.(T), nil
}

func (p *CircuitBreakerService) RetrievePersona(ctx context.Context, id string) (*domain.Persona, error) {
	return guard(p, "Assistant.RetrievePersona", func() (*domain.Persona, error) {
		return p.inner.RetrievePersona(ctx, id)
	})
}

func (p *CircuitBreakerService) CreatePersona(ctx context.Context, spec domain.PersonaSpec) (*domain.Persona, error) {
	return guard(p, "Assistant.CreatePersona", func() (*domain.Persona, error) {
		return p.inner.CreatePersona(ctx, spec)
	})
}

func (p *CircuitBreakerService) CreateThread(ctx context.Context) (*domain.Thread, error) {
	return guard(p, "Assistant.CreateThread", func() (*domain.Thread, error) {
		return p.inner.CreateThread(ctx)
	})
}

func (p *CircuitBreakerService) CreateMessage(ctx context.Context, threadID string, msg domain.Message) error {
	_, err := guard(p, "Assistant.CreateMessage", func() (struct{}, error) {
		return struct{}{}, p.inner.CreateMessage(ctx, threadID, msg)
	})
	return err
}

func (p *CircuitBreakerService) CreateRun(ctx context.Context, threadID, personaID string) (*domain.Run, error) {
	return guard(p, "Assistant.CreateRun", func() (*domain.Run, error) {
		return p.inner.CreateRun(ctx, threadID, personaID)
	})
}

func (p *CircuitBreakerService) RetrieveRun(ctx context.Context, threadID, runID string) (*domain.Run, error) {
	return guard(p, "Assistant.RetrieveRun", func() (*domain.Run, error) {
		return p.inner.RetrieveRun(ctx, threadID, runID)
	})
}

// CancelRun bypasses the breaker: it is a best-effort cleanup call and must
// not be refused while the circuit is open.
func (p *CircuitBreakerService) CancelRun(ctx context.Context, threadID, runID string) error {
	return p.inner.CancelRun(ctx, threadID, runID)
}

func (p *CircuitBreakerService) ListMessages(ctx context.Context, threadID string, limit int) ([]domain.ThreadMessage, error) {
	return guard(p, "Assistant.ListMessages", func() ([]domain.ThreadMessage, error) {
		return p.inner.ListMessages(ctx, threadID, limit)
	})
}

// State returns the current circuit breaker state for monitoring.
func (p *CircuitBreakerService) State() gobreaker.State {
	return p.breaker.State()
}

var _ domain.AssistantService = (*CircuitBreakerService)(nil)
