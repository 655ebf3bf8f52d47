package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"finadvisor/internal/domain"
	"finadvisor/internal/infra/logger"
	"finadvisor/internal/infra/tracer"
)

// AdvisorConfig holds the request-level settings of an Advisor.
type AdvisorConfig struct {
	Configured    bool // an API credential is present
	MaxConcurrent int  // in-flight replies; 0 = unlimited
}

// Advisor answers one chat exchange: it resolves the persona, opens a fresh
// thread, posts the caller's last message, runs the persona and translates
// the reply.
type Advisor struct {
	configured bool
	registry   *AssistantRegistry
	session    *ConversationSession
	runs       *RunExecutor
	journal    domain.RunJournal
	sem        *semaphore.Weighted
	logger     *slog.Logger
}

// NewAdvisor creates an Advisor. A nil journal disables journaling.
func NewAdvisor(cfg AdvisorConfig, registry *AssistantRegistry, session *ConversationSession,
	runs *RunExecutor, journal domain.RunJournal, logger *slog.Logger,
) *Advisor {
	a := &Advisor{
		configured: cfg.Configured,
		registry:   registry,
		session:    session,
		runs:       runs,
		journal:    journal,
		logger:     logger,
	}
	if cfg.MaxConcurrent > 0 {
		a.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return a
}

// Configured reports whether the advisor can reach the assistant service.
func (a *Advisor) Configured() bool { return a.configured }

// Reply returns the persona's answer to the last message in msgs. Earlier
// messages are ignored: every exchange runs in a new thread.
func (a *Advisor) Reply(ctx context.Context, msgs []domain.Message) (reply string, err error) {
	const op = "Advisor.Reply"

	if !a.configured {
		return "", domain.NewDomainError(op, domain.ErrConfig, "")
	}
	last, ok := domain.LastMessage(msgs)
	if !ok {
		return "", domain.NewDomainError(op, domain.ErrInvalidInput, "no messages")
	}
	if strings.TrimSpace(last.Content) == "" {
		return "", domain.NewDomainError(op, domain.ErrInvalidInput, "last message is empty")
	}

	if a.sem != nil {
		if !a.sem.TryAcquire(1) {
			return "", domain.NewDomainError(op, domain.ErrLimitReached, "concurrent reply limit")
		}
		defer a.sem.Release(1)
	}

	ctx, span := tracer.StartSpan(ctx, "advisor.reply")
	defer func() { tracer.Finish(span, err) }()

	rec := domain.RunRecord{
		RequestID: domain.RequestIDFromContext(ctx),
		StartedAt: time.Now(),
	}
	defer func() { a.record(ctx, rec, err) }()

	persona, err := a.registry.Persona(ctx)
	if err != nil {
		return "", domain.WrapOp(op, err)
	}
	rec.PersonaID = persona.ID

	thread, err := a.session.Open(ctx)
	if err != nil {
		return "", domain.WrapOp(op, err)
	}
	rec.ThreadID = thread.ID

	if err := a.session.PostMessage(ctx, thread.ID, last.Content); err != nil {
		return "", domain.WrapOp(op, err)
	}

	run, err := a.runs.Submit(ctx, thread.ID, persona.ID)
	if err != nil {
		return "", domain.WrapOp(op, err)
	}
	rec.RunID = run.ID

	content, err := a.runs.PollUntilTerminal(ctx, thread.ID, run.ID)
	if err != nil {
		return "", domain.WrapOp(op, err)
	}
	rec.Status = domain.RunCompleted

	if _, isText := content.(*domain.TextContent); !isText {
		logger.FromContext(ctx, a.logger).Warn("reply has no text content", "run_id", run.ID)
	}
	return Extract(content), nil
}

func (a *Advisor) record(ctx context.Context, rec domain.RunRecord, err error) {
	if a.journal == nil {
		return
	}
	rec.EndedAt = time.Now()
	if err != nil {
		rec.ErrorCode = domain.ErrorCodeOf(err)
		if errors.Is(err, domain.ErrRunFailed) {
			rec.Status = domain.RunFailed
		}
	}
	if jerr := a.journal.Record(context.WithoutCancel(ctx), rec); jerr != nil {
		logger.FromContext(ctx, a.logger).Warn("run journal write failed", "error", jerr)
	}
}
