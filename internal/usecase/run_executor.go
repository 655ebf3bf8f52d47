package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"finadvisor/internal/domain"
	"finadvisor/internal/infra/tracer"
)

const cancelRunTimeout = 10 * time.Second

// RunExecutorConfig bounds how long a run is waited for.
type RunExecutorConfig struct {
	PollInterval time.Duration
	MaxAttempts  int           // 0 = no attempt limit
	Timeout      time.Duration // 0 = no time limit
}

// RunExecutor starts runs and drives them to a terminal status.
type RunExecutor struct {
	svc    domain.AssistantService
	cfg    RunExecutorConfig
	logger *slog.Logger

	wg sync.WaitGroup // in-flight upstream cancellations
}

// NewRunExecutor creates a RunExecutor. A non-positive poll interval is
// replaced by one second.
func NewRunExecutor(svc domain.AssistantService, cfg RunExecutorConfig, logger *slog.Logger) *RunExecutor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &RunExecutor{svc: svc, cfg: cfg, logger: logger}
}

// Submit starts the persona on the thread.
func (e *RunExecutor) Submit(ctx context.Context, threadID, personaID string) (*domain.Run, error) {
	run, err := e.svc.CreateRun(ctx, threadID, personaID)
	if err != nil {
		return nil, domain.WrapOp("RunExecutor.Submit", err)
	}
	return run, nil
}

// PollUntilTerminal fetches the run status once per poll interval until a
// terminal status is observed, then returns the first content part of the
// newest thread message. Only a completed run yields content.
//
// Polling stops with ErrRunTimeout once MaxAttempts fetches or Timeout have
// been used up, and with the context error when ctx is done. In both cases
// the run is cancelled upstream in the background; see Wait.
func (e *RunExecutor) PollUntilTerminal(ctx context.Context, threadID, runID string) (_ domain.Content, err error) {
	const op = "RunExecutor.PollUntilTerminal"

	ctx, span := tracer.StartSpan(ctx, "run.poll")
	span.SetAttributes(tracer.StringAttr("thread.id", threadID), tracer.StringAttr("run.id", runID))
	defer func() { tracer.Finish(span, err) }()

	pollCtx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	timer := time.NewTimer(e.cfg.PollInterval)
	timer.Stop()
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		run, err := e.svc.RetrieveRun(pollCtx, threadID, runID)
		if err != nil {
			if pollCtx.Err() != nil {
				return nil, e.interrupted(ctx, threadID, runID)
			}
			return nil, domain.WrapOp(op, err)
		}
		e.logger.Debug("run status", "run_id", runID, "status", run.Status, "attempt", attempt)

		switch {
		case run.Status == domain.RunCompleted:
			span.SetAttributes(tracer.IntAttr("run.attempts", attempt))
			return e.latestContent(pollCtx, threadID)
		case run.Status == domain.RunFailed:
			return nil, domain.NewDomainError(op, domain.ErrRunFailed, run.LastError)
		case run.Status.Terminal():
			return nil, domain.NewDomainError(op, domain.ErrRunFailed, "status "+string(run.Status))
		}

		if e.cfg.MaxAttempts > 0 && attempt >= e.cfg.MaxAttempts {
			e.cancelUpstream(ctx, threadID, runID)
			return nil, domain.NewDomainError(op, domain.ErrRunTimeout,
				fmt.Sprintf("still %s after %d attempts", run.Status, attempt))
		}

		timer.Reset(e.cfg.PollInterval)
		select {
		case <-timer.C:
		case <-pollCtx.Done():
			return nil, e.interrupted(ctx, threadID, runID)
		}
	}
}

// interrupted cancels the run upstream and reports why polling stopped: the
// caller's own context error, or ErrRunTimeout when the poll budget ran out.
func (e *RunExecutor) interrupted(ctx context.Context, threadID, runID string) error {
	const op = "RunExecutor.PollUntilTerminal"
	e.cancelUpstream(ctx, threadID, runID)
	if err := ctx.Err(); err != nil {
		return domain.WrapOp(op, err)
	}
	return domain.NewDomainError(op, domain.ErrRunTimeout, "exceeded "+e.cfg.Timeout.String())
}

func (e *RunExecutor) latestContent(ctx context.Context, threadID string) (domain.Content, error) {
	const op = "RunExecutor.PollUntilTerminal"
	msgs, err := e.svc.ListMessages(ctx, threadID, 1)
	if err != nil {
		return nil, domain.WrapOp(op, err)
	}
	if len(msgs) == 0 {
		return nil, domain.ExternalAPIError(op, errors.New("completed run left no messages"))
	}
	if len(msgs[0].Content) == 0 {
		return nil, domain.ExternalAPIError(op, fmt.Errorf("message %s has no content", msgs[0].ID))
	}
	return msgs[0].Content[0], nil
}

// cancelUpstream asks the service to stop the run on a context detached from
// ctx, so an aborted caller still releases upstream resources.
func (e *RunExecutor) cancelUpstream(ctx context.Context, threadID, runID string) {
	detached := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		cctx, cancel := context.WithTimeout(detached, cancelRunTimeout)
		defer cancel()
		if err := e.svc.CancelRun(cctx, threadID, runID); err != nil {
			e.logger.Warn("cancel run failed", "run_id", runID, "thread_id", threadID, "error", err)
			return
		}
		e.logger.Info("run cancelled", "run_id", runID, "thread_id", threadID)
	}()
}

// Wait blocks until background run cancellations have finished.
func (e *RunExecutor) Wait() {
	e.wg.Wait()
}
