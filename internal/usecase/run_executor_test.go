package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finadvisor/internal/domain"
)

func fastExecutor(svc domain.AssistantService) *RunExecutor {
	return NewRunExecutor(svc, RunExecutorConfig{
		PollInterval: time.Millisecond,
		MaxAttempts:  50,
		Timeout:      5 * time.Second,
	}, testLogger())
}

func TestSubmit(t *testing.T) {
	svc := newFakeAssistant(domain.RunCompleted)
	run, err := fastExecutor(svc).Submit(context.Background(), "thread_1", "asst_1")
	require.NoError(t, err)
	assert.Equal(t, "run_1", run.ID)
	assert.Equal(t, "asst_1", run.PersonaID)
}

func TestSubmitError(t *testing.T) {
	svc := newFakeAssistant()
	svc.runErr = domain.ExternalAPIError("fake", domain.ErrPersonaNotFound)
	_, err := fastExecutor(svc).Submit(context.Background(), "thread_1", "asst_1")
	assert.ErrorIs(t, err, domain.ErrPersonaNotFound)
}

func TestPollWaitsForCompletion(t *testing.T) {
	sequences := [][]domain.RunStatus{
		{domain.RunCompleted},
		{domain.RunQueued, domain.RunCompleted},
		{domain.RunQueued, domain.RunQueued, domain.RunInProgress, domain.RunInProgress, domain.RunCompleted},
		{domain.RunInProgress, domain.RunStatus("brand_new_status"), domain.RunCompleted},
	}
	for _, seq := range sequences {
		svc := newFakeAssistant(seq...)
		content, err := fastExecutor(svc).PollUntilTerminal(context.Background(), "thread_1", "run_1")
		require.NoError(t, err, seq)
		assert.Equal(t, len(seq), svc.count("RetrieveRun"), "status fetched until terminal: %v", seq)
		assert.Equal(t, "Track income and expenses monthly.", Extract(content))
		assert.Equal(t, 1, svc.count("ListMessages"))
	}
}

func TestPollFailed(t *testing.T) {
	svc := newFakeAssistant(domain.RunQueued, domain.RunInProgress, domain.RunFailed)
	svc.lastErr = "server_error: upstream exploded"

	content, err := fastExecutor(svc).PollUntilTerminal(context.Background(), "thread_1", "run_1")
	require.Error(t, err)
	assert.Nil(t, content)
	assert.ErrorIs(t, err, domain.ErrRunFailed)
	assert.Zero(t, svc.count("ListMessages"))
	assert.Zero(t, svc.count("CancelRun"))
}

func TestPollOtherTerminalStatusesFail(t *testing.T) {
	for _, s := range []domain.RunStatus{domain.RunCancelled, domain.RunExpired, domain.RunIncomplete, domain.RunRequiresAction} {
		svc := newFakeAssistant(domain.RunInProgress, s)
		_, err := fastExecutor(svc).PollUntilTerminal(context.Background(), "thread_1", "run_1")
		require.Error(t, err, s)
		assert.ErrorIs(t, err, domain.ErrRunFailed, s)
		assert.Contains(t, err.Error(), string(s))
		assert.Equal(t, 2, svc.count("RetrieveRun"), "no fetch after terminal status %s", s)
	}
}

func TestPollFetchErrorPropagates(t *testing.T) {
	svc := newFakeAssistant(domain.RunQueued)
	svc.pollErr = domain.ExternalAPIError("fake", errors.New("502 bad gateway"))

	_, err := fastExecutor(svc).PollUntilTerminal(context.Background(), "thread_1", "run_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExternalAPI)
	assert.Equal(t, 1, svc.count("RetrieveRun"))
}

func TestPollEmptyMessageListIsExternalError(t *testing.T) {
	svc := newFakeAssistant(domain.RunCompleted)
	svc.reply = nil

	_, err := fastExecutor(svc).PollUntilTerminal(context.Background(), "thread_1", "run_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExternalAPI)
}

func TestPollReturnsUnsupportedContent(t *testing.T) {
	svc := newFakeAssistant(domain.RunCompleted)
	svc.reply = []domain.ThreadMessage{{ID: "m", Content: []domain.Content{&domain.UnsupportedContent{Type: "image_file"}}}}

	content, err := fastExecutor(svc).PollUntilTerminal(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, Extract(content))
}

func TestPollMaxAttempts(t *testing.T) {
	svc := newFakeAssistant(domain.RunInProgress)
	exec := NewRunExecutor(svc, RunExecutorConfig{PollInterval: time.Millisecond, MaxAttempts: 4}, testLogger())

	_, err := exec.PollUntilTerminal(context.Background(), "thread_1", "run_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRunTimeout)
	assert.Equal(t, domain.CodeRunTimeout, domain.ErrorCodeOf(err))
	assert.Equal(t, 4, svc.count("RetrieveRun"))

	exec.Wait()
	assert.Equal(t, "run_1", <-svc.canceled)
}

func TestPollTimeout(t *testing.T) {
	svc := newFakeAssistant(domain.RunQueued)
	exec := NewRunExecutor(svc, RunExecutorConfig{PollInterval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond}, testLogger())

	start := time.Now()
	_, err := exec.PollUntilTerminal(context.Background(), "thread_1", "run_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRunTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)

	exec.Wait()
	assert.Equal(t, 1, svc.count("CancelRun"))
}

func TestPollStopsWhenCallerCancels(t *testing.T) {
	svc := newFakeAssistant(domain.RunInProgress)
	exec := NewRunExecutor(svc, RunExecutorConfig{PollInterval: 10 * time.Millisecond, Timeout: time.Minute}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(25*time.Millisecond, cancel)

	_, err := exec.PollUntilTerminal(ctx, "thread_1", "run_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrRunTimeout)
	assert.Equal(t, domain.CodeCancelled, domain.ErrorCodeOf(err))

	polls := svc.count("RetrieveRun")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, polls, svc.count("RetrieveRun"), "no polling after cancellation")

	exec.Wait()
	assert.Equal(t, 1, svc.count("CancelRun"))
}

func TestNewRunExecutorDefaultsInterval(t *testing.T) {
	exec := NewRunExecutor(newFakeAssistant(), RunExecutorConfig{}, testLogger())
	assert.Equal(t, time.Second, exec.cfg.PollInterval)
}
