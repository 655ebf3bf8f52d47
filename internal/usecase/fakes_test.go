package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"finadvisor/internal/domain"
)

// fakeAssistant is a scripted domain.AssistantService.
type fakeAssistant struct {
	mu sync.Mutex

	retrieveErr error
	createErr   error
	threadErr   error
	messageErr  error
	runErr      error
	pollErr     error
	listErr     error

	statuses []domain.RunStatus // returned in order; the last one repeats
	lastErr  string
	reply    []domain.ThreadMessage
	block    chan struct{} // when set, CreateRun waits on it

	calls    []string
	posted   []domain.Message
	polls    int
	canceled chan string
}

func newFakeAssistant(statuses ...domain.RunStatus) *fakeAssistant {
	return &fakeAssistant{
		statuses: statuses,
		canceled: make(chan string, 16),
		reply: []domain.ThreadMessage{{
			ID:      "msg_reply",
			Role:    domain.RoleAssistant,
			Content: []domain.Content{&domain.TextContent{Value: "Track income and expenses monthly."}},
		}},
	}
}

func (f *fakeAssistant) called(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeAssistant) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeAssistant) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAssistant) RetrievePersona(_ context.Context, id string) (*domain.Persona, error) {
	f.called("RetrievePersona")
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	return &domain.Persona{ID: id, Name: PersonaName}, nil
}

func (f *fakeAssistant) CreatePersona(_ context.Context, spec domain.PersonaSpec) (*domain.Persona, error) {
	f.called("CreatePersona")
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &domain.Persona{ID: "asst_created", Name: spec.Name, Instructions: spec.Instructions,
		Model: spec.Model, Tools: spec.Tools}, nil
}

func (f *fakeAssistant) CreateThread(context.Context) (*domain.Thread, error) {
	f.called("CreateThread")
	if f.threadErr != nil {
		return nil, f.threadErr
	}
	return &domain.Thread{ID: fmt.Sprintf("thread_%d", f.count("CreateThread"))}, nil
}

func (f *fakeAssistant) CreateMessage(_ context.Context, _ string, msg domain.Message) error {
	f.called("CreateMessage")
	f.mu.Lock()
	f.posted = append(f.posted, msg)
	f.mu.Unlock()
	return f.messageErr
}

func (f *fakeAssistant) CreateRun(ctx context.Context, threadID, personaID string) (*domain.Run, error) {
	f.called("CreateRun")
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &domain.Run{ID: "run_1", ThreadID: threadID, PersonaID: personaID, Status: domain.RunQueued}, nil
}

func (f *fakeAssistant) RetrieveRun(ctx context.Context, threadID, runID string) (*domain.Run, error) {
	f.called("RetrieveRun")
	if err := ctx.Err(); err != nil {
		return nil, domain.ExternalAPIError("fake.RetrieveRun", err)
	}
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	f.mu.Lock()
	i := f.polls
	f.polls++
	f.mu.Unlock()
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	run := &domain.Run{ID: runID, ThreadID: threadID, Status: f.statuses[i]}
	if run.Status == domain.RunFailed {
		run.LastError = f.lastErr
	}
	return run, nil
}

func (f *fakeAssistant) CancelRun(_ context.Context, _, runID string) error {
	f.called("CancelRun")
	f.canceled <- runID
	return nil
}

func (f *fakeAssistant) ListMessages(context.Context, string, int) ([]domain.ThreadMessage, error) {
	f.called("ListMessages")
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.reply, nil
}

var _ domain.AssistantService = (*fakeAssistant)(nil)

// memJournal is an in-memory domain.RunJournal.
type memJournal struct {
	mu   sync.Mutex
	recs []domain.RunRecord
	err  error
}

func (j *memJournal) Record(_ context.Context, rec domain.RunRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.recs = append(j.recs, rec)
	return nil
}

func (j *memJournal) Recent(context.Context, int) ([]domain.RunRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.RunRecord(nil), j.recs...), nil
}

func (j *memJournal) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
