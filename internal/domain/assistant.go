package domain

import "context"

// ToolType names a capability enabled on a persona.
type ToolType string

const (
	ToolCodeInterpreter ToolType = "code_interpreter"
)

// PersonaSpec holds the parameters used to create a persona.
type PersonaSpec struct {
	Name         string
	Instructions string
	Model        string
	Tools        []ToolType
}

// Persona is the assistant identity invoked for every conversation. Its
// lifetime is owned by the assistant service.
type Persona struct {
	ID           string
	Name         string
	Instructions string
	Model        string
	Tools        []ToolType
}

// Thread is an isolated conversation context. A fresh one is opened for each
// inbound request and never reused.
type Thread struct {
	ID string
}

// RunStatus is the lifecycle state reported for a run.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunRequiresAction RunStatus = "requires_action"
	RunCancelling     RunStatus = "cancelling"
	RunCancelled      RunStatus = "cancelled"
	RunExpired        RunStatus = "expired"
	RunIncomplete     RunStatus = "incomplete"
)

// Terminal reports whether no further transition can follow s.
// requires_action is treated as terminal: personas here only run code, so a
// run asking for tool outputs cannot make progress.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunRequiresAction, RunCancelled, RunExpired, RunIncomplete:
		return true
	}
	return false
}

// Run is an asynchronous computation over a thread.
type Run struct {
	ID        string
	ThreadID  string
	PersonaID string
	Status    RunStatus
	LastError string
}

// Content is one part of a thread message. It is either *TextContent or
// *UnsupportedContent.
type Content interface {
	contentKind() string
}

// TextContent carries a renderable text value.
type TextContent struct {
	Value string
}

func (*TextContent) contentKind() string { return "text" }

// UnsupportedContent stands for any content shape that has no text value
// (images, files, unknown future types).
type UnsupportedContent struct {
	Type string
}

func (*UnsupportedContent) contentKind() string { return "unsupported" }

// ThreadMessage is a message listed from a thread.
type ThreadMessage struct {
	ID      string
	Role    string
	Content []Content
}

// AssistantService is the request/response contract of the hosted assistant
// service. Implementations map every failure to ErrExternalAPI (possibly
// refined by ErrPersonaNotFound, ErrAuthInvalid, ErrRateLimit).
type AssistantService interface {
	RetrievePersona(ctx context.Context, id string) (*Persona, error)
	CreatePersona(ctx context.Context, spec PersonaSpec) (*Persona, error)
	CreateThread(ctx context.Context) (*Thread, error)
	CreateMessage(ctx context.Context, threadID string, msg Message) error
	CreateRun(ctx context.Context, threadID, personaID string) (*Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	// ListMessages returns up to limit messages of a thread, newest first.
	ListMessages(ctx context.Context, threadID string, limit int) ([]ThreadMessage, error)
}
