// internal/agent/interfaces.go
package agent

import (
	"context"
	"time"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Reasoner is the external decision-maker. It must always return a
// well-formed proposal; when it cannot, the loop substitutes a deterministic
// fallback action rather than propagating the failure.
type Reasoner interface {
	// ProposeAction decides the next step from the current page and memory.
	ProposeAction(ctx context.Context, req ProposalRequest) (*Proposal, error)
}

// ProposalRequest carries everything the reasoner is allowed to see.
type ProposalRequest struct {
	Query            string
	CurrentURL       string
	PageHTML         string
	ScreenshotPath   string
	MemoryContext    string
	BannedSignatures []string
	Step             int
	MaxSteps         int
}

// Proposal is the reasoner's answer for one step.
type Proposal struct {
	Thought string
	Action  Action
}

// UserInputGate is the suspend/resume boundary for operator-supplied input.
// Implementations must guarantee exactly-once delivery: after Await returns
// a value, a duplicate submission for the same job must not resume anything.
type UserInputGate interface {
	// Request publishes a pending input request for the job.
	Request(jobID string, req schemas.UserInputRequest) error
	// Await blocks until a response arrives or the timeout elapses.
	Await(ctx context.Context, jobID string, timeout time.Duration) (string, error)
	// Clear drops any pending request or undelivered response for the job.
	Clear(jobID string)
}
