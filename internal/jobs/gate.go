// internal/jobs/gate.go
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
)

// ErrNoPendingRequest is returned when a response arrives for a job that is
// not waiting on input.
var ErrNoPendingRequest = errors.New("no pending input request for job")

// ErrInputTimeout is returned when the operator never answers.
var ErrInputTimeout = errors.New("timed out waiting for user input")

type pendingInput struct {
	req schemas.UserInputRequest
	// Buffered with capacity 1 so Respond never blocks on a slow mission.
	answer chan string
}

// InputGate mediates between a suspended mission and the HTTP layer. A
// delivered answer consumes the pending entry, so a duplicate submission
// for the same job cannot resume anything twice.
type InputGate struct {
	mu      sync.Mutex
	pending map[string]*pendingInput
	log     *zap.Logger
}

var _ agent.UserInputGate = (*InputGate)(nil)

func NewInputGate(logger *zap.Logger) *InputGate {
	return &InputGate{
		pending: make(map[string]*pendingInput),
		log:     logger.Named("input_gate"),
	}
}

// Request publishes a pending input request. A second request for the same
// job replaces the first; the earlier waiter, if any, is abandoned.
func (g *InputGate) Request(jobID string, req schemas.UserInputRequest) error {
	if jobID == "" {
		return errors.New("job ID is required")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending[jobID] = &pendingInput{req: req, answer: make(chan string, 1)}
	// The prompt is safe to log; the eventual value never is.
	g.log.Info("User input requested",
		zap.String("job_id", jobID),
		zap.String("input_type", req.InputType),
		zap.Bool("sensitive", req.Sensitive))
	return nil
}

// Await blocks until the operator responds, the timeout elapses, or the
// context is cancelled. The pending entry is removed on every exit path.
func (g *InputGate) Await(ctx context.Context, jobID string, timeout time.Duration) (string, error) {
	g.mu.Lock()
	entry, ok := g.pending[jobID]
	g.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoPendingRequest, jobID)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case value := <-entry.answer:
		g.remove(jobID, entry)
		return value, nil
	case <-timer.C:
		g.remove(jobID, entry)
		return "", fmt.Errorf("%w after %s", ErrInputTimeout, timeout)
	case <-ctx.Done():
		g.remove(jobID, entry)
		return "", ctx.Err()
	}
}

// Respond delivers the operator's answer to the waiting mission.
func (g *InputGate) Respond(jobID, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.pending[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPendingRequest, jobID)
	}
	select {
	case entry.answer <- value:
		g.log.Info("User input received", zap.String("job_id", jobID))
		return nil
	default:
		return fmt.Errorf("input for job %s already submitted", jobID)
	}
}

// Pending returns the outstanding request for a job, if any. The HTTP layer
// uses it to tell the operator what the mission is waiting on.
func (g *InputGate) Pending(jobID string) (*schemas.UserInputRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.pending[jobID]
	if !ok {
		return nil, false
	}
	req := entry.req
	return &req, true
}

// Clear drops any pending request or undelivered response for the job.
func (g *InputGate) Clear(jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, jobID)
}

// remove deletes the entry only if it is still the current one; a replacement
// request issued in the meantime is left alone.
func (g *InputGate) remove(jobID string, entry *pendingInput) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.pending[jobID]; ok && current == entry {
		delete(g.pending, jobID)
	}
}
