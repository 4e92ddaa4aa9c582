// internal/agent/agent.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Mission describes one end-to-end run of the loop against one target.
type Mission struct {
	JobID    string
	Query    string
	URL      string
	TopK     int
	MaxSteps int
}

// Agent owns the full decision loop for a single mission: navigate, reason,
// execute, verify, decide. One agent = one mission = one page = one
// goroutine; nothing here is shared.
type Agent struct {
	logger     *zap.Logger
	page       schemas.Page
	reasoner   Reasoner
	executor   *Executor
	supervisor *Supervisor
	sink       schemas.StatusSink
	navTimeout time.Duration
}

// NewAgent assembles the loop. sink may be nil for headless library use.
func NewAgent(
	logger *zap.Logger,
	page schemas.Page,
	reasoner Reasoner,
	executor *Executor,
	supervisor *Supervisor,
	sink schemas.StatusSink,
	navTimeout time.Duration,
) *Agent {
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}
	return &Agent{
		logger:     logger.Named("agent"),
		page:       page,
		reasoner:   reasoner,
		executor:   executor,
		supervisor: supervisor,
		sink:       sink,
		navTimeout: navTimeout,
	}
}

// RunMission executes the loop to completion. The returned MissionResult is
// populated even on error so partial results and the audit trail survive an
// infrastructure abort.
func (a *Agent) RunMission(ctx context.Context, mission Mission) (*MissionResult, error) {
	mem := NewMissionState(mission.JobID, mission.Query, mission.MaxSteps, mission.TopK)
	start := time.Now().UTC()

	a.push(mission.JobID, "job_started", map[string]interface{}{
		"query": mission.Query, "url": mission.URL,
	})

	a.push(mission.JobID, "navigating", map[string]interface{}{"url": mission.URL})
	if err := a.navigate(ctx, mission.URL); err != nil {
		a.push(mission.JobID, "error", map[string]interface{}{"message": err.Error()})
		return a.finalize(mem, start, "initial navigation failed"),
			fmt.Errorf("initial navigation to %s: %w", mission.URL, err)
	}
	mem.RecordHistory("navigated to " + mission.URL)

	for {
		if err := ctx.Err(); err != nil {
			return a.finalize(mem, start, "context cancelled"), err
		}

		action := a.reason(ctx, mem)
		a.push(mission.JobID, "executing", map[string]interface{}{
			"step": mem.Step, "action": string(action.Type), "selector": action.Selector,
		})

		outcome, err := a.executor.Execute(ctx, action, mem)
		if err != nil {
			// Only infrastructure failures surface here.
			a.logger.Error("Mission aborted", zap.Error(err))
			a.push(mission.JobID, "error", map[string]interface{}{"message": err.Error()})
			return a.finalize(mem, start, "infrastructure failure"), err
		}
		a.logger.Info("Step complete",
			zap.Int("step", mem.Step-1),
			zap.String("outcome", string(outcome.Kind)),
			zap.String("signature", outcome.Signature))

		decision := a.supervisor.Decide(mem)
		if !decision.Continue {
			a.push(mission.JobID, "finished", map[string]interface{}{
				"reason": decision.Reason, "results": len(mem.Results),
			})
			return a.finalize(mem, start, decision.Reason), nil
		}
	}
}

// reason asks the external model for the next action, falling back to the
// deterministic policy table when it fails. Reasoning failures never abort.
func (a *Agent) reason(ctx context.Context, mem *MissionState) Action {
	a.push(mem.JobID, "thinking", map[string]interface{}{"step": mem.Step})

	html, err := a.page.Content(ctx)
	if err != nil {
		a.logger.Warn("Could not read page content for reasoning", zap.Error(err))
	}
	var screenshot string
	if n := len(mem.Screenshots); n > 0 {
		screenshot = mem.Screenshots[n-1]
	}

	proposal, err := a.reasoner.ProposeAction(ctx, ProposalRequest{
		Query:            mem.Query,
		CurrentURL:       a.page.URL(),
		PageHTML:         html,
		ScreenshotPath:   screenshot,
		MemoryContext:    mem.ContextSummary(),
		BannedSignatures: mem.BannedSignatures(),
		Step:             mem.Step,
		MaxSteps:         mem.MaxSteps,
	})
	if err != nil {
		fallback := FallbackAction(mem)
		mem.RecordHistory(fmt.Sprintf("EMERGENCY ACTION: reasoner failed (%v), substituting %s", err, fallback.Type))
		a.logger.Warn("Reasoner failed, using fallback action",
			zap.String("fallback", string(fallback.Type)), zap.Error(err))
		return fallback
	}
	return proposal.Action
}

func (a *Agent) navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, a.navTimeout)
	defer cancel()
	return a.page.Goto(navCtx, url)
}

func (a *Agent) finalize(mem *MissionState, start time.Time, reason string) *MissionResult {
	return &MissionResult{
		Results:     mem.Results,
		Screenshots: mem.Screenshots,
		Steps:       mem.Step,
		StopReason:  reason,
		StartTime:   start,
		EndTime:     time.Now().UTC(),
	}
}

// push forwards a status event, tolerating a nil sink.
func (a *Agent) push(jobID, event string, details map[string]interface{}) {
	if a.sink == nil {
		return
	}
	a.sink.Push(jobID, event, details)
}

// IsAborted reports whether an error from RunMission was an infrastructure
// abort rather than a context cancellation.
func IsAborted(err error) bool {
	return errors.Is(err, ErrMissionAborted)
}
