// internal/server/runner.go
package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/jobs"
)

// MissionRunner executes one job end to end. The server calls it on its own
// goroutine; implementations own all state transitions for the job.
type MissionRunner interface {
	Run(ctx context.Context, rec schemas.JobRecord)
}

// Runner is the production MissionRunner. It owns a browser launcher and the
// shared collaborators, and builds a fresh agent per mission so nothing leaks
// between jobs.
type Runner struct {
	logger   *zap.Logger
	launcher *browser.Launcher
	llm      schemas.LLMClient
	captcha  schemas.CaptchaSolver
	gate     *jobs.InputGate
	store    jobs.Store
	hub      *Hub
	cfg      config.Interface
}

var _ MissionRunner = (*Runner)(nil)

func NewRunner(
	logger *zap.Logger,
	launcher *browser.Launcher,
	llm schemas.LLMClient,
	captcha schemas.CaptchaSolver,
	gate *jobs.InputGate,
	store jobs.Store,
	hub *Hub,
	cfg config.Interface,
) *Runner {
	return &Runner{
		logger:   logger.Named("runner"),
		launcher: launcher,
		llm:      llm,
		captcha:  captcha,
		gate:     gate,
		store:    store,
		hub:      hub,
		cfg:      cfg,
	}
}

// Run drives a single job to a terminal state. Errors are folded into the
// job record; nothing propagates to the caller.
func (r *Runner) Run(ctx context.Context, rec schemas.JobRecord) {
	log := r.logger.With(zap.String("job_id", rec.ID))
	defer r.gate.Clear(rec.ID)

	if err := r.store.UpdateState(ctx, rec.ID, schemas.JobRunning); err != nil {
		log.Error("Failed to mark job running", zap.Error(err))
	}

	result, err := r.execute(ctx, rec)
	if err != nil {
		log.Warn("Mission ended with error", zap.Error(err))
		if serr := r.store.UpdateState(context.WithoutCancel(ctx), rec.ID, schemas.JobFailed); serr != nil {
			log.Error("Failed to mark job failed", zap.Error(serr))
		}
		return
	}

	payload := &schemas.ResultPayload{
		JobID:       rec.ID,
		Results:     result.Results,
		Screenshots: screenshotNames(result.Screenshots),
		Steps:       result.Steps,
		StopReason:  result.StopReason,
	}
	if serr := r.store.SetResult(context.WithoutCancel(ctx), rec.ID, payload); serr != nil {
		log.Error("Failed to store mission result", zap.Error(serr))
	}
	log.Info("Mission complete",
		zap.Int("steps", result.Steps),
		zap.Int("results", len(result.Results)),
		zap.String("stop_reason", result.StopReason))
}

func (r *Runner) execute(ctx context.Context, rec schemas.JobRecord) (*agent.MissionResult, error) {
	page, err := r.launcher.NewPage(ctx)
	if err != nil {
		r.hub.Push(rec.ID, "error", map[string]interface{}{"message": err.Error()})
		r.hub.Push(rec.ID, "finished", map[string]interface{}{"stop_reason": "browser launch failed"})
		return nil, fmt.Errorf("opening page for job %s: %w", rec.ID, err)
	}
	defer func() {
		if cerr := page.Close(context.WithoutCancel(ctx)); cerr != nil {
			r.logger.Debug("Page close failed", zap.Error(cerr))
		}
	}()

	dir, err := r.screenshotDir(rec.ID)
	if err != nil {
		r.logger.Warn("Screenshot directory unavailable, continuing without captures", zap.Error(err))
		dir = ""
	}

	agentCfg := r.cfg.Agent()
	browserCfg := r.cfg.Browser()

	validator := agent.NewSelectorValidator(r.logger, browserCfg.ActionTimeout)
	verifier := agent.NewVerifier(r.logger, dir)
	executor := agent.NewExecutor(r.logger, page, r.captcha, r.gate, r.hub, validator, verifier, agent.ExecutorConfig{
		ActionTimeout:    browserCfg.ActionTimeout,
		UserInputTimeout: agentCfg.UserInputTimeout,
	})
	reasoner := agent.NewLLMReasoner(r.logger, r.llm)
	supervisor := agent.NewSupervisor(r.logger)

	a := agent.NewAgent(r.logger, page, reasoner, executor, supervisor, r.hub, browserCfg.NavigationTimeout)
	return a.RunMission(ctx, agent.Mission{
		JobID:    rec.ID,
		Query:    rec.Query,
		URL:      rec.URL,
		TopK:     rec.TopK,
		MaxSteps: rec.MaxSteps,
	})
}

func (r *Runner) screenshotDir(jobID string) (string, error) {
	base := r.cfg.Agent().ScreenshotDir
	if base == "" {
		return "", nil
	}
	dir := filepath.Join(base, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating screenshot dir: %w", err)
	}
	return dir, nil
}

// screenshotNames strips directories so the payload carries only file names;
// the HTTP layer rebuilds paths under its own root.
func screenshotNames(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	return names
}
