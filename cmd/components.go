// -- cmd/components.go --
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/captcha"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/jobs"
	"github.com/xkilldash9x/webpilot/internal/llmclient"
	"github.com/xkilldash9x/webpilot/internal/server"
)

// components bundles everything a mission needs. Both the one-shot run
// command and the HTTP server build the same stack.
type components struct {
	Store    jobs.Store
	Gate     *jobs.InputGate
	Hub      *server.Hub
	Runner   *server.Runner
	Launcher *browser.Launcher

	pool *pgxpool.Pool
}

func initializeComponents(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*components, error) {
	c := &components{}

	store, pool, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Store = store
	c.pool = pool

	llm, err := llmclient.NewClient(cfg.LLM(), logger)
	if err != nil {
		c.Shutdown()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	launcher, err := browser.NewLauncher(logger, cfg.Browser())
	if err != nil {
		c.Shutdown()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	c.Launcher = launcher

	c.Gate = jobs.NewInputGate(logger)
	c.Hub = server.NewHub(logger, c.Store)
	solver := captcha.New(cfg.Captcha(), logger)
	c.Runner = server.NewRunner(logger, launcher, llm, solver, c.Gate, c.Store, c.Hub, cfg)
	return c, nil
}

func buildStore(ctx context.Context, cfg config.Interface, logger *zap.Logger) (jobs.Store, *pgxpool.Pool, error) {
	jobsCfg := cfg.Jobs()
	switch jobsCfg.Store {
	case "postgres":
		pool, err := pgxpool.New(ctx, jobsCfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		store, err := jobs.NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		logger.Info("Using postgres job store")
		return store, pool, nil
	default:
		logger.Info("Using in-memory job store")
		return jobs.NewMemoryStore(), nil, nil
	}
}

func (c *components) Shutdown() {
	if c.Launcher != nil {
		_ = c.Launcher.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
}
