// -- cmd/run.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

// newRunCmd creates the `run` command: a single mission without the HTTP
// server, results printed to stdout.
func newRunCmd() *cobra.Command {
	var (
		query    string
		topK     int
		maxSteps int
		headless bool
	)

	runCmd := &cobra.Command{
		Use:   "run [url]",
		Short: "Runs a single search mission against a URL and prints the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := appConfig

			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("--query is required")
			}
			url := args[0]
			if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
				url = "https://" + url
			}

			cfg.SetBrowserHeadless(headless)
			agentCfg := cfg.Agent()
			if topK <= 0 {
				topK = agentCfg.DefaultTopK
			}
			if maxSteps <= 0 || maxSteps > agentCfg.MaxSteps {
				maxSteps = agentCfg.MaxSteps
			}

			comps, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Shutdown()

			rec := schemas.JobRecord{
				ID:       uuid.NewString(),
				Query:    query,
				URL:      url,
				TopK:     topK,
				MaxSteps: maxSteps,
				State:    schemas.JobPending,
			}
			if err := comps.Store.Create(ctx, rec); err != nil {
				return fmt.Errorf("failed to create job record: %w", err)
			}

			logger.Info("Starting mission",
				zap.String("job_id", rec.ID),
				zap.String("url", rec.URL),
				zap.Int("top_k", rec.TopK),
				zap.Int("max_steps", rec.MaxSteps))

			comps.Runner.Run(ctx, rec)

			final, err := comps.Store.Get(context.WithoutCancel(ctx), rec.ID)
			if err != nil {
				return fmt.Errorf("failed to load final job state: %w", err)
			}
			if final.State != schemas.JobCompleted || final.Result == nil {
				return fmt.Errorf("mission did not complete (state: %s)", final.State)
			}

			enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(final.Result)
		},
	}

	runCmd.Flags().StringVarP(&query, "query", "q", "", "what to search for (required)")
	runCmd.Flags().IntVar(&topK, "top-k", 0, "stop after this many results (default from config)")
	runCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "hard step ceiling for the mission (default from config)")
	runCmd.Flags().BoolVar(&headless, "headless", true, "run the browser headless")
	_ = runCmd.MarkFlagRequired("query")

	return runCmd
}
