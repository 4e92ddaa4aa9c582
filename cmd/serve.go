// -- cmd/serve.go --
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/observability"
	"github.com/xkilldash9x/webpilot/internal/server"
)

// newServeCmd creates the `serve` command: the long-running job API.
func newServeCmd() *cobra.Command {
	var addr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP job API for submitting and streaming search missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := appConfig

			if addr != "" {
				cfg.SetServerAddr(addr)
			}

			comps, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Shutdown()

			srv := server.New(logger, comps.Store, comps.Gate, comps.Hub, comps.Runner, cfg)

			logger.Info("Job API starting", zap.String("addr", cfg.Server().Addr))
			return srv.ListenAndServe(ctx)
		},
	}

	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return serveCmd
}
