package cli

import (
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Starts issuer and tool together for local development.
func cmdRun() *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Start issuer and example tool in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if agentKey != "" {
				cfg.AgentKey = agentKey
			}

			issuerHandler, err := newIssuerHandler(cfg)
			if err != nil {
				return err
			}
			toolHandler := newToolHandler(cfg)

			g, _ := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				slog.Info("issuer listening", "addr", cfg.IssuerAddr)
				return http.ListenAndServe(cfg.IssuerAddr, issuerHandler)
			})
			g.Go(func() error {
				slog.Info("tool listening", "addr", cfg.ToolAddr)
				return http.ListenAndServe(cfg.ToolAddr, toolHandler)
			})
			return g.Wait()
		},
	}
	return c
}
