package cli

import (
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
)

// Starts the issuing authority.
func cmdIssuer() *cobra.Command {
	var addr string

	c := &cobra.Command{
		Use:   "issuer",
		Short: "Start the AgentPI issuer (grants + JWKS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if agentKey != "" {
				cfg.AgentKey = agentKey
			}
			if addr != "" {
				cfg.IssuerAddr = addr
			}

			h, err := newIssuerHandler(cfg)
			if err != nil {
				return err
			}

			slog.Info("issuer listening", "addr", cfg.IssuerAddr, "issuer", cfg.IssuerURL)
			return http.ListenAndServe(cfg.IssuerAddr, h)
		},
	}
	c.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :4010)")
	return c
}
