package cli

import (
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
)

// Starts the example tool.
func cmdTool() *cobra.Command {
	var addr string

	c := &cobra.Command{
		Use:   "tool",
		Short: "Start the example tool (discovery + connect + deploy)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ToolAddr = addr
			}

			slog.Info("tool listening", "addr", cfg.ToolAddr, "tool", cfg.ToolID)
			return http.ListenAndServe(cfg.ToolAddr, newToolHandler(cfg))
		},
	}
	c.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :4011)")
	return c
}
