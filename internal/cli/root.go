package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	issuerBaseURL string
	toolBaseURL   string
	agentKey      string
	showCurl      bool
	cfgPath       string
)

var rootCmd = &cobra.Command{
	Use:   "agentpi",
	Short: "AgentPI connect-grant servers and developer CLI",
}

func Execute() error { return rootCmd.Execute() }

func init() {
	home, _ := os.UserHomeDir()
	defaultCfg := filepath.Join(home, ".agentpi", "config.yaml")

	rootCmd.PersistentFlags().StringVar(&issuerBaseURL, "issuer-url", "http://localhost:4010", "AgentPI issuer base URL")
	rootCmd.PersistentFlags().StringVar(&toolBaseURL, "tool-url", "http://localhost:4011", "tool base URL")
	rootCmd.PersistentFlags().StringVar(&agentKey, "agent-key", "", "agent API key (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&showCurl, "show-curl", false, "print equivalent curl for networked commands")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultCfg, "config file path")

	rootCmd.AddCommand(cmdIssuer(), cmdTool(), cmdRun(), cmdDemo(), cmdVerify(), cmdVersion())

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		fmt.Println("Use -h for help, for example: agentpi run")
	}
}
