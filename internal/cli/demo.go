package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentpi/agentpi-go/internal/types"
)

// Runs the full agent flow against a live issuer and tool: discover,
// obtain a grant, redeem it, then call the tool with the issued key.
func cmdDemo() *cobra.Command {
	var workspace string
	var scopes []string
	var rpm, daily, concurrency int

	c := &cobra.Command{
		Use:   "demo",
		Short: "Run the end-to-end connect flow against a running issuer and tool",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			key := cfg.AgentKey
			if agentKey != "" {
				key = agentKey
			}
			return runDemo(toolBaseURL, issuerBaseURL, key, workspace, scopes,
				types.Limits{RPM: rpm, DailyQuota: daily, Concurrency: concurrency})
		},
	}
	c.Flags().StringVar(&workspace, "workspace", "Demo Workspace", "workspace name to provision")
	c.Flags().StringSliceVar(&scopes, "scopes", []string{"read", "deploy"}, "scopes to request")
	c.Flags().IntVar(&rpm, "rpm", 60, "requested requests per minute")
	c.Flags().IntVar(&daily, "daily", 500, "requested daily quota")
	c.Flags().IntVar(&concurrency, "concurrency", 1, "requested concurrency")
	return c
}

func runDemo(toolURL, issuerURL, key, workspace string, scopes []string, limits types.Limits) error {
	fmt.Printf("Discovering tool at %s...\n", toolURL)
	doc, err := fetchDiscovery(toolURL)
	if err != nil {
		return err
	}
	fmt.Printf("  tool: %s (%s)\n", doc.ToolName, doc.ToolID)
	fmt.Printf("  plan: %s, scopes allowed: %s\n", doc.DefaultPlanID, strings.Join(doc.Plans[0].ScopesAllowed, ", "))

	fmt.Println("\nRequesting connect grant...")
	grant, code, raw, err := requestGrant(issuerURL, key, types.ConnectGrantRequest{
		ToolID:          doc.ToolID,
		RequestedScopes: scopes,
		RequestedLimits: limits,
		Workspace:       types.WorkspaceRef{Name: workspace},
		Nonce:           newNonce(),
	})
	if err != nil {
		return err
	}
	if grant == nil {
		_ = printJSON(raw)
		return fmt.Errorf("grant request failed: HTTP %d", code)
	}
	fmt.Printf("  grant issued (expires in %ds)\n", grant.ExpiresIn)

	idemKey := uuid.NewString()
	fmt.Printf("\nConnecting (%s: %s)...\n", doc.Idempotency.Header, idemKey)
	code, body, err := postConnect(toolURL, doc, grant.ConnectGrant, idemKey)
	if err != nil {
		return err
	}
	if code != 200 {
		_ = printJSON(body)
		return fmt.Errorf("connect failed: HTTP %d", code)
	}
	var result types.ConnectResult
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode connect result: %w", err)
	}
	fmt.Printf("  workspace: %s\n", result.ToolWorkspaceID)
	fmt.Printf("  agent:     %s\n", result.ToolAgentID)
	fmt.Printf("  api key:   %s\n", result.Credentials.APIKey)
	fmt.Printf("  scopes:    %s\n", strings.Join(result.AppliedScopes, ", "))
	fmt.Printf("  limits:    rpm=%d daily=%d concurrency=%d\n",
		result.AppliedLimits.RPM, result.AppliedLimits.DailyQuota, result.AppliedLimits.Concurrency)

	fmt.Println("\nCalling tool API with the issued credential...")
	b, code, err := httpDoJSON("POST", strings.TrimRight(toolURL, "/")+"/deploy", nil, map[string]string{
		"Authorization": "Bearer " + result.Credentials.APIKey,
	})
	if err != nil {
		return err
	}
	if code != 200 {
		_ = printJSON(b)
		return fmt.Errorf("tool call failed: HTTP %d", code)
	}
	fmt.Printf("HTTP %d\n", code)
	return printJSON(b)
}
