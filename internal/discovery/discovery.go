// Package discovery emits a tool's static capability document. The
// document is re-derived from configuration on every read so config
// changes are visible immediately.
package discovery

import (
	"net/http"
	"strings"

	"github.com/agentpi/agentpi-go/internal/httpx"
	"github.com/agentpi/agentpi-go/internal/types"
)

type Config struct {
	ToolID          string
	ToolName        string
	ConnectEndpoint string
	PlanID          string
	MaxScopes       []string
	MaxLimits       types.Limits

	IdempotencyHeader     string
	IdempotencyTTLSeconds int64
}

// Document builds the discovery document from cfg.
func Document(cfg Config) types.DiscoveryDocument {
	if cfg.ConnectEndpoint == "" {
		cfg.ConnectEndpoint = types.ConnectEndpoint
	}
	if cfg.IdempotencyHeader == "" {
		cfg.IdempotencyHeader = types.IdempotencyHeader
	}
	if cfg.IdempotencyTTLSeconds <= 0 {
		cfg.IdempotencyTTLSeconds = types.IdempotencyTTLSeconds
	}
	if cfg.PlanID == "" {
		cfg.PlanID = "free"
	}
	return types.DiscoveryDocument{
		AgentPIVersion:  types.Version,
		ToolID:          cfg.ToolID,
		ToolName:        cfg.ToolName,
		ConnectEndpoint: cfg.ConnectEndpoint,
		Plans: []types.PlanInfo{
			{
				PlanID:        cfg.PlanID,
				MaxLimits:     cfg.MaxLimits,
				ScopesAllowed: cfg.MaxScopes,
			},
		},
		DefaultPlanID: cfg.PlanID,
		DefaultLimits: cfg.MaxLimits,
		Idempotency: types.IdempotencyInfo{
			Header:     cfg.IdempotencyHeader,
			TTLSeconds: cfg.IdempotencyTTLSeconds,
		},
	}
}

// Handler serves the document at the well-known path.
func Handler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, Document(cfg))
	}
}

// Prompt is the hint injected into 401 bodies on business endpoints so
// an unauthenticated caller learns where the discovery document lives.
type Prompt struct {
	Prompt    string `json:"prompt"`
	Discovery string `json:"discovery"`
}

func NewPrompt(baseURL string) Prompt {
	return Prompt{
		Prompt:    "Continue with AgentPI",
		Discovery: strings.TrimRight(baseURL, "/") + types.DiscoveryPath,
	}
}
