package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/agentpi/agentpi-go/internal/connect"
	"github.com/agentpi/agentpi-go/internal/discovery"
	"github.com/agentpi/agentpi-go/internal/server"
	"github.com/agentpi/agentpi-go/internal/store"
	"github.com/agentpi/agentpi-go/internal/tool"
	"github.com/agentpi/agentpi-go/internal/types"
	"github.com/agentpi/agentpi-go/internal/verify"
)

func main() {
	issuerURL := envOr("AGENTPI_ISSUER_URL", "http://localhost:4010")
	toolID := envOr("AGENTPI_TOOL_ID", "tool_example")

	maxScopes := []string{"read", "deploy", "write"}
	maxLimits := types.Limits{RPM: 120, DailyQuota: 1000, Concurrency: 5}

	deps := server.ToolDeps{
		Connect: connect.Config{
			ToolID:    toolID,
			Issuer:    issuerURL,
			JWKSURL:   strings.TrimRight(issuerURL, "/") + "/.well-known/jwks.json",
			PlanID:    "free",
			MaxScopes: maxScopes,
			MaxLimits: maxLimits,
		},
		Discovery: discovery.Config{
			ToolID:                toolID,
			ToolName:              envOr("AGENTPI_TOOL_NAME", "Example Tool"),
			ConnectEndpoint:       types.ConnectEndpoint,
			PlanID:                "free",
			MaxScopes:             maxScopes,
			MaxLimits:             maxLimits,
			IdempotencyHeader:     types.IdempotencyHeader,
			IdempotencyTTLSeconds: types.IdempotencyTTLSeconds,
		},
		Verifier:  verify.New(),
		JtiStore:  store.NewMemoryJtiStore(),
		IdemStore: store.NewMemoryIdempotencyStore(),
		Registry:  tool.NewRegistry(),
	}

	addr := envOr("AGENTPI_TOOL_ADDR", ":4011")
	log.Printf("tool %s listening on %s", toolID, addr)
	log.Fatal(http.ListenAndServe(addr, server.BuildToolRouter(deps)))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
