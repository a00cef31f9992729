package cli

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/agentpi/agentpi-go/internal/connect"
	"github.com/agentpi/agentpi-go/internal/discovery"
	"github.com/agentpi/agentpi-go/internal/issuer"
	"github.com/agentpi/agentpi-go/internal/keys"
	"github.com/agentpi/agentpi-go/internal/server"
	"github.com/agentpi/agentpi-go/internal/store"
	"github.com/agentpi/agentpi-go/internal/tool"
	"github.com/agentpi/agentpi-go/internal/types"
	"github.com/agentpi/agentpi-go/internal/verify"
)

func newIssuerHandler(cfg *Config) (http.Handler, error) {
	km, err := keys.Open(cfg.KeysDir)
	if err != nil {
		return nil, fmt.Errorf("open key store: %w", err)
	}

	iss := issuer.New(issuer.Config{
		Issuer:   cfg.IssuerURL,
		ToolID:   cfg.ToolID,
		AgentKey: cfg.AgentKey,
	}, km)

	return server.BuildIssuerRouter(server.IssuerDeps{Keys: km, Issuer: iss}), nil
}

func newToolHandler(cfg *Config) http.Handler {
	jwksURL := strings.TrimRight(cfg.IssuerURL, "/") + "/.well-known/jwks.json"

	deps := server.ToolDeps{
		Connect: connect.Config{
			ToolID:    cfg.ToolID,
			Issuer:    cfg.IssuerURL,
			JWKSURL:   jwksURL,
			PlanID:    "free",
			MaxScopes: cfg.MaxScopes,
			MaxLimits: cfg.MaxLimits(),
		},
		Discovery: discovery.Config{
			ToolID:                cfg.ToolID,
			ToolName:              cfg.ToolName,
			ConnectEndpoint:       types.ConnectEndpoint,
			PlanID:                "free",
			MaxScopes:             cfg.MaxScopes,
			MaxLimits:             cfg.MaxLimits(),
			IdempotencyHeader:     types.IdempotencyHeader,
			IdempotencyTTLSeconds: types.IdempotencyTTLSeconds,
		},
		Verifier:  verify.New(),
		JtiStore:  store.NewMemoryJtiStore(),
		IdemStore: store.NewMemoryIdempotencyStore(),
		Registry:  tool.NewRegistry(),
	}
	return server.BuildToolRouter(deps)
}
