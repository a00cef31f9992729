package cli

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

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

func newDemoStack(t *testing.T) (toolURL, issuerURL string) {
	t.Helper()

	km, err := keys.Open(t.TempDir())
	if err != nil {
		t.Fatalf("keys: %v", err)
	}

	var issuerHandler http.Handler
	issuerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		issuerHandler.ServeHTTP(w, r)
	}))
	t.Cleanup(issuerSrv.Close)

	iss := issuer.New(issuer.Config{
		Issuer:   issuerSrv.URL,
		ToolID:   "tool_example",
		AgentKey: "agentpi_dev_key_12345",
	}, km)
	issuerHandler = server.BuildIssuerRouter(server.IssuerDeps{Keys: km, Issuer: iss})

	maxScopes := []string{"read", "deploy", "write"}
	maxLimits := types.Limits{RPM: 120, DailyQuota: 1000, Concurrency: 5}
	toolSrv := httptest.NewServer(server.BuildToolRouter(server.ToolDeps{
		Connect: connect.Config{
			ToolID:    "tool_example",
			Issuer:    issuerSrv.URL,
			JWKSURL:   issuerSrv.URL + "/.well-known/jwks.json",
			PlanID:    "free",
			MaxScopes: maxScopes,
			MaxLimits: maxLimits,
		},
		Discovery: discovery.Config{
			ToolID:    "tool_example",
			ToolName:  "Example Tool",
			PlanID:    "free",
			MaxScopes: maxScopes,
			MaxLimits: maxLimits,
		},
		Verifier:  verify.New(),
		JtiStore:  store.NewMemoryJtiStore(),
		IdemStore: store.NewMemoryIdempotencyStore(),
		Registry:  tool.NewRegistry(),
	}))
	t.Cleanup(toolSrv.Close)

	return toolSrv.URL, issuerSrv.URL
}

func TestRunDemo_Succeeds(t *testing.T) {
	toolURL, issuerURL := newDemoStack(t)

	err := runDemo(toolURL, issuerURL, "agentpi_dev_key_12345", "Demo Workspace",
		[]string{"read", "deploy"}, types.Limits{RPM: 60, DailyQuota: 500, Concurrency: 1})
	if err != nil {
		t.Fatalf("runDemo: %v", err)
	}
}

func TestRunDemo_FailsOnBadAgentKey(t *testing.T) {
	toolURL, issuerURL := newDemoStack(t)

	err := runDemo(toolURL, issuerURL, "wrong-key", "Demo Workspace",
		[]string{"read", "deploy"}, types.Limits{RPM: 60, DailyQuota: 500, Concurrency: 1})
	if err == nil {
		t.Fatal("expected error on rejected grant request")
	}
	if !strings.Contains(err.Error(), "HTTP 401") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunDemo_FailsOnRejectedScopes(t *testing.T) {
	toolURL, issuerURL := newDemoStack(t)

	err := runDemo(toolURL, issuerURL, "agentpi_dev_key_12345", "Demo Workspace",
		[]string{"read", "scope_the_tool_never_offered"}, types.Limits{RPM: 60, DailyQuota: 500, Concurrency: 1})
	if err == nil {
		t.Fatal("expected error on rejected connect")
	}
	if !strings.Contains(err.Error(), "HTTP 403") {
		t.Fatalf("err = %v", err)
	}
}
