package main

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/agentpi/agentpi-go/internal/issuer"
	"github.com/agentpi/agentpi-go/internal/keys"
	"github.com/agentpi/agentpi-go/internal/server"
	"github.com/agentpi/agentpi-go/internal/types"
)

func main() {
	km, err := keys.Open(keysDir())
	if err != nil {
		// Partial key state is fatal: regenerating would invalidate
		// outstanding grants without warning.
		log.Fatalf("key startup: %v", err)
	}

	iss := issuer.New(issuer.Config{
		Issuer:   envOr("AGENTPI_ISSUER_URL", "http://localhost:4010"),
		ToolID:   envOr("AGENTPI_TOOL_ID", "tool_example"),
		AgentKey: envOr("AGENTPI_AGENT_KEY", "agentpi_dev_key_12345"),
		GrantTTL: types.GrantTTLSeconds * time.Second,
	}, km)

	h := server.BuildIssuerRouter(server.IssuerDeps{Keys: km, Issuer: iss})

	addr := envOr("AGENTPI_ISSUER_ADDR", ":4010")
	log.Printf("issuer listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, h))
}

func keysDir() string {
	if v := os.Getenv("AGENTPI_KEYS_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", ".agentpi", "keys")
	}
	return filepath.Join(home, ".agentpi", "keys")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
