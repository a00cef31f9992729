// Package server wires the issuer and tool HTTP surfaces onto chi
// routers with the shared middleware stack.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agentpi/agentpi-go/internal/connect"
	"github.com/agentpi/agentpi-go/internal/discovery"
	"github.com/agentpi/agentpi-go/internal/handlers"
	"github.com/agentpi/agentpi-go/internal/issuer"
	"github.com/agentpi/agentpi-go/internal/keys"
	"github.com/agentpi/agentpi-go/internal/mw"
	"github.com/agentpi/agentpi-go/internal/store"
	"github.com/agentpi/agentpi-go/internal/tool"
	"github.com/agentpi/agentpi-go/internal/types"
	"github.com/agentpi/agentpi-go/internal/verify"
)

type IssuerDeps struct {
	Keys   *keys.Manager
	Issuer *issuer.Issuer
}

// BuildIssuerRouter serves grant issuance and JWKS publication.
func BuildIssuerRouter(d IssuerDeps) http.Handler {
	r := chi.NewRouter()
	baseline(r)

	grants := handlers.NewGrantsHandler(d.Issuer)
	jwks := handlers.NewJWKSHandler(d.Keys)

	r.Get("/healthz", handlers.Healthz)
	r.Get("/version", handlers.Version)

	r.Post("/v1/connect-grants", grants.ServeHTTP)
	r.With(mw.NoStore).Get("/.well-known/jwks.json", jwks.ServeHTTP)

	return r
}

type ToolDeps struct {
	Connect   connect.Config
	Discovery discovery.Config
	Verifier  *verify.Verifier
	JtiStore  store.JtiStore
	IdemStore store.IdempotencyStore
	Registry  *tool.Registry
}

// BuildToolRouter serves discovery, the connect handshake, and the
// demo deploy endpoint.
func BuildToolRouter(d ToolDeps) http.Handler {
	r := chi.NewRouter()
	baseline(r)

	handshake := connect.NewHandshake(d.Connect, d.Verifier, d.JtiStore, d.IdemStore, d.Registry.Provision)

	r.Get("/healthz", handlers.Healthz)
	r.Get("/version", handlers.Version)

	endpoint := d.Discovery.ConnectEndpoint
	if endpoint == "" {
		endpoint = types.ConnectEndpoint
	}

	r.With(mw.NoStore).Get(types.DiscoveryPath, discovery.Handler(d.Discovery))
	r.Post(endpoint, handshake.ServeHTTP)
	r.Post("/deploy", tool.DeployHandler(d.Registry))

	return r
}

func baseline(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", types.IdempotencyHeader, types.AgentKeyHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(mw.Trace())
	r.Use(mw.Logger(mw.LogOpts{
		SkipPaths:     []string{"/healthz", "/version"},
		RedactHeaders: []string{"Authorization", types.AgentKeyHeader},
	}))
}
