// Package connect orchestrates the full connect handshake: grant
// verification, idempotent response caching, replay prevention,
// scope/limit negotiation, and the external provisioning callback.
package connect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/agentpi/agentpi-go/internal/httpx"
	"github.com/agentpi/agentpi-go/internal/negotiate"
	"github.com/agentpi/agentpi-go/internal/protocol"
	"github.com/agentpi/agentpi-go/internal/store"
	"github.com/agentpi/agentpi-go/internal/types"
	"github.com/agentpi/agentpi-go/internal/verify"
)

// Provisioner performs the tool's durable side effects: workspace and
// credential creation. It is the only step with external effects and
// runs at-least-once across retries that crash before commit, so
// implementations should be idempotent on (org, agent).
type Provisioner func(ctx context.Context, pc types.ProvisionContext) (*types.ProvisionResult, error)

type Config struct {
	ToolID  string
	Issuer  string
	JWKSURL string

	PlanID    string
	MaxScopes []string
	MaxLimits types.Limits

	IdempotencyHeader string
	IdempotencyTTL    time.Duration
}

// Handshake is the connect endpoint handler. Each request runs the
// gate sequence; any gate failure aborts immediately with no further
// side effects.
type Handshake struct {
	cfg       Config
	verifier  *verify.Verifier
	jtis      store.JtiStore
	idem      store.IdempotencyStore
	provision Provisioner

	now func() time.Time
}

func NewHandshake(cfg Config, v *verify.Verifier, jtis store.JtiStore, idem store.IdempotencyStore, provision Provisioner) *Handshake {
	if cfg.IdempotencyHeader == "" {
		cfg.IdempotencyHeader = types.IdempotencyHeader
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = types.IdempotencyTTLSeconds * time.Second
	}
	if cfg.PlanID == "" {
		cfg.PlanID = "free"
	}
	return &Handshake{
		cfg:       cfg,
		verifier:  v,
		jtis:      jtis,
		idem:      idem,
		provision: provision,
		now:       time.Now,
	}
}

func (h *Handshake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := h.run(r)
	if err != nil {
		httpx.WriteAPIError(w, err)
		return
	}
	httpx.WriteRaw(w, http.StatusOK, body)
}

// run walks the gates in order and returns the serialized result. The
// returned bytes are either freshly committed or replayed verbatim
// from the idempotency store.
func (h *Handshake) run(r *http.Request) ([]byte, error) {
	ctx := r.Context()

	token, ok := httpx.ExtractBearer(r.Header.Get("Authorization"))
	if !ok {
		return nil, protocol.Unauthorized("Missing Authorization Bearer token")
	}

	idemKey := r.Header.Get(h.cfg.IdempotencyHeader)
	if idemKey == "" {
		return nil, protocol.MissingIdempotencyKey(h.cfg.IdempotencyHeader)
	}

	grant, err := h.verifier.Verify(ctx, token, h.cfg.JWKSURL, h.cfg.Issuer, h.cfg.ToolID)
	if err != nil {
		return nil, err
	}
	claim := grant.Claim

	hash, err := fingerprint(claim)
	if err != nil {
		return nil, fmt.Errorf("fingerprint request: %w", err)
	}

	existing, err := h.idem.Get(ctx, idemKey, claim.OrgID, h.cfg.ToolID)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	if existing != nil {
		if existing.RequestHash != hash {
			return nil, protocol.IdempotencyConflict()
		}
		// Replay of a successful request: cached bytes, verbatim.
		return existing.ResponseJSON, nil
	}

	if err := h.jtis.Add(ctx, grant.JTI, time.Unix(grant.Exp, 0)); err != nil {
		if errors.Is(err, store.ErrJTIUsed) {
			return nil, protocol.Replay()
		}
		return nil, fmt.Errorf("admit jti: %w", err)
	}

	appliedScopes, err := negotiate.ValidateScopes(claim.Scopes, h.cfg.MaxScopes)
	if err != nil {
		return nil, err
	}
	appliedLimits := negotiate.ClampLimits(claim.Limits, h.cfg.MaxLimits)

	provisioned, err := h.provision(ctx, types.ProvisionContext{
		OrgID:           claim.OrgID,
		AgentID:         grant.Sub,
		RequestedScopes: appliedScopes,
		RequestedLimits: appliedLimits,
		Workspace:       claim.Workspace,
		GrantJTI:        grant.JTI,
		GrantExp:        grant.Exp,
	})
	if err != nil {
		return nil, fmt.Errorf("provision: %w", err)
	}

	result := types.ConnectResult{
		Status:          "active",
		ToolWorkspaceID: provisioned.WorkspaceID,
		ToolAgentID:     provisioned.AgentID,
		Credentials:     types.Credentials{Type: "api_key", APIKey: provisioned.APIKey},
		AppliedPlanID:   h.cfg.PlanID,
		AppliedScopes:   appliedScopes,
		AppliedLimits:   appliedLimits,
	}
	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	entry := store.IdempotencyEntry{
		RequestHash:  hash,
		ResponseJSON: body,
		ExpiresAt:    h.now().Add(h.cfg.IdempotencyTTL),
	}
	if err := h.idem.Set(ctx, idemKey, claim.OrgID, h.cfg.ToolID, entry); err != nil {
		return nil, fmt.Errorf("idempotency commit: %w", err)
	}

	return body, nil
}

// fingerprint hashes the semantically relevant claim fields. This, not
// the raw idempotency key, is what detects conflicting key reuse.
func fingerprint(c types.Claim) (string, error) {
	b, err := json.Marshal(struct {
		OrgID     string             `json:"orgId"`
		ToolID    string             `json:"toolId"`
		Scopes    []string           `json:"scopes"`
		Limits    types.Limits       `json:"limits"`
		Workspace types.WorkspaceRef `json:"workspace"`
		Nonce     string             `json:"nonce"`
	}{c.OrgID, c.ToolID, c.Scopes, c.Limits, c.Workspace, c.Nonce})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
