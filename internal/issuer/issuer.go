// Package issuer implements the authority side of the protocol:
// validating grant requests from pre-authenticated agents and minting
// signed connect grants.
package issuer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentpi/agentpi-go/internal/keys"
	"github.com/agentpi/agentpi-go/internal/protocol"
	"github.com/agentpi/agentpi-go/internal/types"
)

type Config struct {
	Issuer   string
	ToolID   string
	AgentKey string

	// OrgID and AgentSubject identify the demo tenant this issuer
	// serves. A production issuer would resolve both from the agent
	// credential.
	OrgID        string
	AgentSubject string

	GrantTTL time.Duration
}

type Issuer struct {
	cfg    Config
	keys   *keys.Manager
	newJTI func() string
}

func New(cfg Config, km *keys.Manager) *Issuer {
	if cfg.OrgID == "" {
		cfg.OrgID = "org_demo"
	}
	if cfg.AgentSubject == "" {
		cfg.AgentSubject = "agent_demo"
	}
	if cfg.GrantTTL <= 0 {
		cfg.GrantTTL = types.GrantTTLSeconds * time.Second
	}
	return &Issuer{cfg: cfg, keys: km, newJTI: uuid.NewString}
}

// ValidateAgentKey checks the pre-shared agent credential.
func (i *Issuer) ValidateAgentKey(key string) error {
	if key == "" || key != i.cfg.AgentKey {
		return protocol.Unauthorized("Invalid agent API key")
	}
	return nil
}

// Issue validates req, builds the claim set, and signs it into a
// connect grant with the fixed protocol TTL.
func (i *Issuer) Issue(req types.ConnectGrantRequest) (*types.ConnectGrantResponse, error) {
	if req.ToolID != i.cfg.ToolID {
		return nil, protocol.Forbidden(fmt.Sprintf("Unknown tool_id: %s", req.ToolID))
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	jti := i.newJTI()
	claim := types.Claim{
		OrgID:           i.cfg.OrgID,
		ToolID:          req.ToolID,
		Mode:            types.ModeAutonomous,
		RequestedPlanID: "free",
		Scopes:          req.RequestedScopes,
		Limits:          req.RequestedLimits,
		Workspace:       req.Workspace,
		Nonce:           req.Nonce,
	}

	token, err := i.keys.Sign(map[string]any{
		"iss":     i.cfg.Issuer,
		"aud":     req.ToolID,
		"sub":     i.cfg.AgentSubject,
		"jti":     jti,
		"agentpi": claim,
	}, i.cfg.GrantTTL)
	if err != nil {
		return nil, fmt.Errorf("sign connect grant: %w", err)
	}

	return &types.ConnectGrantResponse{
		ConnectGrant: token,
		ExpiresIn:    int64(i.cfg.GrantTTL.Seconds()),
	}, nil
}

func validate(req types.ConnectGrantRequest) error {
	bad := func(field, msg string) error {
		return protocol.BadRequest(msg, map[string]any{"field": field})
	}
	if len(req.RequestedScopes) == 0 {
		return bad("requested_scopes", "requested_scopes must be a non-empty array")
	}
	if req.RequestedLimits.RPM <= 0 || req.RequestedLimits.DailyQuota <= 0 || req.RequestedLimits.Concurrency <= 0 {
		return bad("requested_limits", "requested_limits fields rpm, dailyQuota and concurrency must be positive integers")
	}
	if req.Workspace.Name == "" {
		return bad("workspace", "workspace.name must be a non-empty string")
	}
	if req.Nonce == "" {
		return bad("nonce", "nonce must be a non-empty string")
	}
	return nil
}
