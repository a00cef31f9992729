// Package tool is the reference tool-side implementation: an
// in-memory workspace/credential registry with a provisioning callback
// for the connect handshake and API-key auth for the demo endpoint.
package tool

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/agentpi/agentpi-go/internal/types"
)

type Workspace struct {
	ID     string
	OrgID  string
	Name   string
	PlanID string
}

type Agent struct {
	ID          string
	WorkspaceID string
	ExternalID  string // the agent id asserted by the issuer (sub)
	Status      string
}

type apiKeyRecord struct {
	WorkspaceID string
	AgentID     string
	Prefix      string
	Scopes      []string
}

// Registry holds provisioned state. Upserts are keyed so provisioning
// is idempotent on (org, agent); only the API key is minted fresh per
// call, matching the at-least-once provisioning contract.
type Registry struct {
	mu         sync.Mutex
	workspaces map[string]*Workspace   // by org id
	agents     map[string]*Agent       // by workspaceID + external agent id
	keys       map[string]apiKeyRecord // by hashed secret
}

func NewRegistry() *Registry {
	return &Registry{
		workspaces: make(map[string]*Workspace),
		agents:     make(map[string]*Agent),
		keys:       make(map[string]apiKeyRecord),
	}
}

// Provision is the callback wired into the connect handshake.
func (r *Registry) Provision(ctx context.Context, pc types.ProvisionContext) (*types.ProvisionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[pc.OrgID]
	if !ok {
		ws = &Workspace{ID: "ws_" + uuid.NewString(), OrgID: pc.OrgID, PlanID: "free"}
		r.workspaces[pc.OrgID] = ws
	}
	ws.Name = pc.Workspace.Name

	agentKey := ws.ID + "/" + pc.AgentID
	ag, ok := r.agents[agentKey]
	if !ok {
		ag = &Agent{ID: "ta_" + uuid.NewString(), WorkspaceID: ws.ID, ExternalID: pc.AgentID}
		r.agents[agentKey] = ag
	}
	ag.Status = "active"

	full, prefix, secret, err := generateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}
	r.keys[hashSecret(secret)] = apiKeyRecord{
		WorkspaceID: ws.ID,
		AgentID:     ag.ID,
		Prefix:      prefix,
		Scopes:      pc.RequestedScopes,
	}

	return &types.ProvisionResult{
		WorkspaceID: ws.ID,
		AgentID:     ag.ID,
		APIKey:      full,
	}, nil
}

// Authenticate resolves an issued API key back to its workspace and
// scopes. Used by the demo deploy endpoint.
func (r *Registry) Authenticate(apiKey string) (workspaceID string, scopes []string, ok bool) {
	prefix, secret, ok := splitAPIKey(apiKey)
	if !ok {
		return "", nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, found := r.keys[hashSecret(secret)]
	if !found || rec.Prefix != prefix {
		return "", nil, false
	}
	return rec.WorkspaceID, rec.Scopes, true
}

func generateAPIKey() (full, prefix, secret string, err error) {
	var pb [4]byte
	if _, err = rand.Read(pb[:]); err != nil {
		return "", "", "", err
	}
	var sb [24]byte
	if _, err = rand.Read(sb[:]); err != nil {
		return "", "", "", err
	}
	prefix = "tk_live_" + hex.EncodeToString(pb[:])
	secret = base64.RawURLEncoding.EncodeToString(sb[:])
	return prefix + "_" + secret, prefix, secret, nil
}

func splitAPIKey(full string) (prefix, secret string, ok bool) {
	// tk_live_<8 hex>_<secret>
	const lead = "tk_live_"
	if len(full) < len(lead)+8+1+1 || full[:len(lead)] != lead {
		return "", "", false
	}
	rest := full[len(lead):]
	if len(rest) < 10 || rest[8] != '_' {
		return "", "", false
	}
	return lead + rest[:8], rest[9:], true
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
