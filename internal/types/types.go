package types

// Protocol constants shared by the issuer, tools, and agents.
const (
	// Version is the AgentPI protocol version advertised in discovery.
	Version = "0.1.0"

	// IdempotencyHeader carries the caller-supplied idempotency key on
	// connect requests.
	IdempotencyHeader = "Idempotency-Key"

	// IdempotencyTTLSeconds is how long a committed connect response is
	// replayed for the same key.
	IdempotencyTTLSeconds = 86400

	// GrantTTLSeconds is the fixed lifetime of a connect grant.
	GrantTTLSeconds = 300

	// AgentKeyHeader authenticates agents against the issuer.
	AgentKeyHeader = "X-AgentPI-Agent-Key"

	// ModeAutonomous is the only connection mode the protocol defines.
	ModeAutonomous = "autonomous"

	// DiscoveryPath is where tools publish their capability document.
	DiscoveryPath = "/.well-known/agentpi.json"

	// ConnectEndpoint is the default tool-side connect path.
	ConnectEndpoint = "/v1/agentpi/connect"
)

// Limits are the rate/volume ceilings negotiated during connect.
type Limits struct {
	RPM         int `json:"rpm"`
	DailyQuota  int `json:"dailyQuota"`
	Concurrency int `json:"concurrency"`
}

// WorkspaceRef names the workspace an agent wants provisioned.
type WorkspaceRef struct {
	Name       string `json:"name"`
	ExternalID string `json:"external_id,omitempty"`
}

// ConnectGrantRequest is the body posted to the issuer.
type ConnectGrantRequest struct {
	ToolID          string       `json:"tool_id"`
	RequestedScopes []string     `json:"requested_scopes"`
	RequestedLimits Limits       `json:"requested_limits"`
	Workspace       WorkspaceRef `json:"workspace"`
	Nonce           string       `json:"nonce"`
}

// ConnectGrantResponse wraps the signed grant.
type ConnectGrantResponse struct {
	ConnectGrant string `json:"connect_grant"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claim is the custom payload embedded in a grant under the "agentpi"
// claim. Immutable once signed.
type Claim struct {
	OrgID           string       `json:"org_id"`
	ToolID          string       `json:"tool_id"`
	Mode            string       `json:"mode"`
	RequestedPlanID string       `json:"requested_plan_id"`
	Scopes          []string     `json:"scopes"`
	Limits          Limits       `json:"limits"`
	Workspace       WorkspaceRef `json:"workspace"`
	Nonce           string       `json:"nonce"`
}

// PlanInfo describes one plan in the tool's catalogue.
type PlanInfo struct {
	PlanID        string   `json:"plan_id"`
	MaxLimits     Limits   `json:"max_limits"`
	ScopesAllowed []string `json:"scopes_allowed"`
}

// IdempotencyInfo advertises the tool's idempotency contract.
type IdempotencyInfo struct {
	Header     string `json:"header"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// DiscoveryDocument is the capability document a tool serves at the
// well-known path. Re-derived from configuration on every read.
type DiscoveryDocument struct {
	AgentPIVersion  string          `json:"agentpi_version"`
	ToolID          string          `json:"tool_id"`
	ToolName        string          `json:"tool_name"`
	ConnectEndpoint string          `json:"connect_endpoint"`
	Plans           []PlanInfo      `json:"plans"`
	DefaultPlanID   string          `json:"default_plan_id"`
	DefaultLimits   Limits          `json:"default_limits"`
	Idempotency     IdempotencyInfo `json:"idempotency"`
}

// Credentials is the typed credential a tool hands back.
type Credentials struct {
	Type   string `json:"type"`
	APIKey string `json:"api_key"`
}

// ConnectResult is the wire response of a successful handshake. This
// is the value cached for idempotent replays.
type ConnectResult struct {
	Status          string      `json:"status"`
	ToolWorkspaceID string      `json:"tool_workspace_id"`
	ToolAgentID     string      `json:"tool_agent_id"`
	Credentials     Credentials `json:"credentials"`
	AppliedPlanID   string      `json:"applied_plan_id"`
	AppliedScopes   []string    `json:"applied_scopes"`
	AppliedLimits   Limits      `json:"applied_limits"`
}

// ProvisionContext is handed to the tool's provisioning callback after
// negotiation succeeds.
type ProvisionContext struct {
	OrgID           string
	AgentID         string
	RequestedScopes []string
	RequestedLimits Limits
	Workspace       WorkspaceRef
	GrantJTI        string
	GrantExp        int64
}

// ProvisionResult is what the provisioning callback returns.
type ProvisionResult struct {
	WorkspaceID string
	AgentID     string
	APIKey      string
}
