package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/agentpi/agentpi-go/internal/types"
)

// agent-side HTTP flow shared by the demo and verify commands.

func fetchDiscovery(toolURL string) (*types.DiscoveryDocument, error) {
	b, code, err := httpDoJSON("GET", strings.TrimRight(toolURL, "/")+types.DiscoveryPath, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery unreachable: %w", err)
	}
	if code != 200 {
		return nil, fmt.Errorf("discovery failed: HTTP %d", code)
	}
	var doc types.DiscoveryDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode discovery document: %w", err)
	}
	return &doc, nil
}

func requestGrant(issuerURL, key string, req types.ConnectGrantRequest) (*types.ConnectGrantResponse, int, []byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, 0, nil, err
	}
	b, code, err := httpDoJSON("POST", strings.TrimRight(issuerURL, "/")+"/v1/connect-grants", body, map[string]string{
		types.AgentKeyHeader: key,
	})
	if err != nil {
		return nil, 0, nil, fmt.Errorf("issuer unreachable: %w", err)
	}
	if code != 200 {
		return nil, code, b, nil
	}
	var resp types.ConnectGrantResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, code, b, fmt.Errorf("decode grant response: %w", err)
	}
	return &resp, code, b, nil
}

func postConnect(toolURL string, doc *types.DiscoveryDocument, grant, idemKey string) (int, []byte, error) {
	url := strings.TrimRight(toolURL, "/") + doc.ConnectEndpoint
	b, code, err := httpDoJSON("POST", url, nil, map[string]string{
		"Authorization":        "Bearer " + grant,
		doc.Idempotency.Header: idemKey,
	})
	return code, b, err
}

func newNonce() string { return uuid.NewString() }
