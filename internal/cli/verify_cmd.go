package cli

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentpi/agentpi-go/internal/types"
)

type check struct {
	name   string
	pass   bool
	detail string
}

type checker struct {
	checks []check
}

func (c *checker) pass(name, detail string) {
	c.checks = append(c.checks, check{name, true, detail})
	if detail != "" {
		fmt.Printf("  ok   %s: %s\n", name, detail)
	} else {
		fmt.Printf("  ok   %s\n", name)
	}
}

func (c *checker) fail(name, detail string) {
	c.checks = append(c.checks, check{name, false, detail})
	fmt.Printf("  FAIL %s: %s\n", name, detail)
}

func (c *checker) summarize() error {
	var failed int
	for _, ch := range c.checks {
		if !ch.pass {
			failed++
		}
	}
	fmt.Println()
	if failed == 0 {
		fmt.Printf("all %d checks passed\n", len(c.checks))
		return nil
	}
	fmt.Printf("%d/%d passed, %d failed\n", len(c.checks)-failed, len(c.checks), failed)
	os.Exit(1)
	return nil
}

// Conformance verifier: exercises a tool's discovery document, the
// connect flow, replay protection, idempotent replays, and conflicts.
func cmdVerify() *cobra.Command {
	c := &cobra.Command{
		Use:   "verify",
		Short: "Run protocol conformance checks against a tool",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			key := cfg.AgentKey
			if agentKey != "" {
				key = agentKey
			}
			return runVerify(toolBaseURL, issuerBaseURL, key)
		},
	}
	return c
}

func runVerify(toolURL, issuerURL, key string) error {
	ck := &checker{}
	fmt.Printf("target: %s\n\n", toolURL)

	fmt.Println("-- discovery --")
	doc, err := fetchDiscovery(toolURL)
	if err != nil {
		ck.fail("GET "+types.DiscoveryPath, err.Error())
		return ck.summarize()
	}
	ck.pass("GET "+types.DiscoveryPath, "200 OK")

	if doc.AgentPIVersion == types.Version {
		ck.pass("agentpi_version", doc.AgentPIVersion)
	} else {
		ck.fail("agentpi_version", fmt.Sprintf("expected %s, got %s", types.Version, doc.AgentPIVersion))
	}
	checkNonEmpty(ck, "tool_id", doc.ToolID)
	checkNonEmpty(ck, "tool_name", doc.ToolName)
	checkNonEmpty(ck, "connect_endpoint", doc.ConnectEndpoint)
	if len(doc.Plans) > 0 && len(doc.Plans[0].ScopesAllowed) > 0 {
		ck.pass("plans", fmt.Sprintf("%d plan(s), scopes=[%s]", len(doc.Plans), strings.Join(doc.Plans[0].ScopesAllowed, ",")))
	} else {
		ck.fail("plans", "missing or empty")
	}
	checkNonEmpty(ck, "idempotency.header", doc.Idempotency.Header)

	fmt.Println("\n-- connect flow --")
	scopes := doc.Plans[0].ScopesAllowed
	if len(scopes) > 2 {
		scopes = scopes[:2]
	}
	nonce := newNonce()
	workspace := types.WorkspaceRef{Name: "Verify Test"}

	grantReq := types.ConnectGrantRequest{
		ToolID:          doc.ToolID,
		RequestedScopes: scopes,
		RequestedLimits: doc.DefaultLimits,
		Workspace:       workspace,
		Nonce:           nonce,
	}
	grant, code, raw, err := requestGrant(issuerURL, key, grantReq)
	if err != nil {
		ck.fail("obtain connect grant", err.Error())
		return ck.summarize()
	}
	if grant == nil {
		ck.fail("obtain connect grant", fmt.Sprintf("HTTP %d: %s", code, raw))
		return ck.summarize()
	}
	ck.pass("obtain connect grant", fmt.Sprintf("expires_in=%ds", grant.ExpiresIn))

	idemKey := uuid.NewString()
	code, body, err := postConnect(toolURL, doc, grant.ConnectGrant, idemKey)
	if err != nil {
		ck.fail("POST connect", err.Error())
		return ck.summarize()
	}
	if code != 200 {
		ck.fail("POST connect", fmt.Sprintf("HTTP %d: %s", code, body))
		return ck.summarize()
	}
	ck.pass("POST connect", "200")

	fmt.Println("\n-- replay protection --")
	// Same grant, fresh idempotency key: must be rejected as a replay.
	code, _, err = postConnect(toolURL, doc, grant.ConnectGrant, uuid.NewString())
	if err != nil {
		ck.fail("reused jti rejected", err.Error())
	} else if code == 401 {
		ck.pass("reused jti rejected", "401")
	} else {
		ck.fail("reused jti rejected", fmt.Sprintf("expected 401, got %d", code))
	}

	fmt.Println("\n-- idempotency --")
	// Fresh grant with identical semantic inputs, original key: must
	// replay the cached response byte for byte.
	grant2, _, _, err := requestGrant(issuerURL, key, grantReq)
	if err != nil || grant2 == nil {
		ck.fail("cached replay", "could not obtain second grant")
	} else {
		code, body2, err := postConnect(toolURL, doc, grant2.ConnectGrant, idemKey)
		switch {
		case err != nil:
			ck.fail("cached replay", err.Error())
		case code != 200:
			ck.fail("cached replay", fmt.Sprintf("expected 200, got %d", code))
		case !bytes.Equal(body, body2):
			ck.fail("cached replay", "response differs from original")
		default:
			ck.pass("cached replay", "200, byte-identical")
		}
	}

	fmt.Println("\n-- scope enforcement --")
	// A grant carrying a scope outside the advertised set must be
	// rejected at connect, not at issuance.
	overScopes := append(append([]string{}, scopes...), "scope_the_tool_never_offered")
	grantOver, _, _, err := requestGrant(issuerURL, key, types.ConnectGrantRequest{
		ToolID:          doc.ToolID,
		RequestedScopes: overScopes,
		RequestedLimits: doc.DefaultLimits,
		Workspace:       workspace,
		Nonce:           newNonce(),
	})
	if err != nil || grantOver == nil {
		ck.fail("excess scopes rejected", "could not obtain over-scoped grant")
	} else {
		code, _, err := postConnect(toolURL, doc, grantOver.ConnectGrant, uuid.NewString())
		switch {
		case err != nil:
			ck.fail("excess scopes rejected", err.Error())
		case code == 403:
			ck.pass("excess scopes rejected", "403")
		default:
			ck.fail("excess scopes rejected", fmt.Sprintf("expected 403, got %d", code))
		}
	}

	// Same key, different inputs: must conflict.
	grant3, _, _, err := requestGrant(issuerURL, key, types.ConnectGrantRequest{
		ToolID:          doc.ToolID,
		RequestedScopes: doc.Plans[0].ScopesAllowed,
		RequestedLimits: doc.DefaultLimits,
		Workspace:       types.WorkspaceRef{Name: "Different Workspace For Conflict"},
		Nonce:           newNonce(),
	})
	if err != nil || grant3 == nil {
		ck.fail("idempotency conflict", "could not obtain third grant")
	} else {
		code, _, err := postConnect(toolURL, doc, grant3.ConnectGrant, idemKey)
		switch {
		case err != nil:
			ck.fail("idempotency conflict", err.Error())
		case code == 409:
			ck.pass("idempotency conflict", "409")
		default:
			ck.fail("idempotency conflict", fmt.Sprintf("expected 409, got %d", code))
		}
	}

	return ck.summarize()
}

func checkNonEmpty(ck *checker, name, v string) {
	if v != "" {
		ck.pass(name, v)
	} else {
		ck.fail(name, "missing")
	}
}
