// Package verify validates inbound connect grants end-to-end:
// signature against the issuer's published JWKS, issuer, audience,
// expiry, and required claims. Verification never mutates persistent
// state; the only shared resource is the read-through JWKS cache.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"

	"github.com/agentpi/agentpi-go/internal/protocol"
	"github.com/agentpi/agentpi-go/internal/types"
)

// cacheTTL is the JWKS freshness window.
const cacheTTL = 60 * time.Second

// VerifiedGrant is the trusted view of a grant after all checks pass.
type VerifiedGrant struct {
	Sub   string
	JTI   string
	Exp   int64
	Claim types.Claim
}

type cachedJWKS struct {
	set     jwk.Set
	fetched time.Time
}

// Verifier holds the process-wide JWKS cache keyed by URL. The fetch
// and clock seams exist so tests can drive staleness directly.
type Verifier struct {
	mu    sync.Mutex
	cache map[string]cachedJWKS

	ttl   time.Duration
	fetch func(ctx context.Context, url string) (int, []byte, error)
	now   func() time.Time
}

func New() *Verifier {
	return &Verifier{
		cache: make(map[string]cachedJWKS),
		ttl:   cacheTTL,
		fetch: fetchHTTP,
		now:   time.Now,
	}
}

func fetchHTTP(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// audience accepts both the single-string and array JWT "aud" forms.
// The check is membership, any listed audience may match.
type audience []string

func (a *audience) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = audience{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*a = audience(list)
	return nil
}

func (a audience) contains(want string) bool {
	for _, s := range a {
		if s == want {
			return true
		}
	}
	return false
}

func (a audience) String() string { return strings.Join(a, ", ") }

type grantPayload struct {
	Iss     string       `json:"iss"`
	Sub     string       `json:"sub"`
	Aud     audience     `json:"aud"`
	Exp     int64        `json:"exp"`
	JTI     string       `json:"jti"`
	AgentPI *types.Claim `json:"agentpi"`
}

// Verify runs the full check sequence against token. Every distinct
// failure maps to a stable reason code under detail.reason; all of
// them surface as invalid_grant so callers cannot distinguish issuer
// outage from forgery at the protocol level.
func (v *Verifier) Verify(ctx context.Context, token, jwksURL, expectedIssuer, expectedAudience string) (*VerifiedGrant, error) {
	set, err := v.keySet(ctx, jwksURL)
	if err != nil {
		return nil, err
	}

	if _, err := jws.Parse([]byte(token)); err != nil {
		return nil, protocol.InvalidGrant(
			fmt.Sprintf("JWT verification failed: %v", err),
			map[string]any{"reason": protocol.ReasonVerificationError},
		)
	}

	payload, err := jws.Verify([]byte(token), jws.WithKeySet(set, jws.WithInferAlgorithmFromKey(true)))
	if err != nil {
		return nil, protocol.InvalidGrant(
			"JWT signature verification failed: key mismatch or tampered token",
			map[string]any{"reason": protocol.ReasonBadSignature},
		)
	}

	var p grantPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, protocol.InvalidGrant(
			fmt.Sprintf("JWT claim validation failed: %v", err),
			map[string]any{"reason": protocol.ReasonClaimValidation},
		)
	}

	if p.Iss != expectedIssuer {
		return nil, protocol.InvalidGrant(
			fmt.Sprintf("iss mismatch: expected %s, got %s", expectedIssuer, p.Iss),
			map[string]any{"reason": protocol.ReasonIssMismatch, "expected": expectedIssuer, "got": p.Iss},
		)
	}
	if !p.Aud.contains(expectedAudience) {
		return nil, protocol.InvalidGrant(
			fmt.Sprintf("aud mismatch: expected %s, got %s", expectedAudience, p.Aud),
			map[string]any{"reason": protocol.ReasonAudMismatch, "expected": expectedAudience, "got": p.Aud.String()},
		)
	}
	if p.Exp == 0 {
		return nil, missingClaim("exp")
	}
	if !v.now().Before(time.Unix(p.Exp, 0)) {
		return nil, protocol.InvalidGrant(
			fmt.Sprintf("Connect grant expired at %s", time.Unix(p.Exp, 0).UTC().Format(time.RFC3339)),
			map[string]any{"reason": protocol.ReasonExpired, "exp": p.Exp},
		)
	}

	if p.JTI == "" {
		return nil, missingClaim("jti")
	}
	if p.Sub == "" {
		return nil, missingClaim("sub")
	}
	if p.AgentPI == nil {
		return nil, missingClaim("agentpi")
	}

	return &VerifiedGrant{Sub: p.Sub, JTI: p.JTI, Exp: p.Exp, Claim: *p.AgentPI}, nil
}

func missingClaim(claim string) *protocol.Error {
	return protocol.InvalidGrant(
		fmt.Sprintf("Missing required JWT claim: %s", claim),
		map[string]any{"reason": protocol.ReasonMissingClaim, "claim": claim},
	)
}

// keySet returns a fresh-enough key set for jwksURL, fetching on miss
// or staleness. Two concurrent refreshes are harmless; both converge
// on the same fetched set.
func (v *Verifier) keySet(ctx context.Context, jwksURL string) (jwk.Set, error) {
	now := v.now()

	v.mu.Lock()
	cached, ok := v.cache[jwksURL]
	v.mu.Unlock()
	if ok && now.Sub(cached.fetched) <= v.ttl {
		return cached.set, nil
	}

	status, body, err := v.fetch(ctx, jwksURL)
	if err != nil {
		return nil, protocol.InvalidGrant(
			fmt.Sprintf("JWKS unreachable at %s", jwksURL),
			map[string]any{"jwks_url": jwksURL, "reason": err.Error()},
		)
	}
	if status < 200 || status > 299 {
		return nil, protocol.InvalidGrant(
			fmt.Sprintf("JWKS fetch failed: status %d from %s", status, jwksURL),
			map[string]any{"jwks_url": jwksURL, "status": status},
		)
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, protocol.InvalidGrant(
			fmt.Sprintf("JWKS parse failed from %s", jwksURL),
			map[string]any{"jwks_url": jwksURL, "reason": protocol.ReasonVerificationError},
		)
	}

	v.mu.Lock()
	v.cache[jwksURL] = cachedJWKS{set: set, fetched: now}
	v.mu.Unlock()

	return set, nil
}
