// Package negotiate clamps an agent's requested scopes and limits
// against a tool's maximum policy. Both operations are pure.
package negotiate

import (
	"github.com/agentpi/agentpi-go/internal/protocol"
	"github.com/agentpi/agentpi-go/internal/types"
)

// ValidateScopes accepts requested only when every scope is a member
// of allowed. An empty request is valid. Rejection carries the full
// rejected list and the allowed set so callers can act on it.
func ValidateScopes(requested, allowed []string) ([]string, error) {
	set := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		set[s] = true
	}
	var rejected []string
	for _, s := range requested {
		if !set[s] {
			rejected = append(rejected, s)
		}
	}
	if len(rejected) > 0 {
		return nil, protocol.ScopesNotAllowed(rejected, allowed)
	}
	return requested, nil
}

// ClampLimits takes the field-wise minimum of requested and max. A
// request may be partially clamped and still succeed.
func ClampLimits(requested, max types.Limits) types.Limits {
	return types.Limits{
		RPM:         min(requested.RPM, max.RPM),
		DailyQuota:  min(requested.DailyQuota, max.DailyQuota),
		Concurrency: min(requested.Concurrency, max.Concurrency),
	}
}
