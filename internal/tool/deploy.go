package tool

import (
	"net/http"

	"github.com/agentpi/agentpi-go/internal/discovery"
	"github.com/agentpi/agentpi-go/internal/httpx"
	"github.com/agentpi/agentpi-go/internal/protocol"
)

// DeployHandler is the demo business endpoint: it accepts an issued
// API key and proves the provisioned credential works.
func DeployHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := httpx.ExtractBearer(r.Header.Get("Authorization"))
		if !ok {
			writeUnauthorized(w, r, "Missing Authorization Bearer token")
			return
		}
		wsID, scopes, ok := reg.Authenticate(key)
		if !ok {
			writeUnauthorized(w, r, "Unknown or revoked API key")
			return
		}
		if !hasScope(scopes, "deploy") {
			httpx.WriteAPIError(w, protocol.Forbidden("API key lacks the deploy scope"))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"status":       "deployed",
			"workspace_id": wsID,
			"scopes":       scopes,
		})
	}
}

// writeUnauthorized adds the connect hint to 401 bodies so an agent
// that shows up without credentials can discover the tool and start
// the connect flow.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	e := protocol.Unauthorized(msg)
	httpx.WriteJSON(w, e.Status, struct {
		protocol.Body
		AgentPI discovery.Prompt `json:"agentpi"`
	}{e.WireBody(), discovery.NewPrompt(httpx.BaseURL(r))})
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
