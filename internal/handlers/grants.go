package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/agentpi/agentpi-go/internal/httpx"
	"github.com/agentpi/agentpi-go/internal/issuer"
	"github.com/agentpi/agentpi-go/internal/protocol"
	"github.com/agentpi/agentpi-go/internal/types"
)

type GrantsHandler struct {
	Issuer *issuer.Issuer
}

func NewGrantsHandler(i *issuer.Issuer) *GrantsHandler {
	return &GrantsHandler{Issuer: i}
}

func (h *GrantsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.Issuer.ValidateAgentKey(r.Header.Get(types.AgentKeyHeader)); err != nil {
		httpx.WriteAPIError(w, err)
		return
	}

	var req types.ConnectGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteAPIError(w, protocol.BadRequest("invalid JSON body", nil))
		return
	}

	resp, err := h.Issuer.Issue(req)
	if err != nil {
		httpx.WriteAPIError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
