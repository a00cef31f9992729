package handlers

import (
	"net/http"

	"github.com/agentpi/agentpi-go/internal/httpx"
	"github.com/agentpi/agentpi-go/internal/keys"
)

type JWKSHandler struct {
	Keys *keys.Manager
}

func NewJWKSHandler(km *keys.Manager) *JWKSHandler {
	return &JWKSHandler{Keys: km}
}

func (h *JWKSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Keys.JWKS()
	if err != nil {
		httpx.WriteAPIError(w, err)
		return
	}
	httpx.WriteRaw(w, http.StatusOK, doc)
}
