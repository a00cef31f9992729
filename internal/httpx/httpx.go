package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/agentpi/agentpi-go/internal/protocol"
)

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteRaw writes pre-serialized JSON verbatim. Used for idempotent
// replays, which must return the cached bytes unchanged.
func WriteRaw(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

// WriteAPIError is the single place a failure becomes a wire response.
// Protocol errors keep their status and body; anything else is logged
// and reported as an opaque internal_error.
func WriteAPIError(w http.ResponseWriter, err error) {
	var pe *protocol.Error
	if errors.As(err, &pe) {
		WriteJSON(w, pe.Status, pe.WireBody())
		return
	}
	slog.Error("unhandled handler error", "err", err)
	ie := protocol.Internal()
	WriteJSON(w, ie.Status, ie.WireBody())
}
