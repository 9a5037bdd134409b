package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/trailbot/internal/actor"
)

// maxBodyBytes bounds RPC request bodies.
const maxBodyBytes = 1 << 20

// RPCHandler routes RPC calls to the actor that owns the addressed pair.
type RPCHandler struct {
	registry *actor.Registry
	logger   *slog.Logger
}

// NewRPCHandler creates an RPCHandler over the given registry.
func NewRPCHandler(registry *actor.Registry, logger *slog.Logger) *RPCHandler {
	return &RPCHandler{
		registry: registry,
		logger:   logger.With(slog.String("handler", "rpc")),
	}
}

// Dispatch handles POST /rpc/{method}. The body must carry the pair
// addresses — they route the request to its actor; the actor itself enforces
// (or, for heartbeats, skips) the pair binding.
func (h *RPCHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	method := r.PathValue("method")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body")
		return
	}

	var env struct {
		TokenAddress   string `json:"tokenAddress"`
		VsTokenAddress string `json:"vsTokenAddress"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			writeError(w, http.StatusBadRequest, "malformed JSON body")
			return
		}
	}
	if env.TokenAddress == "" || env.VsTokenAddress == "" {
		writeError(w, http.StatusBadRequest, "tokenAddress and vsTokenAddress are required")
		return
	}

	a := h.registry.Get(env.TokenAddress, env.VsTokenAddress)
	result, err := a.Handle(r.Context(), method, body)
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "rpc: request failed",
				slog.String("method", method),
				slog.String("error", err.Error()))
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
