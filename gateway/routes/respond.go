package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"cdpproxy/core"
	"cdpproxy/gateway/middleware"
	"cdpproxy/native/automation"
	"cdpproxy/native/vaults"
)

// errBadRequest marks malformed input.
var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, middleware.ErrorBody{Error: err.Error()})
}

// statusFor maps domain errors onto HTTP codes. Anything a transaction
// reverts with is the caller's problem unless it is a node failure.
func statusFor(err error) int {
	var uninitialized *automation.VaultNotInitializedError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, core.ErrNoTarget):
		return http.StatusBadRequest
	case errors.Is(err, vaults.ErrVaultNotFound), errors.As(err, &uninitialized):
		return http.StatusNotFound
	case errors.Is(err, core.ErrNodeClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}
