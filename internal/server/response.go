package server

import (
	"encoding/json"
	"net/http"

	"github.com/desertthunder/motifd/internal/shared"
)

// envelope is the single response shape for every endpoint. Exactly one of
// Result and Error is set.
type envelope struct {
	OK     bool       `json:"ok"`
	Result any        `json:"result,omitempty"`
	Error  *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeResult(w http.ResponseWriter, status int, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{OK: true, Result: result})
}

// writeError maps err onto the stable code table. Unclassified errors are
// reported as E_INTERNAL with a generic message so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	code := shared.CodeFor(err)
	message := err.Error()
	if code == "E_INTERNAL" {
		message = "internal error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(shared.StatusFor(err))
	json.NewEncoder(w).Encode(envelope{OK: false, Error: &errorBody{Code: code, Message: message}})
}
