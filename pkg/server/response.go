package server

import (
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/bubbleboard/pkg/utils/logging"
)

// Client-facing error strings. Callers match on them, so they are part of the HTTP contract.
const (
	msgInvalidJSON       = "Invalid JSON body"
	msgExpectedBody      = `Expected JSON body: { "text": string }`
	msgEmptyText         = "Text must be a non-empty string"
	msgMethodNotAllowed  = "Method not allowed"
	msgUnauthorized      = "Unauthorized"
	msgTooManyRequests   = "Too many requests"
	msgUpstreamFailed    = "submit-text edge function failed"
	msgInvokeFailed      = "Failed to invoke submit-text edge function"
	msgFunctionFailed    = "submit-text function failed"
	msgModerationFailed  = "Failed to evaluate moderation policy"
	msgFeedNotConfigured = "Realtime feed is not configured"
	msgLoadFailed        = "Failed to load submissions"
)

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// upstreamErrorBody always carries details, null when the upstream body was not JSON.
type upstreamErrorBody struct {
	Error   string          `json:"error"`
	Status  int             `json:"status"`
	Details json.RawMessage `json:"details"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.From(r.Context()).Warn("failed to write response", "error", err)
	}
}

func writeRawJSON(w http.ResponseWriter, r *http.Request, status int, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(raw); err != nil {
		logging.From(r.Context()).Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorBody{Error: msg})
}
