package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/bubbleboard/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

var errMalformedJSON = goerr.New("malformed JSON body")

// decodeText extracts the text field from a { "text": string } body without trimming it.
func decodeText(raw []byte) (string, error) {
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", goerr.Wrap(errMalformedJSON, err.Error())
	}

	obj, ok := body.(map[string]any)
	if !ok {
		return "", goerr.Wrap(model.ErrInvalidPayload, "body is not an object")
	}
	text, ok := obj["text"].(string)
	if !ok {
		return "", goerr.Wrap(model.ErrInvalidPayload, "text is not a string", goerr.V("text", obj["text"]))
	}
	return text, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read request body")
	}
	return raw, nil
}

// handleSubmit is the submission gateway: validate, optionally moderate, then forward to
// the backend function. Upstream failures are passed through with their status.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.From(ctx)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, r, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	raw, err := readBody(w, r)
	if err != nil {
		logger.Warn("failed to read submission body", "error", err)
		writeError(w, r, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	text, err := decodeText(raw)
	switch {
	case errors.Is(err, errMalformedJSON):
		writeError(w, r, http.StatusBadRequest, msgInvalidJSON)
		return
	case err != nil:
		writeError(w, r, http.StatusBadRequest, msgExpectedBody)
		return
	}

	text, err = model.NormalizeText(text)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, msgEmptyText)
		return
	}

	if s.filter != nil {
		verdict, err := s.filter.Check(ctx, text)
		if err != nil {
			logger.Error("moderation check failed", "error", err)
			if s.enforceModeration {
				writeError(w, r, http.StatusInternalServerError, msgModerationFailed)
				return
			}
		} else if !verdict.Allowed {
			if s.enforceModeration {
				logger.Info("submission rejected by moderation", "terms", verdict.Terms)
				writeError(w, r, http.StatusBadRequest, model.ErrModerationRejected.Error())
				return
			}
			logger.Warn("submission matched moderation denylist", "terms", verdict.Terms)
		}
	}

	payload, err := s.backend.SubmitText(ctx, text)
	if err != nil {
		var upstream *model.UpstreamError
		if errors.As(err, &upstream) {
			logger.Warn("backend function rejected submission", "status", upstream.Status)
			writeJSON(w, r, upstream.Status, upstreamErrorBody{
				Error:   msgUpstreamFailed,
				Status:  upstream.Status,
				Details: upstream.Details,
			})
			return
		}

		logger.Error("failed to invoke backend function", "error", err)
		writeJSON(w, r, http.StatusInternalServerError, errorBody{
			Error:   msgInvokeFailed,
			Details: err.Error(),
		})
		return
	}

	writeRawJSON(w, r, http.StatusOK, payload)
}

// handleSubmitText is the backend insertion function.
func (s *Server) handleSubmitText(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !s.authorized(r) {
		writeError(w, r, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, r, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, msgExpectedBody)
		return
	}
	text, err := decodeText(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, msgExpectedBody)
		return
	}

	sub, err := s.submissions.Submit(ctx, text)
	if err != nil {
		if errors.Is(err, model.ErrEmptyText) {
			writeError(w, r, http.StatusBadRequest, msgEmptyText)
			return
		}
		logging.From(ctx).Error("submit-text failed", "error", err)
		writeJSON(w, r, http.StatusInternalServerError, errorBody{
			Error:   msgFunctionFailed,
			Details: err.Error(),
		})
		return
	}

	writeJSON(w, r, http.StatusOK, sub)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.serviceKey == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.serviceKey)) == 1
}
