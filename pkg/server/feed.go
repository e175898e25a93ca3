package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/bubbleboard/pkg/placement"
	"github.com/m-mizutani/bubbleboard/pkg/utils/logging"
)

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.submissions.Recent(r.Context())
	if err != nil {
		logging.From(r.Context()).Error("failed to list submissions", "error", err)
		writeJSON(w, r, http.StatusInternalServerError, errorBody{
			Error:   msgLoadFailed,
			Details: err.Error(),
		})
		return
	}
	if subs == nil {
		subs = []*model.Submission{}
	}
	writeJSON(w, r, http.StatusOK, subs)
}

// handleBubbles answers with the feed's layout when a feed is running, and otherwise
// resolves one from the repository.
func (s *Server) handleBubbles(w http.ResponseWriter, r *http.Request) {
	if s.feed != nil {
		writeJSON(w, r, http.StatusOK, layoutFromSnapshot(s.feed.Snapshot()))
		return
	}
	if s.submissions == nil {
		writeError(w, r, http.StatusServiceUnavailable, msgFeedNotConfigured)
		return
	}

	subs, err := s.submissions.Recent(r.Context())
	if err != nil {
		logging.From(r.Context()).Error("failed to resolve layout", "error", err)
		writeJSON(w, r, http.StatusInternalServerError, errorBody{
			Error:   msgLoadFailed,
			Details: err.Error(),
		})
		return
	}
	bubbles := placement.Resolve(subs)
	writeJSON(w, r, http.StatusOK, Layout{
		Status:  model.FeedStatusIdle,
		Count:   len(subs),
		Bubbles: bubbles,
	})
}

// handleFeed streams layouts as server-sent events. The first frame is the current
// layout; later frames follow feed changes. Comment lines keep idle proxies open.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.From(ctx)

	if s.feed == nil {
		writeError(w, r, http.StatusServiceUnavailable, msgFeedNotConfigured)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	id := uuid.NewString()
	frames, err := s.hub.Subscribe(id)
	if err != nil {
		logger.Warn("failed to subscribe to layout hub", "error", err)
		writeError(w, r, http.StatusServiceUnavailable, msgFeedNotConfigured)
		return
	}
	defer func() {
		// already gone when the hub was closed
		_ = s.hub.Unsubscribe(id)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger.Debug("feed stream opened", "subscriber", id)
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("feed stream closed by client", "subscriber", id)
			return

		case layout, ok := <-frames:
			if !ok {
				return
			}
			data, err := json.Marshal(layout)
			if err != nil {
				logger.Error("failed to encode layout", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: layout\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
