package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	logpkg "github.com/claudeayi/kalyptia-ledger/pkg/log"

	"github.com/claudeayi/kalyptia-ledger/internal/chain"
)

// sseSender frames entries as server-sent events: the sequence as the event
// id (so EventSource reconnects carry Last-Event-ID), the event type as the
// SSE event name, and the entry JSON as data.
type sseSender struct {
	w http.ResponseWriter
	f http.Flusher
}

func (s sseSender) Send(_ context.Context, e *chain.Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", e.Sequence, e.Type, body); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

func (s *Server) handleSubscribeSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, err := s.identity(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	req := s.subscribeRequest(r, id)
	// EventSource reconnects resume from the last delivered event.
	if req.From == nil {
		if last := r.Header.Get("Last-Event-ID"); last != "" {
			if seq, perr := strconv.ParseUint(last, 10, 64); perr == nil {
				next := seq + 1
				req.From = &next
			}
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	if err := s.svc.Subscribe(r.Context(), req, sseSender{w: w, f: flusher}); err != nil {
		s.logger.Warn("sse.session_ended",
			logpkg.Str("identity", id.ID),
			logpkg.Err(err),
		)
	}
}
