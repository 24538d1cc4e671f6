package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shiori-ai/shiori/internal/stream"
)

// serveSSE writes the event channel to the client as server-sent events,
// one "event: <type>\ndata: <json>\n\n" frame per envelope. The channel is
// drained to its close; a disconnected client cancels the request context
// upstream, which ends the stream with a terminal error event.
func serveSSE(w http.ResponseWriter, r *http.Request, events <-chan stream.Envelope, logger *slog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("server: sse unsupported", "error", errNotFlushable)
		writeErrorJSON(w, http.StatusInternalServerError, "internal", "streaming unsupported", RequestIDFromContext(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for env := range events {
		payload, err := json.Marshal(env)
		if err != nil {
			logger.Error("server: marshal sse event", "type", env.Type, "error", err)
			continue
		}
		if _, err := w.Write(frame(string(env.Type), payload)); err != nil {
			// Client went away; keep draining so the producer can finish.
			for range events {
			}
			return
		}
		flusher.Flush()
	}
}

// frame formats one SSE frame.
func frame(eventType string, data []byte) []byte {
	return []byte("event: " + eventType + "\ndata: " + string(data) + "\n\n")
}
