package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hession/mentorjournal/internal/live"
)

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// sseWriter relays live updates as server-sent events. Headers are sent
// with the first event, so an operation rejected before streaming can
// still answer with a plain JSON error.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	err     error
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	f, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: f}
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
}

func (s *sseWriter) send(event string, v any) {
	if s.err != nil {
		return
	}
	s.start()
	data, err := json.Marshal(v)
	if err != nil {
		s.err = err
		return
	}
	if err := writeSSE(s.w, event, string(data)); err != nil {
		s.err = err
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// update sends chunks as "chunk" events and phase changes as "snapshot"
// events
func (s *sseWriter) update(u live.Update) {
	if u.Chunk != "" {
		s.send("chunk", map[string]string{"chunk": u.Chunk})
		return
	}
	s.send("snapshot", u)
}

// finishSSE closes the event stream with "done" or "error", or answers
// with a JSON error when nothing was streamed yet
func (h *Handler) finishSSE(w http.ResponseWriter, r *http.Request, s *sseWriter, err error) {
	if !s.started {
		if err != nil {
			h.fail(w, r, err)
			return
		}
		s.start()
	}
	if err != nil {
		h.logger.Warn("stream ended with error", "path", r.URL.Path, "error", err)
		s.send("error", map[string]string{"error": err.Error()})
		return
	}
	s.send("done", map[string]string{})
	if s.err != nil {
		h.logger.Debug("client went away during stream", "path", r.URL.Path, "error", s.err)
	}
}
