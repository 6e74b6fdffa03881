package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/hession/mentorjournal/internal/live"
)

// wsMessage is a client command on the chat websocket
type wsMessage struct {
	Type     string `json:"type"` // start, send, conclude, ping
	MentorID string `json:"mentorId,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Text     string `json:"text,omitempty"`
}

// wsEvent is a server event on the chat websocket
type wsEvent struct {
	Type   string       `json:"type"` // update, done, error, pong
	Update *live.Update `json:"update,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// HandleWebSocket drives the chat of {date} over a websocket. Commands are
// handled one at a time; every live update is pushed as it happens.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if origin := r.Header.Get("Origin"); origin != "" && !originAllowed(h.allowedOrigins, origin) {
		h.logger.Warn("websocket origin rejected", "origin", origin)
		Error(w, http.StatusForbidden, "origin not allowed")
		return
	}

	c, err := h.hub.Controller(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("failed to accept websocket", "error", err, "date", date)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			h.logger.Debug("failed to close websocket", "error", closeErr)
		}
	}()
	if h.metrics != nil {
		h.metrics.RecordWebSocketConnect()
		defer h.metrics.RecordWebSocketDisconnect()
	}

	ctx := r.Context()
	snap := live.Update{Phase: c.Phase(), Snapshot: c.Snapshot()}
	if err := h.writeWS(ctx, ws, wsEvent{Type: "update", Update: &snap}); err != nil {
		return
	}

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("websocket closed by client", "date", date)
			} else {
				h.logger.Warn("websocket read error", "error", err, "date", date)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := h.writeWS(ctx, ws, wsEvent{Type: "error", Error: "invalid message"}); err != nil {
				return
			}
			continue
		}

		push := func(u live.Update) {
			if err := h.writeWS(ctx, ws, wsEvent{Type: "update", Update: &u}); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
			}
		}

		var opErr error
		switch msg.Type {
		case "ping":
			if err := h.writeWS(ctx, ws, wsEvent{Type: "pong"}); err != nil {
				return
			}
			continue
		case "start":
			opErr = c.Start(ctx, msg.MentorID, msg.Reason, push)
		case "send":
			opErr = c.Send(ctx, msg.Text, push)
		case "conclude":
			if opErr = c.Conclude(ctx); opErr == nil {
				push(live.Update{Phase: c.Phase(), Snapshot: c.Snapshot()})
			}
		default:
			opErr = live.ErrInvalidTransition
		}

		ev := wsEvent{Type: "done"}
		if opErr != nil {
			ev = wsEvent{Type: "error", Error: opErr.Error()}
		}
		if err := h.writeWS(ctx, ws, ev); err != nil {
			return
		}
	}
}

func (h *Handler) writeWS(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
