package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hession/mentorjournal/internal/calendar"
	"github.com/hession/mentorjournal/internal/mentor"
)

func dateParam(r *http.Request) (string, error) {
	date := chi.URLParam(r, "date")
	if !calendar.Valid(date) {
		return "", fmt.Errorf("%w: %q", errInvalidDate, date)
	}
	return date, nil
}

// HandleToday returns today's date
func (h *Handler) HandleToday(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"date": h.svc.Today()})
}

// HandleMentors lists the mentor catalog
func (h *Handler) HandleMentors(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.svc.Catalog().All())
}

// HandleMentorStates reports which mentors need attention on ?date=,
// defaulting to today
func (h *Handler) HandleMentorStates(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.svc.Today()
	}
	if !calendar.Valid(date) {
		h.fail(w, r, fmt.Errorf("%w: %q", errInvalidDate, date))
		return
	}
	states, err := h.svc.MentorsWithStates(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, states)
}

// HandleListChats lists stored chats, newest first
func (h *Handler) HandleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.svc.FetchOldChats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, chats)
}

// HandleChatDetails returns one chat
func (h *Handler) HandleChatDetails(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	details, err := h.svc.LoadChatDetails(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, details)
}

// HandleSuggestions ranks the mentors to talk to next
func (h *Handler) HandleSuggestions(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	suggestions, err := h.svc.GetAgentSuggestions(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, suggestions)
}

// HandleStartNewChat opens today's chat with the journaling mentor and
// streams its opening message
func (h *Handler) HandleStartNewChat(w http.ResponseWriter, r *http.Request) {
	date := h.svc.Today()
	c, err := h.hub.Controller(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sse := newSSEWriter(w)
	err = c.Start(r.Context(), mentor.JournalingID, "", sse.update)
	h.finishSSE(w, r, sse, err)
}

type createAgentChatRequest struct {
	MentorID string `json:"mentorId"`
	Reason   string `json:"reason,omitempty"`
}

// HandleCreateAgentChat opens a conversation with a mentor and streams its
// opening message
func (h *Handler) HandleCreateAgentChat(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createAgentChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !h.svc.Catalog().Has(req.MentorID) {
		h.fail(w, r, fmt.Errorf("%w: %q", mentor.ErrUnknownMentor, req.MentorID))
		return
	}

	c, err := h.hub.Controller(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sse := newSSEWriter(w)
	err = c.Start(r.Context(), req.MentorID, req.Reason, sse.update)
	h.finishSSE(w, r, sse, err)
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

// HandleSendMessage sends a user message and streams the reply
func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req sendMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	c, err := h.hub.Controller(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sse := newSSEWriter(w)
	err = c.Send(r.Context(), req.Text, sse.update)
	h.finishSSE(w, r, sse, err)
}

// HandleConclude ends the active conversation and returns the chat
func (h *Handler) HandleConclude(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.hub.Controller(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := c.Conclude(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	details, err := h.svc.LoadChatDetails(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, details)
}
