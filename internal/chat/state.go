// Package chat holds the per-date conversation record and the session
// state machine that drives it.
package chat

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hession/mentorjournal/internal/llm"
)

// StateType is the record type of a day's conversations
const StateType = "chatState"

// Message roles stored in a chat
const (
	RoleUser      = llm.RoleUser
	RoleAssistant = llm.RoleAssistant
)

var (
	ErrNotFound          = errors.New("chat not found")
	ErrAlreadyExists     = errors.New("chat already exists")
	ErrAgentChatExists   = errors.New("mentor already has a conversation for this date")
	ErrAgentChatActive   = errors.New("another mentor conversation is still active")
	ErrNoActiveAgentChat = errors.New("no active mentor conversation")
)

// Message is one chat turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AgentChat is the conversation with one mentor on one date
type AgentChat struct {
	AgentID   string    `json:"agentId"`
	Messages  []Message `json:"messages"`
	Concluded bool      `json:"concluded"`
}

// State is everything said on one date, one AgentChat per mentor in the
// order the conversations started
type State struct {
	Version               string      `json:"version"`
	AgentChats            []AgentChat `json:"agentChats"`
	AgentsRelevantToToday []string    `json:"agentsRelevantToToday"`
}

// NewState returns an empty chat record
func NewState() State {
	return State{Version: "1", AgentChats: []AgentChat{}, AgentsRelevantToToday: []string{}}
}

// Validate implements kv.Record
func (s *State) Validate() error {
	if s.Version != "1" {
		return fmt.Errorf("unsupported version %q", s.Version)
	}
	seen := make(map[string]bool, len(s.AgentChats))
	for i, ac := range s.AgentChats {
		if ac.AgentID == "" {
			return fmt.Errorf("agent chat %d has no agent id", i)
		}
		if seen[ac.AgentID] {
			return fmt.Errorf("agent %q has more than one conversation", ac.AgentID)
		}
		seen[ac.AgentID] = true
		if !ac.Concluded && i != len(s.AgentChats)-1 {
			return fmt.Errorf("agent chat %q is active but not last", ac.AgentID)
		}
		for j, m := range ac.Messages {
			if m.Role != RoleUser && m.Role != RoleAssistant {
				return fmt.Errorf("agent chat %q message %d has role %q", ac.AgentID, j, m.Role)
			}
		}
	}
	return nil
}

// Clone returns a deep copy
func (s State) Clone() State {
	out := State{
		Version:               s.Version,
		AgentChats:            make([]AgentChat, len(s.AgentChats)),
		AgentsRelevantToToday: slices.Clone(s.AgentsRelevantToToday),
	}
	if out.AgentsRelevantToToday == nil {
		out.AgentsRelevantToToday = []string{}
	}
	for i, ac := range s.AgentChats {
		ac.Messages = slices.Clone(ac.Messages)
		if ac.Messages == nil {
			ac.Messages = []Message{}
		}
		out.AgentChats[i] = ac
	}
	return out
}

// LastAgentChat returns the most recent mentor conversation
func (s State) LastAgentChat() (AgentChat, bool) {
	if len(s.AgentChats) == 0 {
		return AgentChat{}, false
	}
	return s.AgentChats[len(s.AgentChats)-1], true
}

// ActiveAgentChat returns the last conversation if it is not concluded
func (s State) ActiveAgentChat() (AgentChat, bool) {
	last, ok := s.LastAgentChat()
	if !ok || last.Concluded {
		return AgentChat{}, false
	}
	return last, true
}

// HasAgentChat reports whether mentor id has a conversation in s
func (s State) HasAgentChat(id string) bool {
	return slices.ContainsFunc(s.AgentChats, func(ac AgentChat) bool { return ac.AgentID == id })
}

// Messages flattens every conversation into one list
func (s State) Messages() []Message {
	var out []Message
	for _, ac := range s.AgentChats {
		out = append(out, ac.Messages...)
	}
	if out == nil {
		out = []Message{}
	}
	return out
}

// The helpers below return updated copies and never modify their input.

// UpdateLastMessage replaces the content of the last message of the last
// conversation
func UpdateLastMessage(s State, content string) State {
	out := s.Clone()
	if n := len(out.AgentChats); n > 0 {
		msgs := out.AgentChats[n-1].Messages
		if len(msgs) > 0 {
			msgs[len(msgs)-1].Content = content
		}
	}
	return out
}

// AddMessageToLastAgentChat appends m to the last conversation
func AddMessageToLastAgentChat(s State, m Message) State {
	out := s.Clone()
	if n := len(out.AgentChats); n > 0 {
		out.AgentChats[n-1].Messages = append(out.AgentChats[n-1].Messages, m)
	}
	return out
}

// AddAgentChat appends an empty conversation with mentor id
func AddAgentChat(s State, id string) State {
	out := s.Clone()
	out.AgentChats = append(out.AgentChats, AgentChat{AgentID: id, Messages: []Message{}})
	return out
}

// ConcludeLastAgentChat marks the last conversation concluded
func ConcludeLastAgentChat(s State) State {
	out := s.Clone()
	if n := len(out.AgentChats); n > 0 {
		out.AgentChats[n-1].Concluded = true
	}
	return out
}

func toLLM(msgs []Message) []llm.Message {
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
