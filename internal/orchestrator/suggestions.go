package orchestrator

import (
	"context"
	"sort"

	"github.com/hession/mentorjournal/internal/chat"
)

// Suggestion reasons, in priority order
const (
	ReasonRelevantToToday = "relevantToToday"
	ReasonCatchUp         = "catchUp"
	ReasonFirstMeet       = "firstMeet"
)

// Suggestion proposes a mentor to talk to next
type Suggestion struct {
	MentorID string `json:"mentorId"`
	Reason   string `json:"reason"`
}

// GetAgentSuggestions ranks the mentors to talk to on date: mentors
// relevant to the day's journal entry, then overdue mentors by descending
// check-in pressure, then mentors never met. Mentors that already have a
// conversation on date are left out.
func (s *Service) GetAgentSuggestions(ctx context.Context, date string) ([]Suggestion, error) {
	state := chat.NewState()
	sess, err := s.Session(ctx, date)
	switch {
	case err == nil:
		state = sess.Snapshot()
	case !isNotFound(err):
		return nil, err
	}

	seen := make(map[string]bool)
	for _, ac := range state.AgentChats {
		seen[ac.AgentID] = true
	}

	out := []Suggestion{}
	add := func(id, reason string) {
		if seen[id] || !s.Catalog().Has(id) {
			return
		}
		seen[id] = true
		out = append(out, Suggestion{MentorID: id, Reason: reason})
	}

	for _, id := range state.AgentsRelevantToToday {
		add(id, ReasonRelevantToToday)
	}

	type pressured struct {
		id       string
		pressure float64
	}
	var overdue []pressured
	var neverMet []string
	for _, id := range s.Catalog().IDs() {
		p, ok, err := s.engine.CheckInPressure(ctx, id, date)
		if err != nil {
			return nil, err
		}
		switch {
		case !ok:
			neverMet = append(neverMet, id)
		case p > 1:
			overdue = append(overdue, pressured{id, p})
		}
	}
	sort.SliceStable(overdue, func(i, j int) bool { return overdue[i].pressure > overdue[j].pressure })

	for _, o := range overdue {
		add(o.id, ReasonCatchUp)
	}
	for _, id := range neverMet {
		add(id, ReasonFirstMeet)
	}
	return out, nil
}
