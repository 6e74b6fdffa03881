package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/hession/mentorjournal/internal/chat"
	"github.com/hession/mentorjournal/internal/mentor"
)

// Check-in state types
const (
	StateRegular        = "regular"
	StateNeedsAttention = "needs_attention"
)

// CheckInState tells the UI whether a mentor wants attention
type CheckInState struct {
	Type string `json:"type"`
	Msg  string `json:"msg,omitempty"`
}

// MentorState pairs a mentor with its check-in state
type MentorState struct {
	MentorID string       `json:"mentorId"`
	State    CheckInState `json:"state"`
}

var (
	regular           = CheckInState{Type: StateRegular}
	needsIntroduction = CheckInState{Type: StateNeedsAttention, Msg: "Needs introduction"}
	letsCheckIn       = CheckInState{Type: StateNeedsAttention, Msg: "Let's check in"}
)

func isNotFound(err error) bool {
	return errors.Is(err, chat.ErrNotFound)
}

// journalingDates returns the dates whose chat includes a journaling
// conversation
func (s *Service) journalingDates(ctx context.Context) (map[string]bool, error) {
	dates, err := chat.List(ctx, s.store)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, date := range dates {
		st, err := s.storedChat(ctx, date)
		if err != nil {
			return nil, err
		}
		if st.HasAgentChat(mentor.JournalingID) {
			out[date] = true
		}
	}
	return out, nil
}

// storedChat reads date's chat from its open session, or from the store
// without opening one
func (s *Service) storedChat(ctx context.Context, date string) (chat.State, error) {
	s.mu.Lock()
	sess, ok := s.sessions[date]
	s.mu.Unlock()
	if ok {
		return sess.Snapshot(), nil
	}
	st := chat.NewState()
	found, err := s.store.Get(ctx, chat.StateType, date, &st)
	if err != nil {
		return chat.State{}, err
	}
	if !found {
		return chat.State{}, fmt.Errorf("%w: %s", chat.ErrNotFound, date)
	}
	return st, nil
}

// MentorsWithStates reports, for every mentor, whether it needs attention
// on date. Until the user has journaled once only the journaling mentor
// asks for an introduction; on a day without journaling only journaling
// asks for a check-in; otherwise every mentor past its check-in period
// does.
func (s *Service) MentorsWithStates(ctx context.Context, date string) ([]MentorState, error) {
	journaled, err := s.journalingDates(ctx)
	if err != nil {
		return nil, err
	}
	journal, err := s.engine.Registry().State(ctx, mentor.JournalingID)
	if err != nil {
		return nil, err
	}
	never := len(journaled) == 0 && len(journal.Summaries) == 0
	today := journaled[date]

	ids := s.Catalog().IDs()
	out := make([]MentorState, 0, len(ids))
	for _, id := range ids {
		state := regular
		switch {
		case never:
			if id == mentor.JournalingID {
				state = needsIntroduction
			}
		case !today:
			if id == mentor.JournalingID {
				state = letsCheckIn
			}
		default:
			need, err := s.engine.NeedsCheckIn(ctx, id, date)
			if err != nil {
				return nil, err
			}
			if need {
				state = letsCheckIn
			}
		}
		out = append(out, MentorState{MentorID: id, State: state})
	}
	return out, nil
}
