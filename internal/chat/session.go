package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hession/mentorjournal/internal/background"
	"github.com/hession/mentorjournal/internal/calendar"
	"github.com/hession/mentorjournal/internal/kv"
	"github.com/hession/mentorjournal/internal/llm"
	"github.com/hession/mentorjournal/internal/mentor"
	"github.com/hession/mentorjournal/internal/stream"
)

// MentorEngine is what a session needs from the mentor engine
type MentorEngine interface {
	InitialMessage(ctx context.Context, id, date string) (*stream.Stream, error)
	NewAssistantMessage(ctx context.Context, id string, messages []llm.Message, date string) (*stream.Stream, error)
	SummarizeChat(ctx context.Context, id string, messages []llm.Message, date string) (string, error)
}

// RelevanceScorer picks the mentors worth suggesting after the day's
// journaling conversation
type RelevanceScorer interface {
	RelevantMentors(ctx context.Context, date string) ([]string, error)
}

// Deps are the collaborators shared by every session
type Deps struct {
	Store  *kv.Store
	Engine MentorEngine
	Scorer RelevanceScorer // optional
	Tasks  *background.Group
	Logger *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Tasks == nil {
		d.Tasks = background.NewGroup(d.Logger, nil)
	}
	return d
}

// Session owns the in-memory state of one date's conversations.
//
// Replies are persisted by a background task once their stream completes,
// so the stored record lags the live stream; a crash in between loses the
// reply. Callers must not send a new message before the previous stream
// finished.
type Session struct {
	date string
	deps Deps

	mu      sync.Mutex
	state   State
	reply   *stream.Stream // in flight, shown as an empty assistant message
	pending []*background.Task
	summary *background.Task // latest summarize task; each one runs after the previous
}

// Exists reports whether a chat is stored for date
func Exists(ctx context.Context, store *kv.Store, date string) (bool, error) {
	var st State
	return store.Get(ctx, StateType, date, &st)
}

// List returns the dates with a stored chat, oldest first
func List(ctx context.Context, store *kv.Store) ([]string, error) {
	keys, err := store.ListKeys(ctx, StateType)
	if err != nil {
		return nil, err
	}
	dates := keys[:0]
	for _, k := range keys {
		if calendar.Valid(k) {
			dates = append(dates, k)
		}
	}
	return dates, nil
}

// Load reads the chat stored for date
func Load(ctx context.Context, date string, deps Deps) (*Session, error) {
	st := NewState()
	found, err := deps.Store.Get(ctx, StateType, date, &st)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, date)
	}
	return &Session{date: date, deps: deps.withDefaults(), state: st.Clone()}, nil
}

// Create starts the chat for date with mentorID. It returns the session,
// whose snapshot holds one empty assistant message, and the live stream of
// the mentor's opening message. The opening text is persisted once the
// stream completes.
func Create(ctx context.Context, date, mentorID string, deps Deps) (*Session, *stream.Stream, error) {
	if !calendar.Valid(date) {
		return nil, nil, fmt.Errorf("invalid chat date %q", date)
	}
	exists, err := Exists(ctx, deps.Store, date)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyExists, date)
	}

	s := &Session{date: date, deps: deps.withDefaults(), state: NewState()}
	initial, err := s.deps.Engine.InitialMessage(context.WithoutCancel(ctx), mentorID, date)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = AddAgentChat(s.state, mentorID)
	if err := s.saveLocked(ctx); err != nil {
		return nil, nil, err
	}
	s.deps.Logger.Info("chat created", "date", date, "mentor", mentorID)
	s.startReplyLocked(ctx, mentorID, initial)
	return s, initial, nil
}

// Date returns the chat's date, which is also its id
func (s *Session) Date() string {
	return s.date
}

// Snapshot returns a copy of the current state. While a reply streams, the
// active conversation ends with an empty assistant message for it.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	if s.reply != nil {
		return AddMessageToLastAgentChat(s.state, Message{Role: RoleAssistant})
	}
	return s.state.Clone()
}

// Details is the full view of a chat for display
type Details struct {
	ID                    string      `json:"id"`
	AgentChats            []AgentChat `json:"agentChats"`
	Messages              []Message   `json:"messages"`
	AgentsRelevantToToday []string    `json:"agentsRelevantToToday"`
}

// Details returns the snapshot with its conversations flattened
func (s *Session) Details() Details {
	snap := s.Snapshot()
	return Details{
		ID:                    s.date,
		AgentChats:            snap.AgentChats,
		Messages:              snap.Messages(),
		AgentsRelevantToToday: snap.AgentsRelevantToToday,
	}
}

// Streaming reports whether a reply is still in flight
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reply != nil
}

// ProcessUserMessage appends text to the active conversation and returns
// the mentor's reply stream. The reply is persisted, and the conversation
// up to and including text is summarized, in the background.
func (s *Session) ProcessUserMessage(ctx context.Context, text string) (*stream.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, ok := s.state.ActiveAgentChat()
	if !ok {
		return nil, ErrNoActiveAgentChat
	}
	userMsg := Message{Role: RoleUser, Content: text}
	history := toLLM(append(append([]Message(nil), active.Messages...), userMsg))

	reply, err := s.deps.Engine.NewAssistantMessage(context.WithoutCancel(ctx), active.AgentID, history, s.date)
	if err != nil {
		return nil, err
	}

	s.state = AddMessageToLastAgentChat(s.state, userMsg)
	if err := s.saveLocked(ctx); err != nil {
		return nil, err
	}
	s.startReplyLocked(ctx, active.AgentID, reply)

	prev := s.summary
	task := s.deps.Tasks.Go(ctx, "summarize", func(ctx context.Context) error {
		if prev != nil {
			// prev reports its own failure
			if err := prev.Wait(ctx); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
		_, err := s.deps.Engine.SummarizeChat(ctx, active.AgentID, history, s.date)
		if errors.Is(err, mentor.ErrNothingToSummarize) {
			return nil
		}
		return err
	}, "date", s.date, "mentor", active.AgentID)
	s.summary = task
	s.pending = append(s.pending, task)

	return reply, nil
}

// startReplyLocked persists reply into the last conversation once it
// completes. A failed stream is dropped.
func (s *Session) startReplyLocked(ctx context.Context, mentorID string, reply *stream.Stream) {
	s.reply = reply
	index := len(s.state.AgentChats) - 1

	task := s.deps.Tasks.Go(ctx, "persist-reply", func(ctx context.Context) error {
		text, err := reply.Result(ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.reply == reply {
			s.reply = nil
		}
		if err != nil {
			return fmt.Errorf("reply stream %s: %w", reply.ID(), err)
		}

		chats := s.state.Clone()
		chats.AgentChats[index].Messages = append(chats.AgentChats[index].Messages, Message{Role: RoleAssistant, Content: text})
		s.state = chats
		return s.saveLocked(ctx)
	}, "date", s.date, "mentor", mentorID, "stream_id", reply.ID())
	s.pending = append(s.pending, task)
}

// StartAgentChat opens a conversation with mentorID after the previous one
// was concluded. reason is the suggestion that led to it.
func (s *Session) StartAgentChat(ctx context.Context, mentorID, reason string) (*stream.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.HasAgentChat(mentorID) {
		return nil, fmt.Errorf("%w: %s on %s", ErrAgentChatExists, mentorID, s.date)
	}
	if _, active := s.state.ActiveAgentChat(); active {
		return nil, ErrAgentChatActive
	}

	initial, err := s.deps.Engine.InitialMessage(context.WithoutCancel(ctx), mentorID, s.date)
	if err != nil {
		return nil, err
	}

	s.state = AddAgentChat(s.state, mentorID)
	if err := s.saveLocked(ctx); err != nil {
		return nil, err
	}
	s.deps.Logger.Info("mentor conversation started", "date", s.date, "mentor", mentorID, "reason", reason)
	s.startReplyLocked(ctx, mentorID, initial)
	return initial, nil
}

// ConcludeAgentChat ends the active conversation, stores its summary and,
// for the journaling mentor, scores which mentors are relevant today. It
// waits for the session's background work first so the final summary is
// the last one written.
func (s *Session) ConcludeAgentChat(ctx context.Context) error {
	if err := s.Wait(ctx); err != nil {
		s.deps.Logger.Warn("background work failed before conclusion", "date", s.date, "error", err)
	}

	s.mu.Lock()
	active, ok := s.state.ActiveAgentChat()
	if !ok {
		s.mu.Unlock()
		return ErrNoActiveAgentChat
	}
	s.state = ConcludeLastAgentChat(s.state)
	err := s.saveLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.deps.Logger.Info("mentor conversation concluded", "date", s.date, "mentor", active.AgentID)

	_, err = s.deps.Engine.SummarizeChat(ctx, active.AgentID, toLLM(active.Messages), s.date)
	switch {
	case errors.Is(err, mentor.ErrNothingToSummarize):
		s.deps.Logger.Info("nothing to summarize", "date", s.date, "mentor", active.AgentID)
	case err != nil:
		return err
	}

	if active.AgentID != mentor.JournalingID || s.deps.Scorer == nil {
		return nil
	}
	ids, err := s.deps.Scorer.RelevantMentors(ctx, s.date)
	if err != nil {
		return err
	}
	return s.SetAgentsRelevantToToday(ctx, ids)
}

// SetAgentsRelevantToToday stores the mentors picked for this date
func (s *Session) SetAgentsRelevantToToday(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.AgentsRelevantToToday = append([]string{}, ids...)
	return s.saveLocked(ctx)
}

// Wait blocks until the session's background tasks have finished and
// returns their failures
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	tasks := s.pending
	s.pending = nil
	s.mu.Unlock()

	var errs []error
	for i, t := range tasks {
		if err := t.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				s.mu.Lock()
				s.pending = append(tasks[i:], s.pending...)
				s.mu.Unlock()
				return ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) saveLocked(ctx context.Context) error {
	st := s.state.Clone()
	return s.deps.Store.Set(context.WithoutCancel(ctx), StateType, s.date, &st)
}
