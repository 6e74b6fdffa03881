// Package orchestrator is the surface the UI layer talks to: it owns the
// open chat sessions, decides which mentor speaks, and ranks the mentors
// to suggest next.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hession/mentorjournal/internal/background"
	"github.com/hession/mentorjournal/internal/calendar"
	"github.com/hession/mentorjournal/internal/chat"
	"github.com/hession/mentorjournal/internal/config"
	"github.com/hession/mentorjournal/internal/kv"
	"github.com/hession/mentorjournal/internal/llm"
	"github.com/hession/mentorjournal/internal/mentor"
	"github.com/hession/mentorjournal/internal/stream"
)

// Options configures a Service
type Options struct {
	Store     *kv.Store
	Engine    *mentor.Engine
	Completer llm.Completer
	Prompts   *config.PromptConfig
	Tasks     *background.Group
	Clock     calendar.Clock // nil means the system clock
	Logger    *slog.Logger
}

// Service coordinates chat sessions and mentor suggestions
type Service struct {
	store   *kv.Store
	engine  *mentor.Engine
	llm     llm.Completer
	prompts *config.PromptConfig
	tasks   *background.Group
	clock   calendar.Clock
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*chat.Session
}

// New creates a service
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Prompts == nil {
		opts.Prompts = config.DefaultPromptConfig()
	}
	if opts.Tasks == nil {
		opts.Tasks = background.NewGroup(opts.Logger, nil)
	}
	return &Service{
		store:    opts.Store,
		engine:   opts.Engine,
		llm:      opts.Completer,
		prompts:  opts.Prompts,
		tasks:    opts.Tasks,
		clock:    opts.Clock,
		logger:   opts.Logger,
		sessions: make(map[string]*chat.Session),
	}
}

// Catalog returns the mentor catalog
func (s *Service) Catalog() *mentor.Catalog {
	return s.engine.Registry().Catalog()
}

// MentorMemory returns the summaries stored for mentor id
func (s *Service) MentorMemory(ctx context.Context, id string) (mentor.State, error) {
	if _, err := s.engine.Registry().Definition(id); err != nil {
		return mentor.State{}, err
	}
	return s.engine.Registry().State(ctx, id)
}

// Today returns today's date string
func (s *Service) Today() string {
	return s.clock.Today()
}

func (s *Service) deps() chat.Deps {
	return chat.Deps{
		Store:  s.store,
		Engine: s.engine,
		Scorer: s,
		Tasks:  s.tasks,
		Logger: s.logger,
	}
}

// ChatSummary identifies a stored chat
type ChatSummary struct {
	ID string `json:"id"`
}

// FetchOldChats lists every stored chat, newest first, without messages
func (s *Service) FetchOldChats(ctx context.Context) ([]ChatSummary, error) {
	dates, err := chat.List(ctx, s.store)
	if err != nil {
		return nil, err
	}
	out := make([]ChatSummary, 0, len(dates))
	for i := len(dates) - 1; i >= 0; i-- {
		out = append(out, ChatSummary{ID: dates[i]})
	}
	return out, nil
}

// Session returns the open session for date, loading it if needed
func (s *Service) Session(ctx context.Context, date string) (*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionLocked(ctx, date)
}

func (s *Service) sessionLocked(ctx context.Context, date string) (*chat.Session, error) {
	if sess, ok := s.sessions[date]; ok {
		return sess, nil
	}
	sess, err := chat.Load(ctx, date, s.deps())
	if err != nil {
		return nil, err
	}
	s.sessions[date] = sess
	return sess, nil
}

// Started is the result of opening a mentor conversation
type Started struct {
	Snapshot chat.State
	Stream   *stream.Stream
}

// StartNewChat creates today's chat with the journaling mentor
func (s *Service) StartNewChat(ctx context.Context) (Started, error) {
	return s.CreateAgentChat(ctx, s.Today(), mentor.JournalingID, "")
}

// CreateAgentChat opens a conversation with mentorID on date, creating the
// day's chat when there is none yet
func (s *Service) CreateAgentChat(ctx context.Context, date, mentorID, reason string) (Started, error) {
	if !calendar.Valid(date) {
		return Started{}, fmt.Errorf("invalid chat date %q", date)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessionLocked(ctx, date)
	switch {
	case errors.Is(err, chat.ErrNotFound):
		sess, initial, err := chat.Create(ctx, date, mentorID, s.deps())
		if err != nil {
			return Started{}, err
		}
		s.sessions[date] = sess
		return Started{Snapshot: sess.Snapshot(), Stream: initial}, nil
	case err != nil:
		return Started{}, err
	}

	initial, err := sess.StartAgentChat(ctx, mentorID, reason)
	if err != nil {
		return Started{}, err
	}
	return Started{Snapshot: sess.Snapshot(), Stream: initial}, nil
}

// SendMessage sends text to the active conversation on date
func (s *Service) SendMessage(ctx context.Context, date, text string) (*stream.Stream, error) {
	sess, err := s.Session(ctx, date)
	if err != nil {
		return nil, err
	}
	return sess.ProcessUserMessage(ctx, text)
}

// LoadChatDetails returns the full state of the chat on date
func (s *Service) LoadChatDetails(ctx context.Context, date string) (chat.Details, error) {
	sess, err := s.Session(ctx, date)
	if err != nil {
		return chat.Details{}, err
	}
	return sess.Details(), nil
}

// ConcludeChat concludes the active conversation on date
func (s *Service) ConcludeChat(ctx context.Context, date string) error {
	sess, err := s.Session(ctx, date)
	if err != nil {
		return err
	}
	return sess.ConcludeAgentChat(ctx)
}

// Wait blocks until all background work of every session has finished
func (s *Service) Wait() error {
	return s.tasks.Wait()
}
