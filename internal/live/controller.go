// Package live turns reply streams into incrementally updated chat
// snapshots for a UI, and gates what the UI may do while a reply is in
// flight.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hession/mentorjournal/internal/chat"
	"github.com/hession/mentorjournal/internal/orchestrator"
	"github.com/hession/mentorjournal/internal/stream"
)

// Phase is the lifecycle state of a day's chat as the UI sees it
type Phase string

// Lifecycle phases
const (
	NonExistent Phase = "nonExistent"
	Sending     Phase = "sending"
	Ready       Phase = "ready"
	Concluded   Phase = "concluded"
)

var (
	// ErrBusy is returned while a reply is still streaming
	ErrBusy = errors.New("a reply is still streaming")
	// ErrInvalidTransition is returned for an operation the current phase
	// does not allow
	ErrInvalidTransition = errors.New("operation not allowed in this phase")
)

// Chats is what a controller needs from the orchestrator
type Chats interface {
	CreateAgentChat(ctx context.Context, date, mentorID, reason string) (orchestrator.Started, error)
	SendMessage(ctx context.Context, date, text string) (*stream.Stream, error)
	ConcludeChat(ctx context.Context, date string) error
	LoadChatDetails(ctx context.Context, date string) (chat.Details, error)
}

// StreamObserver is told when a relay starts and ends
type StreamObserver interface {
	StreamStarted()
	StreamFinished()
}

// Update is delivered for every change of the snapshot while relaying
type Update struct {
	Phase    Phase      `json:"phase"`
	Chunk    string     `json:"chunk,omitempty"`
	Snapshot chat.State `json:"snapshot"`
}

// Controller drives the chat of one date
type Controller struct {
	date     string
	chats    Chats
	observer StreamObserver
	logger   *slog.Logger

	mu       sync.Mutex
	phase    Phase
	snapshot chat.State
}

// Option configures a Controller
type Option func(*Controller)

// WithObserver reports relays to o
func WithObserver(o StreamObserver) Option {
	return func(c *Controller) { c.observer = o }
}

// WithLogger sets the controller logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a controller for date in the NonExistent phase.
// Call Load to pick up a stored chat.
func NewController(date string, chats Chats, opts ...Option) *Controller {
	c := &Controller{
		date:     date,
		chats:    chats,
		logger:   slog.Default(),
		phase:    NonExistent,
		snapshot: chat.NewState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Date returns the controller's chat date
func (c *Controller) Date() string {
	return c.date
}

// Phase returns the current phase
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Snapshot returns the current snapshot
func (c *Controller) Snapshot() chat.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Clone()
}

// Load reads the stored chat and derives the phase from it: Ready while a
// conversation is active, Concluded otherwise, NonExistent when nothing is
// stored.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.phase == Sending {
		c.mu.Unlock()
		return ErrBusy
	}
	c.mu.Unlock()

	details, err := c.chats.LoadChatDetails(ctx, c.date)
	switch {
	case errors.Is(err, chat.ErrNotFound):
		c.set(NonExistent, chat.NewState())
		return nil
	case err != nil:
		return err
	}

	snap := chat.NewState()
	snap.AgentChats = details.AgentChats
	snap.AgentsRelevantToToday = details.AgentsRelevantToToday
	phase := Concluded
	if _, ok := snap.ActiveAgentChat(); ok {
		phase = Ready
	}
	c.set(phase, snap)
	return nil
}

// Start opens a conversation with mentorID and relays its opening message.
// It blocks until the message has finished streaming.
func (c *Controller) Start(ctx context.Context, mentorID, reason string, onUpdate func(Update)) error {
	if err := c.begin(NonExistent, Concluded); err != nil {
		return err
	}

	started, err := c.chats.CreateAgentChat(ctx, c.date, mentorID, reason)
	if err != nil {
		c.abort()
		return err
	}
	// The session snapshot ends with the placeholder for the opening message
	_, err = c.relay(ctx, started.Snapshot, started.Stream, onUpdate)
	return err
}

// Send appends text to the active conversation and relays the reply. It
// blocks until the reply has finished streaming.
func (c *Controller) Send(ctx context.Context, text string, onUpdate func(Update)) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidTransition)
	}
	if err := c.begin(Ready); err != nil {
		return err
	}

	reply, err := c.chats.SendMessage(ctx, c.date, text)
	if err != nil {
		c.abort()
		return err
	}

	base := chat.AddMessageToLastAgentChat(c.Snapshot(), chat.Message{Role: chat.RoleUser, Content: text})
	base = chat.AddMessageToLastAgentChat(base, chat.Message{Role: chat.RoleAssistant})
	_, err = c.relay(ctx, base, reply, onUpdate)
	return err
}

// Conclude ends the active conversation
func (c *Controller) Conclude(ctx context.Context) error {
	if err := c.begin(Ready); err != nil {
		return err
	}
	if err := c.chats.ConcludeChat(ctx, c.date); err != nil {
		// The conversation may be concluded even though a later step failed
		c.abort()
		if loadErr := c.Load(ctx); loadErr != nil {
			c.logger.Warn("reload after failed conclusion", "date", c.date, "error", loadErr)
		}
		return err
	}

	c.mu.Lock()
	c.snapshot = chat.ConcludeLastAgentChat(c.snapshot)
	c.phase = Concluded
	c.mu.Unlock()

	// Concluding journaling stores the mentors relevant today
	return c.Load(ctx)
}

// begin moves to Sending if the current phase is one of from
func (c *Controller) begin(from ...Phase) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == Sending {
		return ErrBusy
	}
	for _, p := range from {
		if c.phase == p {
			c.phase = Sending
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidTransition, c.phase)
}

// abort undoes begin after the operation failed before streaming
func (c *Controller) abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = phaseOf(c.snapshot)
}

func phaseOf(s chat.State) Phase {
	if len(s.AgentChats) == 0 {
		return NonExistent
	}
	if _, ok := s.ActiveAgentChat(); ok {
		return Ready
	}
	return Concluded
}

func (c *Controller) set(phase Phase, snap chat.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = phase
	c.snapshot = snap
}

// relay applies the chunks of s to base, whose last message is the empty
// placeholder for s. A reader that goes away does not abandon the stream:
// the phase only returns to Ready once the stream has completed. A failed
// stream drops the placeholder.
func (c *Controller) relay(ctx context.Context, base chat.State, s *stream.Stream, onUpdate func(Update)) (string, error) {
	if onUpdate == nil {
		onUpdate = func(Update) {}
	}
	if c.observer != nil {
		c.observer.StreamStarted()
		defer c.observer.StreamFinished()
	}

	c.set(Sending, base)
	onUpdate(Update{Phase: Sending, Snapshot: base.Clone()})

	var acc strings.Builder
	var streamErr error
	for chunk, err := range s.Chunks(ctx) {
		if err != nil {
			streamErr = err
			break
		}
		acc.WriteString(chunk)
		snap := chat.UpdateLastMessage(base, acc.String())
		c.set(Sending, snap)
		onUpdate(Update{Phase: Sending, Chunk: chunk, Snapshot: snap.Clone()})
	}

	text := acc.String()
	if streamErr != nil && ctx.Err() != nil {
		c.logger.Debug("reader left, waiting for stream", "date", c.date, "stream_id", s.ID())
		text, streamErr = s.Result(context.WithoutCancel(ctx))
	}

	if streamErr != nil {
		final := dropLastMessage(base)
		c.set(phaseOf(final), final)
		c.logger.Warn("reply stream failed", "date", c.date, "stream_id", s.ID(), "error", streamErr)
		onUpdate(Update{Phase: phaseOf(final), Snapshot: final.Clone()})
		return "", streamErr
	}

	final := chat.UpdateLastMessage(base, text)
	c.set(Ready, final)
	onUpdate(Update{Phase: Ready, Snapshot: final.Clone()})
	return text, nil
}

func dropLastMessage(s chat.State) chat.State {
	out := s.Clone()
	if n := len(out.AgentChats); n > 0 {
		msgs := out.AgentChats[n-1].Messages
		if len(msgs) > 0 {
			out.AgentChats[n-1].Messages = msgs[:len(msgs)-1]
		}
	}
	return out
}
