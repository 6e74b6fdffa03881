package live

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/hession/mentorjournal/internal/background"
	"github.com/hession/mentorjournal/internal/calendar"
	"github.com/hession/mentorjournal/internal/chat"
	"github.com/hession/mentorjournal/internal/config"
	"github.com/hession/mentorjournal/internal/kv"
	"github.com/hession/mentorjournal/internal/llm"
	"github.com/hession/mentorjournal/internal/llm/llmtest"
	"github.com/hession/mentorjournal/internal/logger"
	"github.com/hession/mentorjournal/internal/mentor"
	"github.com/hession/mentorjournal/internal/orchestrator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const today = "2024-01-10"

type countingObserver struct {
	started, finished atomic.Int32
}

func (o *countingObserver) StreamStarted()  { o.started.Add(1) }
func (o *countingObserver) StreamFinished() { o.finished.Add(1) }

type harness struct {
	svc      *orchestrator.Service
	provider *llmtest.Provider
	observer *countingObserver
	hub      *Hub
	fail     atomic.Bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.Discard()
	h := &harness{observer: &countingObserver{}}
	h.provider = &llmtest.Provider{Respond: func(c llmtest.Call) (string, error) {
		switch {
		case h.fail.Load():
			return "", errors.New("model unavailable")
		case strings.Contains(c.Last(), "Journal summary:"):
			return "- social", nil
		case strings.Contains(c.Last(), "Here is the dialog"):
			return "The user went running.", nil
		default:
			return "Nice run! 1. How far? 2. How fast? 3. How do you feel?", nil
		}
	}}
	store := kv.NewStore(kv.NewMemoryBackend(), log)
	router := llm.NewRouter(h.provider, config.DefaultConfig().Model, llm.WithLogger(log))
	h.svc = orchestrator.New(orchestrator.Options{
		Store:     store,
		Engine:    mentor.NewEngine(mentor.NewRegistry(mentor.DefaultCatalog(), store), router, nil, log),
		Completer: router,
		Tasks:     background.NewGroup(log, nil),
		Clock:     calendar.Fixed(time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)),
		Logger:    log,
	})
	h.hub = NewHub(h.svc, WithObserver(h.observer), WithLogger(log))
	t.Cleanup(func() { h.svc.Wait() })
	return h
}

func (h *harness) controller(t *testing.T) *Controller {
	t.Helper()
	c, err := h.hub.Controller(context.Background(), today)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) record(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) chunks() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for _, u := range r.updates {
		b.WriteString(u.Chunk)
	}
	return b.String()
}

func (r *recorder) last() Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[len(r.updates)-1]
}

func lastMessage(s chat.State) chat.Message {
	msgs := s.Messages()
	return msgs[len(msgs)-1]
}

func TestController_Lifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.controller(t)

	if c.Phase() != NonExistent {
		t.Fatalf("Expected nonExistent, got %s", c.Phase())
	}
	if err := c.Send(ctx, "hello", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("send before start: %v", err)
	}
	if err := c.Conclude(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("conclude before start: %v", err)
	}

	var start recorder
	if err := c.Start(ctx, "physical-health", "", start.record); err != nil {
		t.Fatal(err)
	}
	first, _ := mentor.DefaultCatalog().Get("physical-health")
	if start.chunks() != first.FirstMessage {
		t.Errorf("opening chunks = %q", start.chunks())
	}
	if got := start.last(); got.Phase != Ready || lastMessage(got.Snapshot).Content != first.FirstMessage {
		t.Errorf("unexpected final update %+v", got)
	}
	if err := c.Start(ctx, "social", "", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("start while a conversation is active: %v", err)
	}

	var reply recorder
	if err := c.Send(ctx, "I ran 5k today", reply.record); err != nil {
		t.Fatal(err)
	}
	final := reply.last()
	if final.Phase != Ready {
		t.Errorf("Expected ready, got %s", final.Phase)
	}
	msgs := final.Snapshot.Messages()
	if len(msgs) != 3 || msgs[1] != (chat.Message{Role: chat.RoleUser, Content: "I ran 5k today"}) {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if msgs[2].Role != chat.RoleAssistant || msgs[2].Content != reply.chunks() || msgs[2].Content == "" {
		t.Errorf("assistant message %q does not match chunks %q", msgs[2].Content, reply.chunks())
	}

	if err := c.Conclude(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Phase() != Concluded {
		t.Errorf("Expected concluded, got %s", c.Phase())
	}
	if !c.Snapshot().AgentChats[0].Concluded {
		t.Error("conversation not concluded in snapshot")
	}

	// Persisted state matches what the controller showed
	if err := h.svc.Wait(); err != nil {
		t.Fatal(err)
	}
	details, err := h.svc.LoadChatDetails(ctx, today)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c.Snapshot().AgentChats, details.AgentChats); diff != "" {
		t.Errorf("stored chat differs (-live +stored):\n%s", diff)
	}

	if got, want := h.observer.started.Load(), int32(2); got != want {
		t.Errorf("relays started = %d, want %d", got, want)
	}
	if h.observer.started.Load() != h.observer.finished.Load() {
		t.Error("every started relay must finish")
	}
}

func TestController_BusyWhileStreaming(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.controller(t)
	if err := c.Start(ctx, "physical-health", "", nil); err != nil {
		t.Fatal(err)
	}

	gate := make(chan struct{})
	h.provider.Gate = gate
	streaming := make(chan struct{})
	var once sync.Once
	done := make(chan error, 1)
	go func() {
		done <- c.Send(ctx, "I ran 5k today", func(u Update) {
			once.Do(func() { close(streaming) })
		})
	}()
	<-streaming

	if err := c.Send(ctx, "again", nil); !errors.Is(err, ErrBusy) {
		t.Errorf("second send: %v", err)
	}
	if err := c.Conclude(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("conclude while streaming: %v", err)
	}
	if err := c.Load(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("load while streaming: %v", err)
	}
	if last := lastMessage(c.Snapshot()); last.Role != chat.RoleAssistant || last.Content != "" {
		t.Errorf("Expected empty placeholder, got %+v", last)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if c.Phase() != Ready {
		t.Errorf("Expected ready, got %s", c.Phase())
	}
}

func TestController_ReaderLeavesMidStream(t *testing.T) {
	h := newHarness(t)
	c := h.controller(t)
	if err := c.Start(context.Background(), "physical-health", "", nil); err != nil {
		t.Fatal(err)
	}

	gate := make(chan struct{})
	h.provider.Gate = gate
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Send(ctx, "I ran 5k today", func(u Update) {
			if u.Phase == Sending && u.Chunk == "" {
				cancel()
				close(gate)
			}
		})
	}()

	if err := <-done; err != nil {
		t.Fatalf("relay should finish after the reader left: %v", err)
	}
	if c.Phase() != Ready {
		t.Errorf("Expected ready, got %s", c.Phase())
	}
	if last := lastMessage(c.Snapshot()); last.Content == "" {
		t.Error("reply text missing after reader left")
	}
}

func TestController_ModelFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.controller(t)
	if err := c.Start(ctx, "physical-health", "", nil); err != nil {
		t.Fatal(err)
	}

	h.fail.Store(true)
	var rec recorder
	if err := c.Send(ctx, "I ran 5k today", rec.record); err == nil {
		t.Fatal("Expected model failure")
	}
	if c.Phase() != Ready {
		t.Errorf("Expected ready after failure, got %s", c.Phase())
	}
	if last := lastMessage(c.Snapshot()); last.Role != chat.RoleUser {
		t.Errorf("failed reply must be dropped, last is %+v", last)
	}
	if rec.last().Phase != Ready {
		t.Errorf("final update phase %s", rec.last().Phase)
	}
}

func TestController_ConcludeJournaling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.controller(t)

	if err := c.Start(ctx, mentor.JournalingID, "", nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Send(ctx, "Went for a run with friends.", nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Conclude(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"social"}, c.Snapshot().AgentsRelevantToToday); diff != "" {
		t.Errorf("relevant mentors mismatch:\n%s", diff)
	}

	if err := c.Start(ctx, "social", orchestrator.ReasonRelevantToToday, nil); err != nil {
		t.Fatal(err)
	}
	if got := c.Snapshot().AgentChats; len(got) != 2 || got[1].AgentID != "social" {
		t.Errorf("unexpected conversations %+v", got)
	}
}

func TestController_FailedConclusionReloads(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.controller(t)

	if err := c.Start(ctx, mentor.JournalingID, "", nil); err != nil {
		t.Fatal(err)
	}
	// Nothing was journaled, so relevance cannot be scored
	if err := c.Conclude(ctx); !errors.Is(err, orchestrator.ErrNoJournalSummary) {
		t.Fatalf("Expected ErrNoJournalSummary, got %v", err)
	}
	if c.Phase() != Concluded {
		t.Errorf("Expected concluded, got %s", c.Phase())
	}
}

func TestHub_LoadsStoredChat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	started, err := h.svc.CreateAgentChat(ctx, "2024-01-09", "finance", "")
	if err != nil {
		t.Fatal(err)
	}
	started.Stream.Result(ctx)
	if err := h.svc.Wait(); err != nil {
		t.Fatal(err)
	}

	c, err := h.hub.Controller(ctx, "2024-01-09")
	if err != nil {
		t.Fatal(err)
	}
	if c.Phase() != Ready {
		t.Errorf("Expected ready, got %s", c.Phase())
	}
	again, err := h.hub.Controller(ctx, "2024-01-09")
	if err != nil {
		t.Fatal(err)
	}
	if again != c {
		t.Error("hub must share one controller per date")
	}
}

type slowChats struct {
	*orchestrator.Service
	date    string
	entered chan struct{}
	release chan struct{}
}

func (s *slowChats) LoadChatDetails(ctx context.Context, date string) (chat.Details, error) {
	if date == s.date {
		close(s.entered)
		<-s.release
	}
	return s.Service.LoadChatDetails(ctx, date)
}

func TestHub_SlowLoadDoesNotBlockOtherDates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	slow := &slowChats{Service: h.svc, date: "2024-01-09", entered: make(chan struct{}), release: make(chan struct{})}
	hub := NewHub(slow)

	first := make(chan error, 1)
	go func() {
		_, err := hub.Controller(ctx, slow.date)
		first <- err
	}()
	<-slow.entered

	other := make(chan error, 1)
	go func() {
		_, err := hub.Controller(ctx, today)
		other <- err
	}()
	select {
	case err := <-other:
		if err != nil {
			t.Errorf("Controller(%s): %v", today, err)
		}
	case <-time.After(time.Second):
		t.Error("loading one date blocked another")
	}

	close(slow.release)
	if err := <-first; err != nil {
		t.Errorf("Controller(%s): %v", slow.date, err)
	}
}
