package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	prompt "github.com/c-bata/go-prompt"

	"github.com/hession/mentorjournal/internal/background"
	"github.com/hession/mentorjournal/internal/calendar"
	"github.com/hession/mentorjournal/internal/config"
	"github.com/hession/mentorjournal/internal/kv"
	"github.com/hession/mentorjournal/internal/live"
	"github.com/hession/mentorjournal/internal/llm"
	"github.com/hession/mentorjournal/internal/llm/llmtest"
	"github.com/hession/mentorjournal/internal/logger"
	"github.com/hession/mentorjournal/internal/mentor"
	"github.com/hession/mentorjournal/internal/orchestrator"
)

func TestVersion(t *testing.T) {
	if Version != "0.2.0" {
		t.Errorf("Expected Version to be '0.2.0', got '%s'", Version)
	}
}

func TestTruncateForDisplay(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxLen   int
		expected string
	}{
		{
			name:     "short text",
			text:     "Hello",
			maxLen:   10,
			expected: "Hello",
		},
		{
			name:     "exact length",
			text:     "Hello",
			maxLen:   5,
			expected: "Hello",
		},
		{
			name:     "truncate",
			text:     "Hello World",
			maxLen:   5,
			expected: "Hello...",
		},
		{
			name:     "with newlines",
			text:     "Hello\nWorld",
			maxLen:   20,
			expected: "Hello World",
		},
		{
			name:     "multibyte",
			text:     "héllo wörld",
			maxLen:   5,
			expected: "héllo...",
		},
		{
			name:     "empty string",
			text:     "",
			maxLen:   10,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateForDisplay(tt.text, tt.maxLen)
			if got != tt.expected {
				t.Errorf("truncateForDisplay(%q, %d) = %q, want %q", tt.text, tt.maxLen, got, tt.expected)
			}
		})
	}
}

func newREPL(t *testing.T) (*REPL, *bytes.Buffer, *orchestrator.Service) {
	t.Helper()
	log := logger.Discard()
	provider := &llmtest.Provider{Respond: func(c llmtest.Call) (string, error) {
		switch {
		case strings.Contains(c.Last(), "Journal summary:"):
			return "- growth", nil
		case strings.Contains(c.Last(), "Here is the dialog"):
			return "The user learned Go.", nil
		default:
			return "Great progress! 1. What next? 2. Why? 3. When?", nil
		}
	}}
	store := kv.NewStore(kv.NewMemoryBackend(), log)
	router := llm.NewRouter(provider, config.DefaultConfig().Model, llm.WithLogger(log))
	svc := orchestrator.New(orchestrator.Options{
		Store:     store,
		Engine:    mentor.NewEngine(mentor.NewRegistry(mentor.DefaultCatalog(), store), router, nil, log),
		Completer: router,
		Tasks:     background.NewGroup(log, nil),
		Clock:     calendar.Fixed(time.Date(2024, 1, 10, 21, 0, 0, 0, time.UTC)),
		Logger:    log,
	})
	t.Cleanup(func() { svc.Wait() })

	out := &bytes.Buffer{}
	r := New(Options{
		Service: svc,
		Hub:     live.NewHub(svc, live.WithLogger(log)),
		Config:  config.DefaultConfig(),
		Out:     out,
	})
	return r, out, svc
}

func TestREPL_JournalingDay(t *testing.T) {
	r, out, svc := newREPL(t)
	ctx := context.Background()

	if err := r.open(ctx, svc.Today()); err != nil {
		t.Fatal(err)
	}
	journaling, _ := svc.Catalog().Get(mentor.JournalingID)
	if !strings.Contains(out.String(), journaling.FirstMessage) {
		t.Errorf("today should open with journaling:\n%s", out.String())
	}

	out.Reset()
	if !r.Execute(ctx, "Finished the Go course today.") {
		t.Fatal("REPL should keep running")
	}
	if !strings.Contains(out.String(), "Great progress!") {
		t.Errorf("reply missing:\n%s", out.String())
	}

	out.Reset()
	r.Execute(ctx, "/done")
	if !strings.Contains(out.String(), "Conversation concluded") || !strings.Contains(out.String(), "/talk growth") {
		t.Errorf("conclusion output:\n%s", out.String())
	}
	if strings.Index(out.String(), "growth") > strings.Index(out.String(), "physical-health") {
		t.Errorf("relevant mentor should be suggested first:\n%s", out.String())
	}

	out.Reset()
	r.Execute(ctx, "/talk growth relevantToToday")
	growth, _ := svc.Catalog().Get("growth")
	if !strings.Contains(out.String(), growth.FirstMessage) {
		t.Errorf("growth opening missing:\n%s", out.String())
	}
	if r.current.Phase() != live.Ready {
		t.Errorf("Expected ready, got %s", r.current.Phase())
	}

	out.Reset()
	r.Execute(ctx, "/talk social")
	if !strings.Contains(out.String(), "/talk <mentor>") && !strings.Contains(out.String(), "not allowed") {
		t.Errorf("starting a second active conversation should be refused:\n%s", out.String())
	}
}

func TestREPL_Commands(t *testing.T) {
	r, out, svc := newREPL(t)
	ctx := context.Background()
	if err := r.open(ctx, svc.Today()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		cmd  string
		want string
	}{
		{"/help", "mentorjournal Help"},
		{"/mentors", "mindfulness"},
		{"/states 2024-01-01", "Needs introduction"},
		{"/states tomorrow", "Invalid date"},
		{"/chats", "2024-01-10  Today"},
		{"/show 2024-01-10", "[journaling, active, 1 messages]"},
		{"/show 2023-01-01", "Failed to load chat"},
		{"/history finance", "No conversations with finance yet"},
		{"/history astrology", "Failed to load history"},
		{"/suggest", "/talk physical-health"},
		{"/config", "Smart Model"},
		{"/open 2024-01-09", "No chat on 2024-01-09"},
		{"/frobnicate", "Unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			out.Reset()
			if !r.Execute(ctx, tt.cmd) {
				t.Fatal("REPL should keep running")
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("%s output missing %q:\n%s", tt.cmd, tt.want, out.String())
			}
		})
	}

	if r.Execute(ctx, "/exit") {
		t.Error("/exit should stop the REPL")
	}
	if !r.exiting {
		t.Error("exit checker flag not set")
	}
}

func TestComplete(t *testing.T) {
	r, _, _ := newREPL(t)

	complete := func(text string) []string {
		b := prompt.NewBuffer()
		b.InsertText(text, false, true)
		var got []string
		for _, s := range r.Complete(*b.Document()) {
			got = append(got, s.Text)
		}
		return got
	}

	if got := complete("/ta"); len(got) != 1 || got[0] != "/talk" {
		t.Errorf("complete(/ta) = %v", got)
	}
	if got := complete("/talk m"); len(got) != 2 || got[0] != "mental-health" || got[1] != "mindfulness" {
		t.Errorf("complete(/talk m) = %v", got)
	}
	if got := complete("/history "); len(got) != 8 {
		t.Errorf("complete(/history ) = %v", got)
	}
	if got := complete("hello"); got != nil {
		t.Errorf("plain text should not complete, got %v", got)
	}
}
