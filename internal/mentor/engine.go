package mentor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/hession/mentorjournal/internal/calendar"
	"github.com/hession/mentorjournal/internal/config"
	"github.com/hession/mentorjournal/internal/llm"
	"github.com/hession/mentorjournal/internal/stream"
)

var (
	// ErrNothingToSummarize is returned when a conversation has no user text
	ErrNothingToSummarize = errors.New("conversation has no user messages")
	// ErrEmptySummary is returned when the model produced no summary text
	ErrEmptySummary = errors.New("model returned an empty summary")
)

// averageSentenceLength is the character count one summary sentence
// stands for; summaries target half of the user's sentences
const averageSentenceLength = 75

// Engine produces mentor messages and summaries
type Engine struct {
	registry *Registry
	llm      llm.Completer
	prompts  *config.PromptConfig
	logger   *slog.Logger
}

// NewEngine creates an engine. prompts and logger may be nil.
func NewEngine(registry *Registry, completer llm.Completer, prompts *config.PromptConfig, logger *slog.Logger) *Engine {
	if prompts == nil {
		prompts = config.DefaultPromptConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{registry: registry, llm: completer, prompts: prompts, logger: logger}
}

// Registry returns the engine's mentor registry
func (e *Engine) Registry() *Registry {
	return e.registry
}

func quoteBlock(content string) string {
	return "\n'''\n" + content + "\n'''\n"
}

// HistoryString renders the mentor's summaries up to and including date,
// newest first, as "<relative date>: <summary>" lines. It returns "" when
// there is nothing to show.
func (e *Engine) HistoryString(ctx context.Context, id, date string) (string, error) {
	st, err := e.registry.State(ctx, id)
	if err != nil {
		return "", err
	}
	dates := st.Dates()
	lines := make([]string, 0, len(dates))
	for i := len(dates) - 1; i >= 0; i-- {
		if dates[i] > date {
			continue
		}
		lines = append(lines, calendar.Relative(dates[i], date)+": "+st.Summaries[dates[i]])
	}
	return strings.Join(lines, "\n"), nil
}

// ContextString assembles what a mentor knows on date: the date itself,
// the journal history, and (for other mentors) its own history
func (e *Engine) ContextString(ctx context.Context, id, date string) (string, error) {
	if _, err := e.registry.Definition(id); err != nil {
		return "", err
	}

	parts := []string{"Today is " + calendar.Absolute(date)}

	journal, err := e.HistoryString(ctx, JournalingID, date)
	if err != nil {
		return "", err
	}
	if journal != "" {
		parts = append(parts, "For context here are summaries of previous journal entries:\n"+quoteBlock(journal))
	}

	if id != JournalingID {
		own, err := e.HistoryString(ctx, id, date)
		if err != nil {
			return "", err
		}
		if own != "" {
			parts = append(parts, "Here are the summaries of previous conversations the user had with you:\n"+quoteBlock(own))
		}
	}
	return strings.Join(parts, "\n"), nil
}

// InitialMessage opens a conversation. A mentor without memory replays its
// first message without calling the model; otherwise the model recalls the
// last topic and asks about today.
func (e *Engine) InitialMessage(ctx context.Context, id, date string) (*stream.Stream, error) {
	def, err := e.registry.Definition(id)
	if err != nil {
		return nil, err
	}
	st, err := e.registry.State(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(st.Summaries) == 0 {
		return stream.FromText(def.FirstMessage), nil
	}

	contextStr, err := e.ContextString(ctx, id, date)
	if err != nil {
		return nil, err
	}
	prompt := def.SystemPrompt + "\n" + contextStr + "\n" + e.prompts.CheckInRule

	e.logger.Debug("requesting check-in message", "mentor", id, "date", date)
	return e.llm.Complete(ctx, llm.Request{
		Tier:     llm.Tier(e.prompts.Tiers.Welcome),
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	}), nil
}

// NewAssistantMessage requests the mentor's reply to the conversation so
// far
func (e *Engine) NewAssistantMessage(ctx context.Context, id string, messages []llm.Message, date string) (*stream.Stream, error) {
	def, err := e.registry.Definition(id)
	if err != nil {
		return nil, err
	}
	contextStr, err := e.ContextString(ctx, id, date)
	if err != nil {
		return nil, err
	}

	system := def.SystemPrompt + "\n\n" +
		e.prompts.MentoringPreamble + "\n\n" +
		contextStr + "\n" +
		e.prompts.ReplyRule

	return e.llm.Complete(ctx, llm.Request{
		Tier:     llm.Tier(e.prompts.Tiers.Reply),
		System:   system,
		Messages: append([]llm.Message(nil), messages...),
	}), nil
}

// SummaryLength is the sentence target for a summary of messages:
// round(userChars/75/2), but always at least one sentence.
func SummaryLength(messages []llm.Message) int {
	chars := 0
	for _, m := range messages {
		if m.Role == llm.RoleUser {
			chars += utf8.RuneCountInString(m.Content)
		}
	}
	n := int(math.Round(float64(chars) / averageSentenceLength / 2))
	return max(n, 1)
}

func hasUserContent(messages []llm.Message) bool {
	for _, m := range messages {
		if m.Role == llm.RoleUser && strings.TrimSpace(m.Content) != "" {
			return true
		}
	}
	return false
}

// SummarizeChat compresses what the user said in messages, stores it as the
// mentor's summary for date, and returns it
func (e *Engine) SummarizeChat(ctx context.Context, id string, messages []llm.Message, date string) (string, error) {
	if !hasUserContent(messages) {
		return "", ErrNothingToSummarize
	}
	contextStr, err := e.ContextString(ctx, id, date)
	if err != nil {
		return "", err
	}

	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = m.Role + ": " + m.Content
	}
	prompt := e.prompts.SummaryPrompt(SummaryLength(messages)) + "\n" +
		"Here is the dialog:\n" + quoteBlock(strings.Join(lines, "\n"))

	summary, err := llm.Text(ctx, e.llm, llm.Request{
		Tier:     llm.Tier(e.prompts.Tiers.Summary),
		System:   contextStr,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", id, err)
	}
	if summary == "" {
		return "", ErrEmptySummary
	}

	if err := e.registry.PutSummary(ctx, id, date, summary); err != nil {
		return "", err
	}
	e.logger.Info("mentor summary saved", "mentor", id, "date", date, "chars", len(summary))
	return summary, nil
}

// LastCheckInDate returns the date of the mentor's latest summary
func (e *Engine) LastCheckInDate(ctx context.Context, id string) (string, bool, error) {
	st, err := e.registry.State(ctx, id)
	if err != nil {
		return "", false, err
	}
	last, ok := st.LastCheckInDate()
	return last, ok, nil
}

// CheckInPressure is days since the last summary divided by the mentor's
// check-in period. ok is false for a mentor never met. Values above 1 mean
// the mentor is overdue.
func (e *Engine) CheckInPressure(ctx context.Context, id, date string) (pressure float64, ok bool, err error) {
	def, err := e.registry.Definition(id)
	if err != nil {
		return 0, false, err
	}
	last, ok, err := e.LastCheckInDate(ctx, id)
	if err != nil || !ok {
		return 0, false, err
	}
	days, err := calendar.DaysBetween(last, date)
	if err != nil {
		return 0, false, err
	}
	return float64(days) / float64(def.CheckInPeriodDays), true, nil
}

// NeedsCheckIn reports whether the mentor was never met or more than its
// check-in period has passed since the last summary
func (e *Engine) NeedsCheckIn(ctx context.Context, id, date string) (bool, error) {
	def, err := e.registry.Definition(id)
	if err != nil {
		return false, err
	}
	last, ok, err := e.LastCheckInDate(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	days, err := calendar.DaysBetween(last, date)
	if err != nil {
		return false, err
	}
	return days > def.CheckInPeriodDays, nil
}
