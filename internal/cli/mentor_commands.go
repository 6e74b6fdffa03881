package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/hession/mentorjournal/internal/calendar"
	"github.com/hession/mentorjournal/internal/orchestrator"
)

// CommandSuggestion is a completable command
type CommandSuggestion struct {
	Text        string
	Description string
}

// MentorCommands answers the read-only mentor and chat commands
type MentorCommands struct {
	svc *orchestrator.Service
}

// NewMentorCommands creates the command handler
func NewMentorCommands(svc *orchestrator.Service) *MentorCommands {
	return &MentorCommands{svc: svc}
}

// HandleCommand handles a browsing command
// Returns: (whether the command was handled, output)
func (c *MentorCommands) HandleCommand(ctx context.Context, cmd string) (bool, string) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, ""
	}

	switch strings.ToLower(parts[0]) {
	case "/mentors":
		return true, c.mentors()
	case "/states":
		date := c.svc.Today()
		if len(parts) > 1 {
			date = parts[1]
		}
		return true, c.states(ctx, date)
	case "/chats":
		return true, c.chats(ctx)
	case "/show":
		if len(parts) < 2 {
			return true, "❌ Please specify a date: /show <YYYY-MM-DD>"
		}
		return true, c.show(ctx, parts[1])
	case "/history":
		if len(parts) < 2 {
			return true, "❌ Please name a mentor: /history <mentor>"
		}
		return true, c.history(ctx, parts[1])
	default:
		return false, ""
	}
}

func (c *MentorCommands) mentors() string {
	var b strings.Builder
	b.WriteString("🧭 Mentors\n\n")
	for _, def := range c.svc.Catalog().All() {
		fmt.Fprintf(&b, "  %-16s %s (every %d days)\n", def.ID, def.Name, def.CheckInPeriodDays)
	}
	return b.String()
}

func (c *MentorCommands) states(ctx context.Context, date string) string {
	if !calendar.Valid(date) {
		return fmt.Sprintf("❌ Invalid date %q, use YYYY-MM-DD", date)
	}
	states, err := c.svc.MentorsWithStates(ctx, date)
	if err != nil {
		return fmt.Sprintf("❌ Failed to get mentor states: %v", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 Mentor states for %s\n\n", calendar.Absolute(date))
	for _, s := range states {
		mark := "  "
		if s.State.Type == orchestrator.StateNeedsAttention {
			mark = "❗"
		}
		fmt.Fprintf(&b, "%s %-16s %s\n", mark, s.MentorID, s.State.Msg)
	}
	return b.String()
}

func (c *MentorCommands) chats(ctx context.Context) string {
	chats, err := c.svc.FetchOldChats(ctx)
	if err != nil {
		return fmt.Sprintf("❌ Failed to list chats: %v", err)
	}
	if len(chats) == 0 {
		return "📋 No chats yet"
	}

	today := c.svc.Today()
	var b strings.Builder
	b.WriteString("📋 Chats\n\n")
	for _, ch := range chats {
		fmt.Fprintf(&b, "  %s  %s\n", ch.ID, calendar.Relative(ch.ID, today))
	}
	return b.String()
}

func (c *MentorCommands) show(ctx context.Context, date string) string {
	if !calendar.Valid(date) {
		return fmt.Sprintf("❌ Invalid date %q, use YYYY-MM-DD", date)
	}
	details, err := c.svc.LoadChatDetails(ctx, date)
	if err != nil {
		return fmt.Sprintf("❌ Failed to load chat: %v", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📖 %s\n", calendar.Absolute(date))
	for _, ac := range details.AgentChats {
		status := "active"
		if ac.Concluded {
			status = "concluded"
		}
		fmt.Fprintf(&b, "\n[%s, %s, %d messages]\n", ac.AgentID, status, len(ac.Messages))
		for _, m := range ac.Messages {
			fmt.Fprintf(&b, "  %-9s %s\n", m.Role+":", truncateForDisplay(m.Content, 100))
		}
	}
	if len(details.AgentsRelevantToToday) > 0 {
		fmt.Fprintf(&b, "\nRelevant today: %s\n", strings.Join(details.AgentsRelevantToToday, ", "))
	}
	return b.String()
}

func (c *MentorCommands) history(ctx context.Context, id string) string {
	st, err := c.svc.MentorMemory(ctx, id)
	if err != nil {
		return fmt.Sprintf("❌ Failed to load history: %v", err)
	}
	dates := st.Dates()
	if len(dates) == 0 {
		return fmt.Sprintf("📋 No conversations with %s yet", id)
	}

	today := c.svc.Today()
	var b strings.Builder
	fmt.Fprintf(&b, "🧠 %s remembers\n\n", id)
	for i := len(dates) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "  %s: %s\n", calendar.Relative(dates[i], today), truncateForDisplay(st.Summaries[dates[i]], 120))
	}
	return b.String()
}

func (c *MentorCommands) suggestions(ctx context.Context, date string) string {
	suggestions, err := c.svc.GetAgentSuggestions(ctx, date)
	if err != nil {
		return fmt.Sprintf("❌ Failed to get suggestions: %v", err)
	}
	if len(suggestions) == 0 {
		return "🎉 You talked to every mentor today"
	}

	var b strings.Builder
	b.WriteString("💡 Talk to next\n\n")
	for _, s := range suggestions {
		fmt.Fprintf(&b, "  /talk %-16s %s\n", s.MentorID, reasonLabel(s.Reason))
	}
	return b.String()
}

func reasonLabel(reason string) string {
	switch reason {
	case orchestrator.ReasonRelevantToToday:
		return "relevant to today"
	case orchestrator.ReasonCatchUp:
		return "time to catch up"
	case orchestrator.ReasonFirstMeet:
		return "not met yet"
	default:
		return reason
	}
}

// truncateForDisplay flattens text to one line of at most maxLen runes
func truncateForDisplay(text string, maxLen int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}

// GetCommandSuggestions returns the commands offered for completion
func GetCommandSuggestions() []CommandSuggestion {
	return []CommandSuggestion{
		{Text: "/talk", Description: "Start a conversation with a mentor"},
		{Text: "/done", Description: "Conclude the current conversation"},
		{Text: "/suggest", Description: "Show which mentors to talk to next"},
		{Text: "/open", Description: "Open the chat of a date"},
		{Text: "/mentors", Description: "List mentors"},
		{Text: "/states", Description: "Show which mentors need attention"},
		{Text: "/chats", Description: "List stored chats"},
		{Text: "/show", Description: "Show the chat of a date"},
		{Text: "/history", Description: "Show a mentor's summaries"},
		{Text: "/config", Description: "Show current configuration"},
		{Text: "/help", Description: "Show help"},
		{Text: "/exit", Description: "Exit program"},
	}
}
