package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/hession/mentorjournal/internal/calendar"
)

// handleCommand handles built-in commands, returns true to continue loop, false to exit
func (r *REPL) handleCommand(ctx context.Context, cmd string) bool {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true
	}

	command := strings.ToLower(parts[0])

	switch command {
	case "/help":
		r.printHelp()
		return true

	case "/exit", "/quit", "/q":
		return false

	case "/config":
		if r.cfg == nil {
			fmt.Fprintf(r.out, "%s❌ No configuration loaded%s\n", colorRed, colorReset)
		} else {
			fmt.Fprintln(r.out, r.cfg.String())
		}
		return true

	case "/talk":
		if len(parts) < 2 {
			fmt.Fprintf(r.out, "%s❌ Please name a mentor: /talk <mentor>%s\n", colorRed, colorReset)
			return true
		}
		reason := ""
		if len(parts) > 2 {
			reason = parts[2]
		}
		if err := r.start(ctx, parts[1], reason); err != nil {
			fmt.Fprintf(r.out, "%s❌ %v%s\n", colorRed, err, colorReset)
		}
		return true

	case "/done":
		if err := r.current.Conclude(ctx); err != nil {
			fmt.Fprintf(r.out, "%s❌ Failed to conclude: %v%s\n", colorRed, err, colorReset)
			return true
		}
		fmt.Fprintf(r.out, "%s✅ Conversation concluded%s\n", colorGreen, colorReset)
		fmt.Fprintln(r.out, r.commands.suggestions(ctx, r.current.Date()))
		return true

	case "/open":
		date := r.svc.Today()
		if len(parts) > 1 {
			date = parts[1]
		}
		if !calendar.Valid(date) {
			fmt.Fprintf(r.out, "%s❌ Invalid date %q, use YYYY-MM-DD%s\n", colorRed, date, colorReset)
			return true
		}
		if err := r.open(ctx, date); err != nil {
			fmt.Fprintf(r.out, "%s❌ Failed to open %s: %v%s\n", colorRed, date, err, colorReset)
		}
		return true

	case "/suggest":
		fmt.Fprintln(r.out, r.commands.suggestions(ctx, r.current.Date()))
		return true

	default:
		if handled, output := r.commands.HandleCommand(ctx, cmd); handled {
			fmt.Fprintln(r.out, output)
			return true
		}
		fmt.Fprintf(r.out, "%s❓ Unknown command: %s%s\n", colorYellow, cmd, colorReset)
		fmt.Fprintln(r.out, "Type /help for available commands")
		return true
	}
}

// printHelp prints help information
func (r *REPL) printHelp() {
	fmt.Fprintf(r.out, `
%s📚 mentorjournal Help%s

%sConversation:%s
  /talk <mentor> [reason] - Start a conversation with a mentor
  /done                   - Conclude the current conversation
  /suggest                - Show which mentors to talk to next
  /open [date]            - Open the chat of a date (default today)

%sBrowsing:%s
  /mentors                - List mentors
  /states [date]          - Show which mentors need attention
  /chats                  - List stored chats
  /show <date>            - Show the chat of a date
  /history <mentor>       - Show a mentor's summaries

%sOther:%s
  /config                 - Show current configuration
  /help                   - Show this help message
  /exit                   - Exit program

%sInput Tips:%s
  • Anything not starting with / is sent to the current mentor
  • Press Tab to complete commands and mentor ids
  • Press Ctrl+D on an empty line to quit

`, colorCyan, colorReset, colorYellow, colorReset, colorYellow, colorReset, colorYellow, colorReset, colorYellow, colorReset)
}
