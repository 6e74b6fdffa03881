package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	prompt "github.com/c-bata/go-prompt"

	"github.com/hession/mentorjournal/internal/chat"
	"github.com/hession/mentorjournal/internal/config"
	"github.com/hession/mentorjournal/internal/live"
	"github.com/hession/mentorjournal/internal/mentor"
	"github.com/hession/mentorjournal/internal/orchestrator"
)

const (
	Version = "0.2.0"

	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// Options configures the REPL
type Options struct {
	Service *orchestrator.Service
	Hub     *live.Hub
	Config  *config.Config
	Out     io.Writer // defaults to os.Stdout
}

// REPL is the interactive journaling session
type REPL struct {
	svc      *orchestrator.Service
	hub      *live.Hub
	cfg      *config.Config
	out      io.Writer
	commands *MentorCommands

	current *live.Controller
	exiting bool
}

// New creates a REPL
func New(opts Options) *REPL {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	r := &REPL{
		svc: opts.Service,
		hub: opts.Hub,
		cfg: opts.Config,
		out: opts.Out,
	}
	r.commands = NewMentorCommands(opts.Service)
	return r
}

// Run opens today's chat and reads input until /exit, Ctrl+D or a signal
func (r *REPL) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r.printWelcome()
	if err := r.open(ctx, r.svc.Today()); err != nil {
		return err
	}

	p := prompt.New(
		func(in string) { r.Execute(ctx, in) },
		r.Complete,
		prompt.OptionTitle("mentorjournal"),
		prompt.OptionLivePrefix(r.livePrefix),
		prompt.OptionPrefixTextColor(prompt.Green),
		prompt.OptionSuggestionBGColor(prompt.DarkGray),
		prompt.OptionDescriptionBGColor(prompt.LightGray),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
			return r.exiting || ctx.Err() != nil
		}),
	)
	p.Run()

	fmt.Fprintf(r.out, "\n%sGoodbye! 👋%s\n", colorCyan, colorReset)
	return nil
}

func (r *REPL) livePrefix() (string, bool) {
	if r.current == nil {
		return "You: ", true
	}
	return fmt.Sprintf("[%s %s] You: ", r.current.Date(), r.current.Phase()), true
}

// open switches to the chat of date and greets the user: an active
// conversation is shown, a new day starts with journaling
func (r *REPL) open(ctx context.Context, date string) error {
	c, err := r.hub.Controller(ctx, date)
	if err != nil {
		return err
	}
	r.current = c

	switch c.Phase() {
	case live.NonExistent:
		if date == r.svc.Today() {
			return r.start(ctx, mentor.JournalingID, "")
		}
		fmt.Fprintf(r.out, "%sNo chat on %s. Use /talk <mentor> to start one.%s\n", colorGray, date, colorReset)
	default:
		r.printTranscript(c)
	}
	return nil
}

// Execute handles one line of input. It reports whether the REPL keeps
// running.
func (r *REPL) Execute(ctx context.Context, in string) bool {
	input := strings.TrimSpace(in)
	if input == "" {
		return true
	}

	if strings.HasPrefix(input, "/") {
		if !r.handleCommand(ctx, input) {
			r.exiting = true
			return false
		}
		return true
	}

	r.send(ctx, input)
	return true
}

// send relays the mentor's reply to input
func (r *REPL) send(ctx context.Context, input string) {
	c := r.current
	fmt.Fprintf(r.out, "\n%s%s: %s", colorBlue, r.mentorName(c), colorReset)
	err := c.Send(ctx, input, r.streamOutput)
	r.reportStreamErr(err)
}

// start opens a conversation with mentorID on the current date
func (r *REPL) start(ctx context.Context, mentorID, reason string) error {
	def, err := r.svc.Catalog().Get(mentorID)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "\n%s%s %s: %s", colorBlue, def.Icon, def.Name, colorReset)
	err = r.current.Start(ctx, mentorID, reason, r.streamOutput)
	r.reportStreamErr(err)
	return nil
}

func (r *REPL) reportStreamErr(err error) {
	switch {
	case err == nil:
		fmt.Fprint(r.out, "\n\n")
	case errors.Is(err, live.ErrBusy):
		fmt.Fprintf(r.out, "\n%s⏳ Still answering, please wait%s\n", colorYellow, colorReset)
	case errors.Is(err, live.ErrInvalidTransition):
		fmt.Fprintf(r.out, "\n%s❓ %v. Use /talk <mentor> to start a conversation%s\n", colorYellow, err, colorReset)
	default:
		fmt.Fprintf(r.out, "\n%s❌ Error: %v%s\n\n", colorRed, err, colorReset)
	}
}

// streamOutput prints each chunk as it arrives
func (r *REPL) streamOutput(u live.Update) {
	fmt.Fprint(r.out, u.Chunk)
}

func (r *REPL) mentorName(c *live.Controller) string {
	last, ok := c.Snapshot().LastAgentChat()
	if !ok {
		return "Mentor"
	}
	def, err := r.svc.Catalog().Get(last.AgentID)
	if err != nil {
		return last.AgentID
	}
	return def.Icon + " " + def.Name
}

func (r *REPL) printTranscript(c *live.Controller) {
	for _, ac := range c.Snapshot().AgentChats {
		name := ac.AgentID
		if def, err := r.svc.Catalog().Get(ac.AgentID); err == nil {
			name = def.Name
		}
		fmt.Fprintf(r.out, "\n%s── %s%s", colorCyan, name, colorReset)
		if ac.Concluded {
			fmt.Fprintf(r.out, " %s(concluded)%s", colorGray, colorReset)
		}
		fmt.Fprintln(r.out)
		for _, m := range ac.Messages {
			if m.Role == chat.RoleUser {
				fmt.Fprintf(r.out, "%sYou:%s %s\n", colorGreen, colorReset, m.Content)
			} else {
				fmt.Fprintf(r.out, "%s%s:%s %s\n", colorBlue, name, colorReset, m.Content)
			}
		}
	}
	fmt.Fprintln(r.out)
}

// printWelcome prints welcome message
func (r *REPL) printWelcome() {
	fmt.Fprintf(r.out, "\n%s📓 mentorjournal v%s%s - Your daily mentors\n", colorCyan, Version, colorReset)
	fmt.Fprintf(r.out, "%sType /help for help, /exit to quit%s\n", colorGray, colorReset)
}

// Complete suggests slash commands and mentor ids
func (r *REPL) Complete(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	if !strings.HasPrefix(text, "/") {
		return nil
	}

	fields := strings.Fields(text)
	word := d.GetWordBeforeCursor()
	if len(fields) <= 1 && !strings.HasSuffix(text, " ") {
		var s []prompt.Suggest
		for _, c := range GetCommandSuggestions() {
			s = append(s, prompt.Suggest{Text: c.Text, Description: c.Description})
		}
		return prompt.FilterHasPrefix(s, word, true)
	}

	switch fields[0] {
	case "/talk", "/history":
		var s []prompt.Suggest
		for _, def := range r.svc.Catalog().All() {
			s = append(s, prompt.Suggest{Text: def.ID, Description: def.Name})
		}
		return prompt.FilterHasPrefix(s, word, true)
	}
	return nil
}

// PromptAPIKey asks for the model API key and saves it to the config file
func PromptAPIKey(cfg *config.Config) error {
	fmt.Printf("%s⚠️  API Key not configured for provider %s%s\n\n", colorYellow, cfg.Model.Provider, colorReset)

	apiKey := strings.TrimSpace(prompt.Input("Please enter your API Key: ", func(prompt.Document) []prompt.Suggest { return nil }))
	if apiKey == "" {
		return fmt.Errorf("API Key cannot be empty")
	}

	cfg.Model.APIKey = apiKey
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("\n%s✅ API Key saved%s\n\n", colorGreen, colorReset)
	return nil
}
