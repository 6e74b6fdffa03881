// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/hession/mentorjournal/internal/llm"
)

// Call records one Stream invocation
type Call struct {
	Model    string
	Messages []llm.Message
}

// System returns the system prompt of the call, if any
func (c Call) System() string {
	if len(c.Messages) > 0 && c.Messages[0].Role == llm.RoleSystem {
		return c.Messages[0].Content
	}
	return ""
}

// Last returns the content of the last message
func (c Call) Last() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1].Content
}

// Provider answers every call with Respond, emitting the answer word by
// word. A nil Respond echoes "reply from <model>".
type Provider struct {
	Respond func(call Call) (string, error)
	// Gate, when set, is received from before the response is emitted
	Gate chan struct{}

	mu    sync.Mutex
	calls []Call
}

// Stream implements llm.Provider
func (p *Provider) Stream(ctx context.Context, model string, messages []llm.Message, onChunk func(string) error) (string, error) {
	call := Call{Model: model, Messages: append([]llm.Message(nil), messages...)}
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()

	if p.Gate != nil {
		select {
		case <-p.Gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	text := "reply from " + model
	if p.Respond != nil {
		var err error
		if text, err = p.Respond(call); err != nil {
			return "", err
		}
	}
	for _, chunk := range Split(text) {
		if onChunk != nil {
			if err := onChunk(chunk); err != nil {
				return "", err
			}
		}
	}
	return text, nil
}

// Calls returns a copy of the recorded calls
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallsTo returns the recorded calls to model
func (p *Provider) CallsTo(model string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.Model == model {
			out = append(out, c)
		}
	}
	return out
}

// Split breaks text into word chunks that concatenate back to text
func Split(text string) []string {
	var chunks []string
	for len(text) > 0 {
		i := strings.IndexByte(text[1:], ' ')
		if i == -1 {
			chunks = append(chunks, text)
			break
		}
		chunks = append(chunks, text[:i+1])
		text = text[i+1:]
	}
	return chunks
}
