// Package llm is the model collaborator: it routes each call purpose to a
// model tier and streams the response through a Provider.
package llm

import (
	"context"
	"regexp"
	"strings"

	"github.com/hession/mentorjournal/internal/config"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message chat message sent to a provider
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

// Tier selects a class of model
type Tier string

const (
	TierSmart     Tier = config.TierSmart
	TierFast      Tier = config.TierFast
	TierReasoning Tier = config.TierReasoning
)

// Provider performs one streaming completion against a named model.
// onChunk is called for every text delta; the full text is returned.
type Provider interface {
	Stream(ctx context.Context, model string, messages []Message, onChunk func(string) error) (string, error)
}

var thinkBlock = regexp.MustCompile(`(?s)^.*</think>`)

// StripThink removes a reasoning model's <think>...</think> preamble
func StripThink(text string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(text, ""))
}
