package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Model tiers a call purpose can be routed to
const (
	TierSmart     = "smart"
	TierFast      = "fast"
	TierReasoning = "reasoning"
)

// PromptConfig coaching instructions appended to mentor personas, and the
// model tier each kind of call uses
type PromptConfig struct {
	// MentoringPreamble describes the shared coaching stance of every mentor
	MentoringPreamble string `yaml:"mentoring_preamble"`
	// ReplyRule closes the system prompt of every assistant reply
	ReplyRule string `yaml:"reply_rule"`
	// CheckInRule opens a conversation with a mentor the user already knows
	CheckInRule string `yaml:"check_in_rule"`
	// SummaryRule asks for a summary; %d is replaced by the sentence target
	SummaryRule string `yaml:"summary_rule"`
	// RelevanceRule asks which mentors fit today's journal entry
	RelevanceRule string `yaml:"relevance_rule"`

	Tiers PurposeTiers `yaml:"tiers"`
}

// PurposeTiers maps each call purpose to a model tier
type PurposeTiers struct {
	Welcome   string `yaml:"welcome"`
	Reply     string `yaml:"reply"`
	Summary   string `yaml:"summary"`
	Relevance string `yaml:"relevance"`
}

// DefaultPromptConfig returns default prompt configuration
func DefaultPromptConfig() *PromptConfig {
	return &PromptConfig{
		MentoringPreamble: "You ask questions to understand the user's perspective, uncover patterns, and challenge limiting beliefs. " +
			"Your goal is to guide self-reflection, facilitate emotional processing, and support growth by helping them set goals and take action. " +
			"Rather than giving direct advice, encourage insight and personal responsibility for change.",
		ReplyRule: "Briefly give your thoughts on the last message. " +
			"Then ask 3 short numbered questions in your response, use a numbered list.",
		CheckInRule: "Based on the last conversation you two had, start the conversation by recalling the last topic in one sentence and why it's important, " +
			"then ask them what they would like to talk about today.",
		SummaryRule: "Summarize all the information the user said in the provided dialog below in roughly %d sentences. " +
			"Use the previous notes for a better understanding of the conversation and connect to them. Answer with only the summary.",
		RelevanceRule: "Below is a summary of the user's journal entry for today, followed by a list of mentors with their missions. " +
			"Pick up to 3 mentors whose mission is most relevant to what the user wrote today. " +
			"Answer with a bullet list of mentor ids only.",
		Tiers: PurposeTiers{
			Welcome:   TierSmart,
			Reply:     TierSmart,
			Summary:   TierFast,
			Relevance: TierFast,
		},
	}
}

// PromptConfigPath returns the prompt config file path
func PromptConfigPath() (string, error) {
	// First check if there's a config/prompt.yaml in current working directory
	cwd, err := os.Getwd()
	if err == nil {
		localPath := filepath.Join(cwd, "config", "prompt.yaml")
		if _, err := os.Stat(localPath); err == nil {
			return localPath, nil
		}
	}

	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "prompt.yaml"), nil
}

// LoadPromptConfig loads prompt configuration from file
func LoadPromptConfig() (*PromptConfig, error) {
	configPath, err := PromptConfigPath()
	if err != nil {
		return DefaultPromptConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultPromptConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt config: %w", err)
	}

	cfg := DefaultPromptConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse prompt config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the prompt configuration
func (p *PromptConfig) Validate() error {
	if !strings.Contains(p.SummaryRule, "%d") {
		return fmt.Errorf("prompt config error: summary_rule must contain %%d for the sentence count")
	}
	for purpose, tier := range map[string]string{
		"welcome":   p.Tiers.Welcome,
		"reply":     p.Tiers.Reply,
		"summary":   p.Tiers.Summary,
		"relevance": p.Tiers.Relevance,
	} {
		switch tier {
		case TierSmart, TierFast, TierReasoning:
		default:
			return fmt.Errorf("prompt config error: tiers.%s %q is not one of smart, fast, reasoning", purpose, tier)
		}
	}
	return nil
}

// SummaryPrompt renders the summary rule for a sentence target
func (p *PromptConfig) SummaryPrompt(sentences int) string {
	return fmt.Sprintf(p.SummaryRule, sentences)
}
