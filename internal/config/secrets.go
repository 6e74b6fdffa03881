package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Secrets sensitive configuration loaded from the .secrets file
// (dotenv format: KEY=value, # comments, optional quotes)
type Secrets struct {
	values map[string]string
}

// NewSecrets creates a new Secrets instance
func NewSecrets() *Secrets {
	return &Secrets{
		values: make(map[string]string),
	}
}

// SecretsPath returns the secrets file path
func SecretsPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".secrets"), nil
}

// LoadSecrets loads secrets from the .secrets file. A missing file yields
// empty secrets.
func LoadSecrets() (*Secrets, error) {
	secretsPath, err := SecretsPath()
	if err != nil {
		return NewSecrets(), nil
	}

	if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
		return NewSecrets(), nil
	}

	values, err := godotenv.Read(secretsPath)
	if err != nil {
		return NewSecrets(), err
	}
	return &Secrets{values: values}, nil
}

// Get returns the value for a key
func (s *Secrets) Get(key string) string {
	if s == nil || s.values == nil {
		return ""
	}
	return s.values[key]
}

// GetLLMAPIKey returns the API key for OpenAI-compatible providers
func (s *Secrets) GetLLMAPIKey() string {
	return s.Get("LLM_API_KEY")
}

// GetAnthropicAPIKey returns the Anthropic API key
func (s *Secrets) GetAnthropicAPIKey() string {
	return s.Get("ANTHROPIC_API_KEY")
}

// GetRedisURL returns the redis connection URL
func (s *Secrets) GetRedisURL() string {
	return s.Get("REDIS_URL")
}
