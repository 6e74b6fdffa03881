package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hession/mentorjournal/internal/config"
)

// Client streams completions from an OpenAI-compatible
// /v1/chat/completions endpoint (OpenAI, ollama, llama.cpp server, ...)
type Client struct {
	apiKey      string
	baseURL     string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// chatRequest chat request
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

// chatChunk one streamed API response
type chatChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Delta        Message `json:"delta"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewClient creates a new HTTP client. timeout <= 0 means no client-side
// timeout.
func NewClient(apiKey, baseURL string, temperature float64, maxTokens int, timeout time.Duration) *Client {
	return &Client{
		apiKey:      apiKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Stream sends a streaming chat request and calls onChunk for every
// content delta. It returns the accumulated text.
func (c *Client) Stream(ctx context.Context, model string, messages []Message, onChunk func(string) error) (string, error) {
	reqBody := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      true,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to serialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API returned error (status %d): %s", resp.StatusCode, string(body))
	}

	return c.handleStreamResponse(resp.Body, onChunk)
}

// handleStreamResponse reads server-sent events until [DONE] or EOF
func (c *Client) handleStreamResponse(body io.Reader, onChunk func(string) error) (string, error) {
	reader := bufio.NewReader(body)
	var fullContent strings.Builder

	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read streaming response: %w", err)
		}
		eof := err == io.EOF

		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}

			var chunk chatChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue // Ignore parse errors
			}
			if chunk.Error != nil {
				return "", fmt.Errorf("API error: %s", chunk.Error.Message)
			}

			if len(chunk.Choices) > 0 {
				if delta := chunk.Choices[0].Delta.Content; delta != "" {
					fullContent.WriteString(delta)
					if onChunk != nil {
						if err := onChunk(delta); err != nil {
							return "", err
						}
					}
				}
			}
		}

		if eof {
			break
		}
	}

	return fullContent.String(), nil
}

func timeoutFor(cfg config.ModelConfig) time.Duration {
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}
