package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/voxchat-labs/vox-core/internal/protocol"
)

type openAIGenerator struct {
	endpoint    string
	defaultKey  string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewOpenAIGenerator builds a chat-completions backend. The key is the
// environment fallback used when a request carries none.
func NewOpenAIGenerator(endpoint, key string, maxTokens int, temperature float64) Generator {
	return &openAIGenerator{
		endpoint:    endpoint,
		defaultKey:  key,
		maxTokens:   maxTokens,
		temperature: temperature,
		httpClient:  &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type openAIResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type openAIErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// buildOpenAIMessages produces the flat role-tagged list OpenAI expects: the
// system instruction first, then the filtered history, then the current user
// message.
func buildOpenAIMessages(history []protocol.Turn, message string) []chatMessage {
	messages := []chatMessage{{Role: "system", Content: SystemInstruction}}
	for _, turn := range filterHistory(history) {
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: protocol.RoleUser, Content: message})
	return messages
}

func (g *openAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	key := req.APIKey
	if key == "" {
		key = g.defaultKey
	}
	if key == "" {
		return "", errors.New("no OpenAI API key configured")
	}

	payload := openAIRequest{
		Model:       req.Model,
		Messages:    buildOpenAIMessages(req.History, req.Message),
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr openAIErrorBody
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("openai returned %s: %s", resp.Status, apiErr.Error.Message)
		}
		return "", fmt.Errorf("openai returned %s", resp.Status)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
