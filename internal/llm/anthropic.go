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

const anthropicAPIVersion = "2023-06-01"

type anthropicGenerator struct {
	endpoint    string
	defaultKey  string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewAnthropicGenerator builds a messages-API backend.
func NewAnthropicGenerator(endpoint, key string, maxTokens int, temperature float64) Generator {
	return &anthropicGenerator{
		endpoint:    endpoint,
		defaultKey:  key,
		maxTokens:   maxTokens,
		temperature: temperature,
		httpClient:  &http.Client{},
	}
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// buildAnthropicMessages produces the role-tagged list for the messages API.
// The system instruction travels in the separate system field, so system
// entries never appear here; any role other than assistant collapses to user.
func buildAnthropicMessages(history []protocol.Turn, message string) []chatMessage {
	messages := make([]chatMessage, 0, len(history)+1)
	for _, turn := range filterHistory(history) {
		role := protocol.RoleUser
		if turn.Role == protocol.RoleAssistant {
			role = protocol.RoleAssistant
		}
		messages = append(messages, chatMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: protocol.RoleUser, Content: message})
	return messages
}

func (g *anthropicGenerator) Generate(ctx context.Context, req Request) (string, error) {
	key := req.APIKey
	if key == "" {
		key = g.defaultKey
	}
	if key == "" {
		return "", errors.New("no Anthropic API key configured")
	}

	payload := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   g.maxTokens,
		System:      SystemInstruction,
		Messages:    buildAnthropicMessages(req.History, req.Message),
		Temperature: g.temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", key)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

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
		var apiErr anthropicErrorBody
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("anthropic returned %s: %s", resp.Status, apiErr.Error.Message)
		}
		return "", fmt.Errorf("anthropic returned %s", resp.Status)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("anthropic returned no text content")
}
