package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxchat-labs/vox-core/internal/protocol"
)

func TestParseProvider(t *testing.T) {
	cases := []struct {
		model string
		want  Provider
		ok    bool
	}{
		{"gpt-4o", ProviderOpenAI, true},
		{"GPT-3.5-turbo", ProviderOpenAI, true},
		{"claude-3-opus", ProviderAnthropic, true},
		{"Claude-3-Haiku", ProviderAnthropic, true},
		{"llama3", ProviderUnknown, false},
		{"", ProviderUnknown, false},
	}
	for _, tc := range cases {
		got, err := ParseProvider(tc.model)
		if tc.ok && err != nil {
			t.Fatalf("ParseProvider(%q): unexpected error %v", tc.model, err)
		}
		if !tc.ok {
			if !errors.Is(err, ErrUnsupportedModel) {
				t.Fatalf("ParseProvider(%q): expected ErrUnsupportedModel, got %v", tc.model, err)
			}
			continue
		}
		if got != tc.want {
			t.Fatalf("ParseProvider(%q) = %v, want %v", tc.model, got, tc.want)
		}
	}
}

func TestBuildOpenAIMessagesPrependsOneSystem(t *testing.T) {
	messages := buildOpenAIMessages(nil, "hi")
	if len(messages) != 2 {
		t.Fatalf("expected system + user, got %d messages", len(messages))
	}
	if messages[0].Role != "system" || messages[0].Content != SystemInstruction {
		t.Fatalf("expected system instruction first, got %+v", messages[0])
	}
	if messages[1].Role != protocol.RoleUser || messages[1].Content != "hi" {
		t.Fatalf("expected trailing user turn, got %+v", messages[1])
	}

	history := []protocol.Turn{
		{Role: protocol.RoleUser, Content: "first"},
		{Role: protocol.RoleAssistant, Content: "second"},
	}
	messages = buildOpenAIMessages(history, "third")
	systems := 0
	for _, m := range messages {
		if m.Role == "system" {
			systems++
		}
	}
	if systems != 1 {
		t.Fatalf("expected exactly one system entry, got %d", systems)
	}
	if messages[len(messages)-1].Content != "third" {
		t.Fatal("expected current message appended last")
	}
}

func TestBuildAnthropicMessagesExcludesSystemRole(t *testing.T) {
	history := []protocol.Turn{
		{Role: "system", Content: "sneaky instruction"},
		{Role: protocol.RoleUser, Content: "question"},
		{Role: protocol.RoleAssistant, Content: "answer"},
	}
	messages := buildAnthropicMessages(history, "follow-up")
	for _, m := range messages {
		if m.Role == "system" {
			t.Fatalf("system role leaked into anthropic history: %+v", m)
		}
	}
	// Unrecognized roles collapse to user, so the system-tagged entry
	// survives as a user turn rather than being silently privileged.
	if messages[0].Role != protocol.RoleUser {
		t.Fatalf("expected leading user turn, got %+v", messages[0])
	}
	if messages[len(messages)-1].Content != "follow-up" {
		t.Fatal("expected current message appended last")
	}
}

func TestFilterHistoryDropsInvalidEntries(t *testing.T) {
	history := []protocol.Turn{
		{Role: protocol.RoleUser, Content: "keep"},
		{Role: "", Content: "no role"},
		{Role: protocol.RoleAssistant, Content: ""},
		{Role: protocol.RoleAssistant, Content: "also keep"},
	}
	filtered := filterHistory(history)
	if len(filtered) != 2 {
		t.Fatalf("expected 2 surviving entries, got %d", len(filtered))
	}
	if filtered[0].Content != "keep" || filtered[1].Content != "also keep" {
		t.Fatalf("unexpected filtered history: %+v", filtered)
	}
}

type recordingGenerator struct {
	calls int
	text  string
	err   error
}

func (r *recordingGenerator) Generate(_ context.Context, _ Request) (string, error) {
	r.calls++
	return r.text, r.err
}

func TestDispatcherRejectsUnknownModelBeforeGenerating(t *testing.T) {
	openai := &recordingGenerator{text: "a"}
	anthropic := &recordingGenerator{text: "b"}
	d := NewDispatcher(openai, anthropic, "gpt-4o")

	_, err := d.Generate(context.Background(), Request{Message: "hi", Model: "mistral-7b"})
	if !errors.Is(err, ErrUnsupportedModel) {
		t.Fatalf("expected ErrUnsupportedModel, got %v", err)
	}
	if openai.calls != 0 || anthropic.calls != 0 {
		t.Fatal("no generator may be invoked for an unsupported model")
	}
}

func TestDispatcherSelectsProviderAndWrapsFailure(t *testing.T) {
	openai := &recordingGenerator{text: "from openai"}
	anthropic := &recordingGenerator{err: errors.New("boom")}
	d := NewDispatcher(openai, anthropic, "gpt-4o")

	text, err := d.Generate(context.Background(), Request{Message: "hi", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "from openai" || openai.calls != 1 {
		t.Fatal("expected openai generator selected for gpt model")
	}

	_, err = d.Generate(context.Background(), Request{Message: "hi", Model: "claude-3-opus"})
	if err == nil || anthropic.calls != 1 {
		t.Fatal("expected anthropic generator selected and its failure surfaced")
	}
	if got := err.Error(); got != "provider error: boom" {
		t.Fatalf("expected uniform provider error, got %q", got)
	}
}

func TestDispatcherFallsBackToDefaultModel(t *testing.T) {
	anthropic := &recordingGenerator{text: "ok"}
	d := NewDispatcher(&recordingGenerator{}, anthropic, "claude-3-haiku")

	if _, err := d.Generate(context.Background(), Request{Message: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if anthropic.calls != 1 {
		t.Fatal("expected default model to route to anthropic")
	}
}

func TestOpenAIGeneratorRequestShape(t *testing.T) {
	var captured openAIRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "hello"}}},
		})
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator(srv.URL, "env-key", 2000, 0.7)
	text, err := gen.Generate(context.Background(), Request{Message: "hi", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello" {
		t.Fatalf("unexpected completion %q", text)
	}
	if auth != "Bearer env-key" {
		t.Fatalf("expected env key fallback, got %q", auth)
	}
	if captured.Model != "gpt-4o" || captured.MaxTokens != 2000 {
		t.Fatalf("unexpected request payload: %+v", captured)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("expected system + user messages, got %+v", captured.Messages)
	}
}

func TestAnthropicGeneratorUsesSystemField(t *testing.T) {
	var captured anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "per-request" {
			t.Errorf("expected per-request key, got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "hi there"}},
		})
	}))
	defer srv.Close()

	gen := NewAnthropicGenerator(srv.URL, "env-key", 2000, 0.7)
	text, err := gen.Generate(context.Background(), Request{
		Message: "hi",
		Model:   "claude-3-opus",
		APIKey:  "per-request",
		History: []protocol.Turn{{Role: protocol.RoleUser, Content: "earlier"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hi there" {
		t.Fatalf("unexpected completion %q", text)
	}
	if captured.System != SystemInstruction {
		t.Fatal("expected system instruction in the dedicated field")
	}
	for _, m := range captured.Messages {
		if m.Role == "system" {
			t.Fatalf("system role must not appear in messages: %+v", captured.Messages)
		}
	}
}
