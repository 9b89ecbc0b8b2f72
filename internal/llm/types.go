package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/voxchat-labs/vox-core/internal/protocol"
)

// SystemInstruction is prepended (OpenAI) or side-channeled (Anthropic) on
// every completion request.
const SystemInstruction = "You are a helpful, precise, and accurate AI assistant that specializes in " +
	"providing programming help and explanations. When sharing code, ensure it's " +
	"well-commented and follows best practices."

// ErrUnsupportedModel is returned when the model selector matches no known
// provider. It is raised before any network call.
var ErrUnsupportedModel = errors.New("unsupported model")

// Provider identifies a completion backend. The free-text model selector is
// resolved to a Provider exactly once, at the boundary.
type Provider int

const (
	ProviderUnknown Provider = iota
	ProviderOpenAI
	ProviderAnthropic
)

func (p Provider) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	default:
		return "unknown"
	}
}

// ParseProvider resolves a model selector via case-insensitive substring
// match: a GPT-family marker selects OpenAI, a Claude-family marker selects
// Anthropic. Anything else fails.
func ParseProvider(model string) (Provider, error) {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "gpt"):
		return ProviderOpenAI, nil
	case strings.Contains(lower, "claude"):
		return ProviderAnthropic, nil
	default:
		return ProviderUnknown, fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
	}
}

// Request describes one completion call. History is the neutral
// representation; each generator serializes it to its provider's wire format.
type Request struct {
	Message string
	History []protocol.Turn
	APIKey  string
	Model   string
}

// Generator is a pluggable completion backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// filterHistory drops entries missing a role or content rather than failing
// the whole request.
func filterHistory(history []protocol.Turn) []protocol.Turn {
	out := make([]protocol.Turn, 0, len(history))
	for _, turn := range history {
		if turn.Role == "" || turn.Content == "" {
			continue
		}
		out = append(out, turn)
	}
	return out
}

// Dispatcher resolves the provider for each request and delegates to the
// matching generator. Transport and provider failures are normalized to a
// uniform "provider error"; the unsupported-model failure is surfaced as-is.
type Dispatcher struct {
	openai       Generator
	anthropic    Generator
	defaultModel string
}

func NewDispatcher(openai, anthropic Generator, defaultModel string) *Dispatcher {
	return &Dispatcher{openai: openai, anthropic: anthropic, defaultModel: defaultModel}
}

func (d *Dispatcher) Generate(ctx context.Context, req Request) (string, error) {
	if req.Model == "" {
		req.Model = d.defaultModel
	}
	provider, err := ParseProvider(req.Model)
	if err != nil {
		return "", err
	}

	var gen Generator
	switch provider {
	case ProviderOpenAI:
		gen = d.openai
	case ProviderAnthropic:
		gen = d.anthropic
	}

	text, err := gen.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("provider error: %w", err)
	}
	return text, nil
}
