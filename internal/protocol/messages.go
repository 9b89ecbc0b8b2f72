package protocol

import "time"

// Turn is one role-tagged entry in a conversation. Histories are ordered and
// append-only; the in-flight user message is never part of the history it is
// sent with.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// VoiceSettings controls whether and how a response is spoken.
type VoiceSettings struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Type    string `json:"type,omitempty"`
}

// SpeechEnabled reports the effective toggle: synthesis defaults to on when
// the client sent no settings at all.
func (v *VoiceSettings) SpeechEnabled() bool {
	if v == nil || v.Enabled == nil {
		return true
	}
	return *v.Enabled
}

// VoiceType returns the requested voice identifier, empty when unset.
func (v *VoiceSettings) VoiceType() string {
	if v == nil {
		return ""
	}
	return v.Type
}

// ClientMessage is the payload a session client sends for one user turn.
type ClientMessage struct {
	Message       string         `json:"message"`
	History       []Turn         `json:"history"`
	APIKey        string         `json:"apiKey,omitempty"`
	Model         string         `json:"model,omitempty"`
	VoiceSettings *VoiceSettings `json:"voiceSettings,omitempty"`
}

// ServerResponse is the single success outcome for a turn. Audio is a
// relative URL to a time-limited artifact, or null when synthesis was
// disabled or failed.
type ServerResponse struct {
	Text  string  `json:"text"`
	Audio *string `json:"audio"`
}

// ServerError is emitted only for unrecoverable response-generation failures.
type ServerError struct {
	Message string `json:"message"`
}

// GenerateRequest asks the LLM service for a completion.
type GenerateRequest struct {
	Message string `json:"message"`
	History []Turn `json:"history"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// GenerateReply carries the completion or the failure.
type GenerateReply struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// SynthesizeRequest asks the TTS service to produce an audio artifact.
type SynthesizeRequest struct {
	Text    string `json:"text"`
	Voice   string `json:"voice,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// SynthesizeReply names the produced artifact file.
type SynthesizeReply struct {
	File  string `json:"file,omitempty"`
	Error string `json:"error,omitempty"`
}

// RecognizeRequest asks the STT service to transcribe a recorded clip.
// Audio is a complete WAV container.
type RecognizeRequest struct {
	Audio   []byte `json:"audio"`
	TraceID string `json:"trace_id,omitempty"`
}

// RecognizeReply carries the best transcript.
type RecognizeReply struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// TurnRecord is published after a turn completes and consumed by the
// event recorder.
type TurnRecord struct {
	SessionID string    `json:"session_id"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Model     string    `json:"model,omitempty"`
	Voiced    bool      `json:"voiced"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectGenerate      = "llm.generate"
	SubjectSynthesize    = "tts.synthesize"
	SubjectRecognize     = "stt.recognize"
	SubjectTurnCompleted = "turn.completed"
)
