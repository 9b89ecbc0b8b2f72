// Package orchestrator turns one user utterance into a coordinated sequence
// of {optional transcription, completion, optional synthesis} and produces
// exactly one outcome per turn.
package orchestrator

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxchat-labs/vox-core/internal/artifact"
	"github.com/voxchat-labs/vox-core/internal/protocol"
)

// Responder produces a text completion for a prompt plus history.
type Responder interface {
	Generate(ctx context.Context, message string, history []protocol.Turn, apiKey, model string) (string, error)
}

// Synthesizer renders response text into an audio artifact and returns its
// file path.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (string, error)
}

// Transcriber converts a recorded WAV clip into text.
type Transcriber interface {
	Recognize(ctx context.Context, audio []byte) (string, error)
}

// Outcome is the single result of a turn: the response text and, when
// synthesis ran and succeeded, a relative URL to the audio artifact.
type Outcome struct {
	Text     string
	AudioURL *string
}

// Timeouts bound each pipeline step. A slow provider or synthesis process is
// cancelled and surfaces as the turn's error.
type Timeouts struct {
	Respond    time.Duration
	Synthesize time.Duration
	Transcribe time.Duration
}

// Orchestrator holds no cross-turn state; concurrent turns never contend.
type Orchestrator struct {
	responder   Responder
	synthesizer Synthesizer
	transcriber Transcriber
	janitor     *artifact.Janitor
	retention   time.Duration
	timeouts    Timeouts
	record      func(protocol.TurnRecord)
	tracer      trace.Tracer
	turnLatency metric.Float64Histogram
	logger      *slog.Logger
}

func New(responder Responder, synthesizer Synthesizer, transcriber Transcriber,
	janitor *artifact.Janitor, retention time.Duration, timeouts Timeouts, logger *slog.Logger) *Orchestrator {
	turnLatency, err := otel.Meter("vox-core/orchestrator").Float64Histogram(
		"vox.turn.duration",
		metric.WithUnit("s"),
		metric.WithDescription("End-to-end latency of one conversation turn"),
	)
	if err != nil {
		logger.Warn("failed to create turn latency instrument", slog.String("error", err.Error()))
	}
	return &Orchestrator{
		responder:   responder,
		synthesizer: synthesizer,
		transcriber: transcriber,
		janitor:     janitor,
		retention:   retention,
		timeouts:    timeouts,
		tracer:      otel.Tracer("vox-core/orchestrator"),
		turnLatency: turnLatency,
		logger:      logger.With(slog.String("component", "orchestrator")),
	}
}

// OnTurnCompleted registers a hook invoked after every successful turn.
func (o *Orchestrator) OnTurnCompleted(record func(protocol.TurnRecord)) {
	o.record = record
}

// HandleTurn runs the text-origin pipeline. A response failure is terminal;
// a synthesis failure degrades to a text-only outcome.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID string, msg protocol.ClientMessage) (Outcome, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "turn",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("llm.model", msg.Model),
		))
	defer span.End()
	defer func() {
		if o.turnLatency != nil {
			o.turnLatency.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(attribute.String("llm.model", msg.Model)))
		}
	}()

	respondCtx, cancel := context.WithTimeout(ctx, o.timeouts.Respond)
	text, err := o.responder.Generate(respondCtx, msg.Message, msg.History, msg.APIKey, msg.Model)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "response generation failed")
		return Outcome{}, err
	}

	outcome := Outcome{Text: text}
	voiced := false
	if msg.VoiceSettings.SpeechEnabled() {
		synthCtx, cancel := context.WithTimeout(ctx, o.timeouts.Synthesize)
		file, synthErr := o.synthesizer.Synthesize(synthCtx, text, msg.VoiceSettings.VoiceType())
		cancel()
		if synthErr != nil {
			span.RecordError(synthErr)
			o.logger.Warn("voice synthesis failed, returning text only",
				slog.String("error", synthErr.Error()))
		} else {
			// Turn artifacts live on the short window regardless of the
			// adapter's own retention.
			o.janitor.Schedule(file, o.retention)
			url := "/audio/" + filepath.Base(file)
			outcome.AudioURL = &url
			voiced = true
		}
	}

	span.SetAttributes(attribute.Bool("turn.voiced", voiced))

	if o.record != nil {
		o.record(protocol.TurnRecord{
			SessionID: sessionID,
			Prompt:    msg.Message,
			Response:  text,
			Model:     msg.Model,
			Voiced:    voiced,
			Timestamp: time.Now().UTC(),
		})
	}
	return outcome, nil
}

// HandleVoiceTurn transcribes a recorded clip and runs the text pipeline on
// the result. A transcription failure is terminal for the turn.
func (o *Orchestrator) HandleVoiceTurn(ctx context.Context, sessionID string, audio []byte, msg protocol.ClientMessage) (Outcome, error) {
	text, err := o.Transcribe(ctx, audio)
	if err != nil {
		return Outcome{}, err
	}
	msg.Message = text
	return o.HandleTurn(ctx, sessionID, msg)
}

// Transcribe exposes the transcription step for the upload endpoint.
func (o *Orchestrator) Transcribe(ctx context.Context, audio []byte) (string, error) {
	transcribeCtx, cancel := context.WithTimeout(ctx, o.timeouts.Transcribe)
	defer cancel()
	return o.transcriber.Recognize(transcribeCtx, audio)
}
