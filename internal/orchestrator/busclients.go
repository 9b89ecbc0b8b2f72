package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxchat-labs/vox-core/internal/bus"
	"github.com/voxchat-labs/vox-core/internal/protocol"
)

// Bus-backed adapter clients. Each wraps one request/reply subject so the
// pipeline stays unaware of transport details. Every round trip gets its own
// span under the turn span.

var busTracer = otel.Tracer("vox-core/orchestrator/bus")

func startAdapterSpan(ctx context.Context, name, subject string) (context.Context, trace.Span) {
	return busTracer.Start(ctx, name,
		trace.WithAttributes(attribute.String("bus.subject", subject)))
}

func endAdapterSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "adapter request failed")
	}
	span.End()
}

type busResponder struct {
	bus *bus.Client
}

func NewBusResponder(busClient *bus.Client) Responder {
	return &busResponder{bus: busClient}
}

func (r *busResponder) Generate(ctx context.Context, message string, history []protocol.Turn, apiKey, model string) (text string, err error) {
	ctx, span := startAdapterSpan(ctx, "respond", protocol.SubjectGenerate)
	defer func() { endAdapterSpan(span, err) }()

	payload, err := json.Marshal(protocol.GenerateRequest{
		Message: message,
		History: history,
		APIKey:  apiKey,
		Model:   model,
	})
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}
	data, err := r.bus.Request(ctx, protocol.SubjectGenerate, payload)
	if err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}
	var reply protocol.GenerateReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return "", fmt.Errorf("decode generate reply: %w", err)
	}
	if reply.Error != "" {
		return "", errors.New(reply.Error)
	}
	return reply.Text, nil
}

type busSynthesizer struct {
	bus *bus.Client
}

func NewBusSynthesizer(busClient *bus.Client) Synthesizer {
	return &busSynthesizer{bus: busClient}
}

func (s *busSynthesizer) Synthesize(ctx context.Context, text, voice string) (file string, err error) {
	ctx, span := startAdapterSpan(ctx, "synthesize", protocol.SubjectSynthesize)
	defer func() { endAdapterSpan(span, err) }()

	payload, err := json.Marshal(protocol.SynthesizeRequest{Text: text, Voice: voice})
	if err != nil {
		return "", fmt.Errorf("encode synthesize request: %w", err)
	}
	data, err := s.bus.Request(ctx, protocol.SubjectSynthesize, payload)
	if err != nil {
		return "", fmt.Errorf("synthesize request: %w", err)
	}
	var reply protocol.SynthesizeReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return "", fmt.Errorf("decode synthesize reply: %w", err)
	}
	if reply.Error != "" {
		return "", errors.New(reply.Error)
	}
	return reply.File, nil
}

type busTranscriber struct {
	bus *bus.Client
}

func NewBusTranscriber(busClient *bus.Client) Transcriber {
	return &busTranscriber{bus: busClient}
}

func (t *busTranscriber) Recognize(ctx context.Context, audio []byte) (text string, err error) {
	ctx, span := startAdapterSpan(ctx, "transcribe", protocol.SubjectRecognize)
	defer func() { endAdapterSpan(span, err) }()

	payload, err := json.Marshal(protocol.RecognizeRequest{Audio: audio})
	if err != nil {
		return "", fmt.Errorf("encode recognize request: %w", err)
	}
	data, err := t.bus.Request(ctx, protocol.SubjectRecognize, payload)
	if err != nil {
		return "", fmt.Errorf("recognize request: %w", err)
	}
	var reply protocol.RecognizeReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return "", fmt.Errorf("decode recognize reply: %w", err)
	}
	if reply.Error != "" {
		return "", errors.New(reply.Error)
	}
	return reply.Text, nil
}
