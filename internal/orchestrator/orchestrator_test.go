package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/voxchat-labs/vox-core/internal/artifact"
	"github.com/voxchat-labs/vox-core/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubResponder struct {
	text  string
	err   error
	calls int
}

func (s *stubResponder) Generate(_ context.Context, _ string, _ []protocol.Turn, _, _ string) (string, error) {
	s.calls++
	return s.text, s.err
}

type stubSynthesizer struct {
	file  string
	err   error
	calls int
}

func (s *stubSynthesizer) Synthesize(_ context.Context, _, _ string) (string, error) {
	s.calls++
	return s.file, s.err
}

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Recognize(_ context.Context, _ []byte) (string, error) {
	return s.text, s.err
}

func newTestOrchestrator(r Responder, s Synthesizer, t Transcriber) (*Orchestrator, *artifact.Janitor) {
	janitor := artifact.NewJanitor(testLogger())
	timeouts := Timeouts{Respond: time.Minute, Synthesize: 45 * time.Second, Transcribe: 45 * time.Second}
	return New(r, s, t, janitor, 5*time.Minute, timeouts, testLogger()), janitor
}

func boolPtr(b bool) *bool { return &b }

func TestHandleTurnWithVoiceProducesAudioURL(t *testing.T) {
	responder := &stubResponder{text: "hello there"}
	synth := &stubSynthesizer{file: "/tmp/audio/abc123.wav"}
	orch, janitor := newTestOrchestrator(responder, synth, &stubTranscriber{})

	out, err := orch.HandleTurn(context.Background(), "s1", protocol.ClientMessage{Message: "hi"})
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}
	if out.Text != "hello there" {
		t.Fatalf("unexpected text %q", out.Text)
	}
	if out.AudioURL == nil || *out.AudioURL != "/audio/abc123.wav" {
		t.Fatalf("unexpected audio url %v", out.AudioURL)
	}
	if janitor.Pending() != 1 {
		t.Fatalf("expected the artifact scheduled for cleanup, pending=%d", janitor.Pending())
	}
}

func TestHandleTurnVoiceDisabledSkipsSynthesis(t *testing.T) {
	responder := &stubResponder{text: "quiet answer"}
	synth := &stubSynthesizer{file: "/tmp/audio/unused.wav"}
	orch, janitor := newTestOrchestrator(responder, synth, &stubTranscriber{})

	msg := protocol.ClientMessage{
		Message:       "hi",
		VoiceSettings: &protocol.VoiceSettings{Enabled: boolPtr(false)},
	}
	out, err := orch.HandleTurn(context.Background(), "s1", msg)
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}
	if out.AudioURL != nil {
		t.Fatalf("expected nil audio, got %q", *out.AudioURL)
	}
	if synth.calls != 0 {
		t.Fatalf("synthesizer must not run when speech is disabled, ran %d times", synth.calls)
	}
	if janitor.Pending() != 0 {
		t.Fatal("no artifact should be scheduled without synthesis")
	}
}

func TestHandleTurnSynthesisFailureDegradesToTextOnly(t *testing.T) {
	responder := &stubResponder{text: "still useful"}
	synth := &stubSynthesizer{err: errors.New("piper exited 1")}
	orch, janitor := newTestOrchestrator(responder, synth, &stubTranscriber{})

	out, err := orch.HandleTurn(context.Background(), "s1", protocol.ClientMessage{Message: "hi"})
	if err != nil {
		t.Fatalf("a synthesis failure must not fail the turn: %v", err)
	}
	if out.Text != "still useful" {
		t.Fatalf("unexpected text %q", out.Text)
	}
	if out.AudioURL != nil {
		t.Fatal("expected nil audio after a synthesis failure")
	}
	if janitor.Pending() != 0 {
		t.Fatal("nothing to clean up after a failed synthesis")
	}
}

func TestHandleTurnResponseFailureIsTerminal(t *testing.T) {
	responder := &stubResponder{err: errors.New("provider error: rate limited")}
	synth := &stubSynthesizer{file: "/tmp/audio/never.wav"}
	orch, janitor := newTestOrchestrator(responder, synth, &stubTranscriber{})

	recorded := 0
	orch.OnTurnCompleted(func(protocol.TurnRecord) { recorded++ })

	_, err := orch.HandleTurn(context.Background(), "s1", protocol.ClientMessage{Message: "hi"})
	if err == nil {
		t.Fatal("expected the responder failure to surface")
	}
	if synth.calls != 0 {
		t.Fatal("synthesis must not run after a response failure")
	}
	if janitor.Pending() != 0 {
		t.Fatal("no artifact may exist after a failed turn")
	}
	if recorded != 0 {
		t.Fatal("failed turns are not recorded")
	}
}

func TestHandleTurnPublishesRecord(t *testing.T) {
	responder := &stubResponder{text: "logged"}
	synth := &stubSynthesizer{file: "/tmp/audio/rec.wav"}
	orch, _ := newTestOrchestrator(responder, synth, &stubTranscriber{})

	var got protocol.TurnRecord
	orch.OnTurnCompleted(func(r protocol.TurnRecord) { got = r })

	msg := protocol.ClientMessage{Message: "remember this", Model: "gpt-4o"}
	if _, err := orch.HandleTurn(context.Background(), "s42", msg); err != nil {
		t.Fatalf("handle turn: %v", err)
	}
	if got.SessionID != "s42" || got.Prompt != "remember this" || got.Response != "logged" {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.Voiced {
		t.Fatal("expected the record to mark the turn as voiced")
	}
}

func TestHandleTurnEmitsSpanAndLatencyMetric(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	responder := &stubResponder{text: "traced"}
	orch, _ := newTestOrchestrator(responder, &stubSynthesizer{file: "/tmp/audio/t.wav"}, &stubTranscriber{})

	msg := protocol.ClientMessage{Message: "hi", Model: "gpt-4o"}
	if _, err := orch.HandleTurn(context.Background(), "s1", msg); err != nil {
		t.Fatalf("handle turn: %v", err)
	}

	var turnSpan *tracetest.SpanStub
	for _, span := range exporter.GetSpans() {
		if span.Name == "turn" {
			s := span
			turnSpan = &s
			break
		}
	}
	if turnSpan == nil {
		t.Fatal("expected a span named \"turn\"")
	}
	if !turnSpan.EndTime.After(turnSpan.StartTime) {
		t.Fatal("turn span must be ended")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	recorded := false
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "vox.turn.duration" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("unexpected data type %T for turn duration", m.Data)
			}
			if len(hist.DataPoints) > 0 && hist.DataPoints[0].Count > 0 {
				recorded = true
			}
		}
	}
	if !recorded {
		t.Fatal("expected one turn latency measurement")
	}
}

func TestHandleVoiceTurnTranscribesThenResponds(t *testing.T) {
	responder := &stubResponder{text: "heard you"}
	orch, _ := newTestOrchestrator(responder, &stubSynthesizer{file: "/tmp/a.wav"}, &stubTranscriber{text: "spoken words"})

	var got protocol.TurnRecord
	orch.OnTurnCompleted(func(r protocol.TurnRecord) { got = r })

	out, err := orch.HandleVoiceTurn(context.Background(), "s1", []byte("wav-bytes"), protocol.ClientMessage{})
	if err != nil {
		t.Fatalf("voice turn: %v", err)
	}
	if out.Text != "heard you" {
		t.Fatalf("unexpected text %q", out.Text)
	}
	if got.Prompt != "spoken words" {
		t.Fatalf("transcript must become the prompt, got %q", got.Prompt)
	}
}

func TestHandleVoiceTurnTranscriptionFailureIsTerminal(t *testing.T) {
	responder := &stubResponder{text: "never reached"}
	orch, _ := newTestOrchestrator(responder, &stubSynthesizer{}, &stubTranscriber{err: errors.New("bad wav")})

	if _, err := orch.HandleVoiceTurn(context.Background(), "s1", []byte("junk"), protocol.ClientMessage{}); err == nil {
		t.Fatal("expected the transcription failure to surface")
	}
	if responder.calls != 0 {
		t.Fatal("the responder must not run when transcription fails")
	}
}
