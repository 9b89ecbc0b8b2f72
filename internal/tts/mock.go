package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// mockSynth writes a short silent WAV so downstream paths (serving, cleanup)
// behave exactly as with real output.
type mockSynth struct {
	outputDir  string
	sampleRate int
}

func NewMockSynth(outputDir string) (Synthesizer, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &mockSynth{outputDir: outputDir, sampleRate: 22050}, nil
}

func (m *mockSynth) Synthesize(ctx context.Context, text, voice string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	outputFile := filepath.Join(m.outputDir, uuid.NewString()+".wav")
	f, err := os.Create(outputFile)
	if err != nil {
		return "", fmt.Errorf("create mock artifact: %w", err)
	}
	defer f.Close()

	// 200ms of mono silence
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: m.sampleRate},
		Data:   make([]int, m.sampleRate/5),
	}
	enc := wav.NewEncoder(f, m.sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return "", fmt.Errorf("write mock wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("close mock wav: %w", err)
	}
	return outputFile, nil
}
