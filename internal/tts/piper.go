package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/voxchat-labs/vox-core/internal/config"
)

// piperSynth shells out to the piper binary. Input text travels through a
// uniquely named temp file which is removed in every path, success or
// failure, before the call returns.
type piperSynth struct {
	binary    string
	voicesDir string
	outputDir string
	logger    *slog.Logger
}

func NewPiperSynth(cfg config.TTSConfig, logger *slog.Logger) (Synthesizer, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &piperSynth{
		binary:    cfg.Binary,
		voicesDir: cfg.VoicesDir,
		outputDir: cfg.OutputDir,
		logger:    logger.With(slog.String("component", "piper")),
	}, nil
}

func (p *piperSynth) Synthesize(ctx context.Context, text, voice string) (string, error) {
	model := ResolveVoiceModel(p.voicesDir, voice)
	outputFile := filepath.Join(p.outputDir, uuid.NewString()+".wav")
	textFile := filepath.Join(p.outputDir, uuid.NewString()+".txt")

	if err := os.WriteFile(textFile, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write text file: %w", err)
	}
	defer os.Remove(textFile)

	input, err := os.Open(textFile)
	if err != nil {
		return "", fmt.Errorf("open text file: %w", err)
	}
	defer input.Close()

	cmd := exec.CommandContext(ctx, p.binary, "--model", model, "--output_file", outputFile)
	cmd.Stdin = input
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// nothing to serve; don't leave a partial artifact behind
		os.Remove(outputFile)
		return "", fmt.Errorf("piper failed: %w: %s", err, stderr.String())
	}

	p.logger.Info("speech synthesis completed", slog.String("file", outputFile), slog.String("voice", voice))
	return outputFile, nil
}

// CheckInstallation reports whether piper and at least one voice model are
// present. Missing pieces are a startup warning, never a crash.
func CheckInstallation(cfg config.TTSConfig, logger *slog.Logger) bool {
	if _, err := os.Stat(cfg.Binary); err != nil {
		logger.Warn("piper binary not found, text-to-speech will not work",
			slog.String("path", cfg.Binary))
		return false
	}
	for _, voice := range KnownVoices() {
		if _, err := os.Stat(ResolveVoiceModel(cfg.VoicesDir, voice)); err == nil {
			return true
		}
	}
	logger.Warn("no piper voice models found, text-to-speech will not work",
		slog.String("voices_dir", cfg.VoicesDir))
	return false
}
