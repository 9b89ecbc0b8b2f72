package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
	"github.com/voxchat-labs/vox-core/internal/config"
)

const (
	ModelFileName  = "deepspeech-0.9.3-models.pbmm"
	ScorerFileName = "deepspeech-0.9.3-models.scorer"
)

// MissingModelText is the degraded result returned instead of an error when
// the model files are absent, so the caller's flow continues uninterrupted.
const MissingModelText = "Speech recognition model not installed. Please run setup."

// ModelFilesPresent reports whether both model files exist.
func ModelFilesPresent(modelDir string) bool {
	if _, err := os.Stat(filepath.Join(modelDir, ModelFileName)); err != nil {
		return false
	}
	if _, err := os.Stat(filepath.Join(modelDir, ScorerFileName)); err != nil {
		return false
	}
	return true
}

// execEngine shells out to an external recognizer for each clip. Calls are
// serialized; the engine binary holds the model for the process lifetime.
type execEngine struct {
	cmd      []string
	modelDir string
	mu       sync.Mutex
}

type execTranscript struct {
	Text string `json:"text"`
}

// NewExecEngineFactory returns the lazy-load entry point for the external
// recognizer. The load validates the command and the model files; per-call
// work happens in Transcribe.
func NewExecEngineFactory(cfg config.STTConfig) EngineFactory {
	return func(_ context.Context) (Engine, error) {
		parser := shellwords.NewParser()
		args, err := parser.Parse(cfg.Command)
		if err != nil {
			return nil, fmt.Errorf("parse stt command: %w", err)
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("stt command is empty")
		}
		if !ModelFilesPresent(cfg.ModelDir) {
			return nil, fmt.Errorf("model files not found in %s", cfg.ModelDir)
		}
		return &execEngine{cmd: args, modelDir: cfg.ModelDir}, nil
	}
}

func (e *execEngine) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := os.CreateTemp("", "vox_stt_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writePCMToWav(file, pcm, sampleRate); err != nil {
		return "", err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	args = append(args,
		"--audio", file.Name(),
		"--model", filepath.Join(e.modelDir, ModelFileName),
		"--scorer", filepath.Join(e.modelDir, ScorerFileName),
		"--json",
	)

	command := exec.CommandContext(ctx, base, args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("stt command failed: %w: %s", err, stderr.String())
	}

	var resp execTranscript
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", fmt.Errorf("decode stt output: %w", err)
	}
	return resp.Text, nil
}

func (e *execEngine) Close() error { return nil }

func writePCMToWav(file *os.File, pcm []byte, sampleRate int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
