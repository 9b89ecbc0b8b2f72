package stt

import "context"

// Engine is a loaded recognition backend. Engines are expensive to hold, so
// the slot loads them lazily and releases them after inactivity.
type Engine interface {
	// Transcribe converts 16-bit little-endian mono PCM into the single
	// best transcript.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error)
	Close() error
}

// EngineFactory performs the (possibly slow) model load.
type EngineFactory func(ctx context.Context) (Engine, error)
