package tts

import "context"

// Synthesizer produces a spoken audio file for a piece of response text.
// Every call yields a fresh, uniquely named artifact; nothing is cached.
type Synthesizer interface {
	// Synthesize renders text with the given voice identifier and returns
	// the path of the produced audio file.
	Synthesize(ctx context.Context, text, voice string) (string, error)
}
