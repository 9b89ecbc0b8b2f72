package tts

import "path/filepath"

// DefaultVoice is used whenever the requested voice type is unknown or empty.
const DefaultVoice = "male"

// voiceModels maps a voice-type identifier to its model file. The table is
// fixed; anything outside it falls back to DefaultVoice.
var voiceModels = map[string]string{
	"male":       "en_US-lessac-medium.onnx",
	"female":     "en_US-amy-medium.onnx",
	"british":    "en_GB-alba-medium.onnx",
	"australian": "en_AU-sydney-medium.onnx",
	"indian":     "en_IN-athens-medium.onnx",
	"spanish":    "es_ES-mls_10246-medium.onnx",
}

// ResolveVoiceModel returns the model path for a voice type, applying the
// default fallback for unrecognized identifiers.
func ResolveVoiceModel(voicesDir, voiceType string) string {
	model, ok := voiceModels[voiceType]
	if !ok {
		model = voiceModels[DefaultVoice]
	}
	return filepath.Join(voicesDir, model)
}

// KnownVoices lists the recognized voice identifiers.
func KnownVoices() []string {
	voices := make([]string, 0, len(voiceModels))
	for v := range voiceModels {
		voices = append(voices, v)
	}
	return voices
}
