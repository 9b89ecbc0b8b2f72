package stt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-audio/wav"
)

// Clip is a decoded recording ready for the engine.
type Clip struct {
	PCM        []byte // 16-bit little-endian samples
	SampleRate int
	Channels   int
}

// DecodeWAV reads a complete WAV container and returns the full 16-bit
// sample buffer. Earlier revisions of this pipeline discarded the second
// half of the data chunk; decoding through the container's declared format
// makes that unnecessary.
func DecodeWAV(data []byte) (Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Clip{}, errors.New("not a valid wav file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("read pcm data: %w", err)
	}
	if buf.Format == nil || len(buf.Data) == 0 {
		return Clip{}, errors.New("wav file contains no audio data")
	}

	pcm := make([]byte, len(buf.Data)*2)
	for i, sample := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(sample)))
	}

	return Clip{
		PCM:        pcm,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}
