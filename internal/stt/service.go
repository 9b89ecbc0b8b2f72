package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/voxchat-labs/vox-core/internal/bus"
	"github.com/voxchat-labs/vox-core/internal/config"
	"github.com/voxchat-labs/vox-core/internal/protocol"
)

// Service answers recognize requests on the bus. The engine slot is the only
// cross-request shared resource in the whole runtime.
type Service struct {
	cfg    config.STTConfig
	bus    *bus.Client
	slot   *Slot
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewService(parent context.Context, cfg config.STTConfig, busClient *bus.Client, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)

	var factory EngineFactory
	if cfg.Mode == "mock" {
		factory = NewMockEngineFactory()
	} else {
		factory = NewExecEngineFactory(cfg)
	}
	slot := NewSlot(factory, time.Duration(cfg.IdleUnloadMinutes)*time.Minute, logger)

	return &Service{
		cfg:    cfg,
		bus:    busClient,
		slot:   slot,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(slog.String("component", "stt-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectRecognize, s.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe recognize requests: %w", err)
	}
	s.sub = sub

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.slot.Run(s.ctx, time.Duration(s.cfg.SweepIntervalSec)*time.Second)
	}()
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
	s.slot.Close()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.RecognizeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode recognize request", slogError(err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, time.Duration(s.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()

		text, err := s.recognize(ctx, req.Audio)
		reply := protocol.RecognizeReply{Text: text}
		if err != nil {
			reply = protocol.RecognizeReply{Error: err.Error()}
			s.logger.Warn("recognition failed", slogError(err))
		}

		data, err := json.Marshal(reply)
		if err != nil {
			s.logger.Warn("failed to marshal recognize reply", slogError(err))
			return
		}
		if err := msg.Respond(data); err != nil {
			s.logger.Warn("failed to respond to recognize request", slogError(err))
		}
	}()
}

func (s *Service) recognize(ctx context.Context, audio []byte) (string, error) {
	// Missing model files degrade rather than fail so the upload flow stays
	// intact on an unprovisioned install.
	if s.cfg.Mode == "exec" && !ModelFilesPresent(s.cfg.ModelDir) {
		s.logger.Warn("recognition model files not found", slog.String("model_dir", s.cfg.ModelDir))
		return MissingModelText, nil
	}

	engine, err := s.slot.Acquire(ctx)
	if err != nil {
		return "", err
	}

	clip, err := DecodeWAV(audio)
	if err != nil {
		return "", err
	}
	if clip.Channels != 1 {
		s.logger.Warn("expected mono recording", slog.Int("channels", clip.Channels))
	}

	return engine.Transcribe(ctx, clip.PCM, clip.SampleRate)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
