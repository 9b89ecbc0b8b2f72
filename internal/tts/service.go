package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/voxchat-labs/vox-core/internal/artifact"
	"github.com/voxchat-labs/vox-core/internal/bus"
	"github.com/voxchat-labs/vox-core/internal/config"
	"github.com/voxchat-labs/vox-core/internal/protocol"
)

// Service answers synthesize requests on the bus. Every artifact it produces
// is handed to the janitor with the adapter's long retention window;
// turn-scoped callers layer their own shorter window on top.
type Service struct {
	cfg     config.TTSConfig
	bus     *bus.Client
	synth   Synthesizer
	janitor *artifact.Janitor
	sub     *nats.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
}

func NewService(parent context.Context, cfg config.TTSConfig, busClient *bus.Client, synth Synthesizer, janitor *artifact.Janitor, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:     cfg,
		bus:     busClient,
		synth:   synth,
		janitor: janitor,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With(slog.String("component", "tts-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSynthesize, s.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe synthesize requests: %w", err)
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SynthesizeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode synthesize request", slogError(err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, time.Duration(s.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()

		voice := req.Voice
		if voice == "" {
			voice = s.cfg.DefaultVoice
		}

		file, err := s.synth.Synthesize(ctx, req.Text, voice)
		reply := protocol.SynthesizeReply{File: file}
		if err != nil {
			reply = protocol.SynthesizeReply{Error: err.Error()}
			s.logger.Warn("synthesis failed", slogError(err), slog.String("voice", voice))
		} else {
			s.janitor.Schedule(file, time.Duration(s.cfg.RetentionMinutes)*time.Minute)
		}

		data, err := json.Marshal(reply)
		if err != nil {
			s.logger.Warn("failed to marshal synthesize reply", slogError(err))
			return
		}
		if err := msg.Respond(data); err != nil {
			s.logger.Warn("failed to respond to synthesize request", slogError(err))
		}
	}()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
