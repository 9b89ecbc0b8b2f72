package llm

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

// Service answers generate requests on the bus. Each request runs as its own
// goroutine under a per-call deadline; the service keeps no state between
// calls.
type Service struct {
	cfg        config.LLMConfig
	bus        *bus.Client
	dispatcher *Dispatcher
	sub        *nats.Subscription
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
}

func NewService(parent context.Context, cfg config.LLMConfig, busClient *bus.Client, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)

	var dispatcher *Dispatcher
	if cfg.Mode == "mock" {
		mock := NewMockGenerator()
		dispatcher = NewDispatcher(mock, mock, cfg.DefaultModel)
	} else {
		dispatcher = NewDispatcher(
			NewOpenAIGenerator(cfg.OpenAIEndpoint, cfg.OpenAIKey, cfg.MaxTokens, cfg.Temperature),
			NewAnthropicGenerator(cfg.AnthropicEndpoint, cfg.AnthropicKey, cfg.MaxTokens, cfg.Temperature),
			cfg.DefaultModel,
		)
	}

	return &Service{
		cfg:        cfg,
		bus:        busClient,
		dispatcher: dispatcher,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger.With(slog.String("component", "llm-service")),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectGenerate, s.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe generate requests: %w", err)
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

func (s *Service) Healthy() bool { return s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.GenerateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode generate request", slogError(err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, time.Duration(s.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()

		start := time.Now()
		text, err := s.dispatcher.Generate(ctx, Request{
			Message: req.Message,
			History: req.History,
			APIKey:  req.APIKey,
			Model:   req.Model,
		})

		reply := protocol.GenerateReply{Text: text}
		if err != nil {
			reply = protocol.GenerateReply{Error: err.Error()}
			s.logger.Warn("generation failed", slogError(err), slog.String("model", req.Model))
		} else {
			s.logger.Info("generation complete",
				slog.String("model", req.Model),
				slog.Duration("latency", time.Since(start)))
		}

		data, err := json.Marshal(reply)
		if err != nil {
			s.logger.Warn("failed to marshal generate reply", slogError(err))
			return
		}
		if err := msg.Respond(data); err != nil {
			s.logger.Warn("failed to respond to generate request", slogError(err))
		}
	}()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
