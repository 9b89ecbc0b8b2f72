// Package runtime assembles the vox-core services: embedded bus, adapter
// services, orchestrator, turn store, and the public gateway.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/voxchat-labs/vox-core/internal/artifact"
	"github.com/voxchat-labs/vox-core/internal/bus"
	"github.com/voxchat-labs/vox-core/internal/config"
	"github.com/voxchat-labs/vox-core/internal/eventstore"
	"github.com/voxchat-labs/vox-core/internal/gateway"
	"github.com/voxchat-labs/vox-core/internal/llm"
	"github.com/voxchat-labs/vox-core/internal/natsserver"
	"github.com/voxchat-labs/vox-core/internal/orchestrator"
	"github.com/voxchat-labs/vox-core/internal/protocol"
	"github.com/voxchat-labs/vox-core/internal/stt"
	"github.com/voxchat-labs/vox-core/internal/tts"
)

type Runtime struct {
	cfg     config.Config
	version string
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func New(cfg config.Config, version string, logger *slog.Logger) *Runtime {
	return &Runtime{cfg: cfg, version: version, logger: logger}
}

// Start brings every component up, then blocks until ctx is cancelled and
// tears them down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	telemetryShutdown, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	var metricsServer *http.Server
	if metricHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricHandler)
		metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return err
	}

	busClient, err := bus.Connect(r.cfg.Bus, r.logger)
	if err != nil {
		if embedded != nil {
			embedded.Shutdown()
		}
		return err
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		busClient.Close()
		if embedded != nil {
			embedded.Shutdown()
		}
		return err
	}

	janitor := artifact.NewJanitor(r.logger)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		janitor.Run(ctx, time.Minute)
	}()

	llmService := llm.NewService(ctx, r.cfg.LLM, busClient, r.logger)
	if err := llmService.Start(); err != nil {
		return err
	}

	var ttsService *tts.Service
	if r.cfg.TTS.Enabled {
		synth, err := newSynthesizer(r.cfg.TTS, r.logger)
		if err != nil {
			return err
		}
		ttsService = tts.NewService(ctx, r.cfg.TTS, busClient, synth, janitor, r.logger)
		if err := ttsService.Start(); err != nil {
			return err
		}
	}

	sttService := stt.NewService(ctx, r.cfg.STT, busClient, r.logger)
	if err := sttService.Start(); err != nil {
		return err
	}

	orch := orchestrator.New(
		orchestrator.NewBusResponder(busClient),
		orchestrator.NewBusSynthesizer(busClient),
		orchestrator.NewBusTranscriber(busClient),
		janitor,
		time.Duration(r.cfg.Orchestrator.ArtifactRetentionMinutes)*time.Minute,
		orchestrator.Timeouts{
			Respond:    time.Duration(r.cfg.LLM.TimeoutMS) * time.Millisecond,
			Synthesize: time.Duration(r.cfg.TTS.TimeoutMS) * time.Millisecond,
			Transcribe: time.Duration(r.cfg.STT.TimeoutMS) * time.Millisecond,
		},
		r.logger,
	)
	orch.OnTurnCompleted(func(rec protocol.TurnRecord) {
		data, err := json.Marshal(rec)
		if err != nil {
			r.logger.Warn("failed to encode turn record", slog.String("error", err.Error()))
			return
		}
		if err := busClient.Conn().Publish(protocol.SubjectTurnCompleted, data); err != nil {
			r.logger.Warn("failed to publish turn record", slog.String("error", err.Error()))
		}
	})

	recorderSub, err := busClient.Conn().Subscribe(protocol.SubjectTurnCompleted, func(msg *nats.Msg) {
		var rec protocol.TurnRecord
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			r.logger.Warn("failed to decode turn record", slog.String("error", err.Error()))
			return
		}
		recordCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.AppendTurn(recordCtx, rec); err != nil {
			r.logger.Warn("failed to persist turn", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe turn records: %w", err)
	}

	health := func() map[string]bool {
		components := map[string]bool{
			"bus": busClient.Healthy(),
			"llm": llmService.Healthy(),
			"stt": sttService.Healthy(),
		}
		if ttsService != nil {
			components["tts"] = ttsService.Healthy()
		}
		return components
	}

	server := gateway.NewServer(r.cfg.HTTP, r.cfg.TTS.OutputDir, orch, health, r.version, r.logger)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		// Listen returns nil after a graceful Shutdown.
		if err := server.Listen(); err != nil {
			r.logger.Error("gateway failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	r.logger.Info("runtime started",
		slog.String("version", r.version),
		slog.String("environment", r.cfg.Environment))

	<-ctx.Done()
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(); err != nil {
		r.logger.Error("gateway shutdown error", slog.String("error", err.Error()))
	}
	_ = recorderSub.Drain()
	sttService.Close()
	if ttsService != nil {
		ttsService.Close()
	}
	llmService.Close()
	if err := store.Close(); err != nil {
		r.logger.Error("turn store close error", slog.String("error", err.Error()))
	}
	busClient.Close()
	if embedded != nil {
		embedded.Shutdown()
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if err := telemetryShutdown(shutdownCtx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}
	return nil
}

func newSynthesizer(cfg config.TTSConfig, logger *slog.Logger) (tts.Synthesizer, error) {
	if cfg.Mode == "mock" {
		return tts.NewMockSynth(cfg.OutputDir)
	}
	tts.CheckInstallation(cfg, logger)
	return tts.NewPiperSynth(cfg, logger)
}
