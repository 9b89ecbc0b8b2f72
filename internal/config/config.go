package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind        string `yaml:"bind"`
	Port        int    `yaml:"port"`
	StaticDir   string `yaml:"static_dir"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	MaxPayloadMB   int      `yaml:"max_payload_mb"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type LLMConfig struct {
	Mode              string  `yaml:"mode"` // mock, live
	DefaultModel      string  `yaml:"default_model"`
	OpenAIKey         string  `yaml:"openai_api_key"`
	OpenAIEndpoint    string  `yaml:"openai_endpoint"`
	AnthropicKey      string  `yaml:"anthropic_api_key"`
	AnthropicEndpoint string  `yaml:"anthropic_endpoint"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float64 `yaml:"temperature"`
	TimeoutMS         int     `yaml:"timeout_ms"`
}

type TTSConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Mode             string `yaml:"mode"` // mock, piper
	Binary           string `yaml:"binary"`
	VoicesDir        string `yaml:"voices_dir"`
	OutputDir        string `yaml:"output_dir"`
	DefaultVoice     string `yaml:"default_voice"`
	RetentionMinutes int    `yaml:"retention_minutes"`
	TimeoutMS        int    `yaml:"timeout_ms"`
}

type STTConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Mode              string `yaml:"mode"` // mock, exec
	Command           string `yaml:"command"`
	ModelDir          string `yaml:"model_dir"`
	IdleUnloadMinutes int    `yaml:"idle_unload_minutes"`
	SweepIntervalSec  int    `yaml:"sweep_interval_sec"`
	TimeoutMS         int    `yaml:"timeout_ms"`
}

type OrchestratorConfig struct {
	ArtifactRetentionMinutes int `yaml:"artifact_retention_minutes"`
}

type Config struct {
	RuntimeName  string             `yaml:"runtime_name"`
	Environment  string             `yaml:"environment"`
	HTTP         HTTPConfig         `yaml:"http"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Bus          BusConfig          `yaml:"bus"`
	EventStore   EventStoreConfig   `yaml:"event_store"`
	LLM          LLMConfig          `yaml:"llm"`
	TTS          TTSConfig          `yaml:"tts"`
	STT          STTConfig          `yaml:"stt"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

func Default() Config {
	return Config{
		RuntimeName: "vox-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:        "0.0.0.0",
			Port:        3000,
			StaticDir:   "./public",
			MaxUploadMB: 16,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			MaxPayloadMB:   8,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/vox-turns.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		LLM: LLMConfig{
			Mode:              "live",
			DefaultModel:      "gpt-4o",
			OpenAIEndpoint:    "https://api.openai.com/v1",
			AnthropicEndpoint: "https://api.anthropic.com",
			MaxTokens:         2000,
			Temperature:       0.7,
			TimeoutMS:         60000,
		},
		TTS: TTSConfig{
			Enabled:          true,
			Mode:             "piper",
			Binary:           "./voice/piper",
			VoicesDir:        "./voice/models",
			OutputDir:        "./voice/output",
			DefaultVoice:     "male",
			RetentionMinutes: 30,
			TimeoutMS:        45000,
		},
		STT: STTConfig{
			Enabled:           true,
			Mode:              "exec",
			Command:           "deepspeech",
			ModelDir:          "./speech/models",
			IdleUnloadMinutes: 10,
			SweepIntervalSec:  60,
			TimeoutMS:         45000,
		},
		Orchestrator: OrchestratorConfig{
			ArtifactRetentionMinutes: 5,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VOX_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOX_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOX_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOX_HTTP_PORT")
	overrideInt(&cfg.HTTP.Port, "PORT")
	overrideString(&cfg.HTTP.StaticDir, "VOX_HTTP_STATIC_DIR")
	overrideInt(&cfg.HTTP.MaxUploadMB, "VOX_HTTP_MAX_UPLOAD_MB")
	overrideString(&cfg.Telemetry.LogLevel, "VOX_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOX_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOX_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOX_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "VOX_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOX_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOX_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOX_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOX_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOX_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOX_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOX_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Bus.MaxPayloadMB, "VOX_BUS_MAX_PAYLOAD_MB")
	overrideString(&cfg.EventStore.Path, "VOX_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "VOX_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "VOX_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "VOX_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "VOX_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.LLM.Mode, "VOX_LLM_MODE")
	overrideString(&cfg.LLM.DefaultModel, "VOX_LLM_DEFAULT_MODEL")
	overrideString(&cfg.LLM.OpenAIKey, "OPENAI_API_KEY")
	overrideString(&cfg.LLM.OpenAIEndpoint, "VOX_LLM_OPENAI_ENDPOINT")
	overrideString(&cfg.LLM.AnthropicKey, "ANTHROPIC_API_KEY")
	overrideString(&cfg.LLM.AnthropicEndpoint, "VOX_LLM_ANTHROPIC_ENDPOINT")
	overrideInt(&cfg.LLM.MaxTokens, "VOX_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "VOX_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.TimeoutMS, "VOX_LLM_TIMEOUT_MS")
	overrideBool(&cfg.TTS.Enabled, "VOX_TTS_ENABLED")
	overrideString(&cfg.TTS.Mode, "VOX_TTS_MODE")
	overrideString(&cfg.TTS.Binary, "PIPER_BINARY_PATH")
	overrideString(&cfg.TTS.Binary, "VOX_TTS_BINARY")
	overrideString(&cfg.TTS.VoicesDir, "PIPER_MODEL_DIR")
	overrideString(&cfg.TTS.VoicesDir, "VOX_TTS_VOICES_DIR")
	overrideString(&cfg.TTS.OutputDir, "VOX_TTS_OUTPUT_DIR")
	overrideString(&cfg.TTS.DefaultVoice, "VOX_TTS_DEFAULT_VOICE")
	overrideInt(&cfg.TTS.RetentionMinutes, "VOX_TTS_RETENTION_MINUTES")
	overrideInt(&cfg.TTS.TimeoutMS, "VOX_TTS_TIMEOUT_MS")
	overrideBool(&cfg.STT.Enabled, "VOX_STT_ENABLED")
	overrideString(&cfg.STT.Mode, "VOX_STT_MODE")
	overrideString(&cfg.STT.Command, "VOX_STT_COMMAND")
	overrideString(&cfg.STT.ModelDir, "VOX_STT_MODEL_DIR")
	overrideInt(&cfg.STT.IdleUnloadMinutes, "VOX_STT_IDLE_UNLOAD_MINUTES")
	overrideInt(&cfg.STT.SweepIntervalSec, "VOX_STT_SWEEP_INTERVAL_SEC")
	overrideInt(&cfg.STT.TimeoutMS, "VOX_STT_TIMEOUT_MS")
	overrideInt(&cfg.Orchestrator.ArtifactRetentionMinutes, "VOX_ORCHESTRATOR_ARTIFACT_RETENTION_MINUTES")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.MaxUploadMB <= 0 {
		return errors.New("http.max_upload_mb must be positive")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Bus.MaxPayloadMB <= 0 {
		return errors.New("bus.max_payload_mb must be positive")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.LLM.Mode {
	case "mock", "live":
	default:
		return errors.New("llm.mode must be one of mock|live")
	}
	if cfg.LLM.DefaultModel == "" {
		return errors.New("llm.default_model must not be empty")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	if cfg.LLM.TimeoutMS <= 0 {
		return errors.New("llm.timeout_ms must be positive")
	}
	if cfg.TTS.Enabled {
		switch cfg.TTS.Mode {
		case "mock", "piper":
		default:
			return errors.New("tts.mode must be one of mock|piper")
		}
		if cfg.TTS.Mode == "piper" && cfg.TTS.Binary == "" {
			return errors.New("tts.binary must be set when mode=piper")
		}
		if cfg.TTS.OutputDir == "" {
			return errors.New("tts.output_dir must not be empty")
		}
		if cfg.TTS.RetentionMinutes <= 0 {
			return errors.New("tts.retention_minutes must be positive")
		}
		if cfg.TTS.TimeoutMS <= 0 {
			return errors.New("tts.timeout_ms must be positive")
		}
	}
	if cfg.STT.Enabled {
		switch cfg.STT.Mode {
		case "mock", "exec":
		default:
			return errors.New("stt.mode must be one of mock|exec")
		}
		if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
		if cfg.STT.IdleUnloadMinutes <= 0 {
			return errors.New("stt.idle_unload_minutes must be positive")
		}
		if cfg.STT.SweepIntervalSec <= 0 {
			return errors.New("stt.sweep_interval_sec must be positive")
		}
		if cfg.STT.TimeoutMS <= 0 {
			return errors.New("stt.timeout_ms must be positive")
		}
	}
	if cfg.Orchestrator.ArtifactRetentionMinutes <= 0 {
		return errors.New("orchestrator.artifact_retention_minutes must be positive")
	}
	return nil
}
