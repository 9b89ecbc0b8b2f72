package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.LLM.DefaultModel != "gpt-4o" {
		t.Fatalf("expected default model gpt-4o, got %q", cfg.LLM.DefaultModel)
	}
	if cfg.TTS.DefaultVoice != "male" {
		t.Fatalf("expected default voice male, got %q", cfg.TTS.DefaultVoice)
	}
	if cfg.Orchestrator.ArtifactRetentionMinutes != 5 {
		t.Fatalf("expected 5 minute turn artifact retention, got %d", cfg.Orchestrator.ArtifactRetentionMinutes)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOX_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VOX_BUS_USERNAME", "alice")
	t.Setenv("VOX_BUS_PASSWORD", "secret")
	t.Setenv("VOX_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("PORT", "8080")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "ak-test")
	t.Setenv("PIPER_BINARY_PATH", "/opt/piper/piper")
	t.Setenv("VOX_STT_IDLE_UNLOAD_MINUTES", "3")
	t.Setenv("VOX_EVENT_STORE_RETENTION_MODE", "persistent")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatal("expected credentials override")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("expected PORT override, got %d", cfg.HTTP.Port)
	}
	if cfg.LLM.OpenAIKey != "sk-test" || cfg.LLM.AnthropicKey != "ak-test" {
		t.Fatal("expected provider key overrides")
	}
	if cfg.TTS.Binary != "/opt/piper/piper" {
		t.Fatalf("expected piper binary override, got %q", cfg.TTS.Binary)
	}
	if cfg.STT.IdleUnloadMinutes != 3 {
		t.Fatalf("expected idle unload override, got %d", cfg.STT.IdleUnloadMinutes)
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatal("expected retention mode override")
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Default()
	cfg.LLM.Mode = "quantum"
	if err := validate(cfg); err == nil {
		t.Fatal("expected validation error for llm.mode")
	}

	cfg = Default()
	cfg.TTS.Mode = "festival"
	if err := validate(cfg); err == nil {
		t.Fatal("expected validation error for tts.mode")
	}
}
