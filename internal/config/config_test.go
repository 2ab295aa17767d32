package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Default()
	cfg.WakeWords = []string{"hey virgil"}
	cfg.Engine.ModelPath = "model.bin"
	return cfg
}

func TestDefaultValidatesWithRequiredFields(t *testing.T) {
	cfg := validConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults plus required fields to validate, got: %v", err)
	}
}

func TestValidateAudio(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"frames per buffer too small", func(c *Config) { c.Audio.FramesPerBuffer = 32 }, true},
		{"frames per buffer too large", func(c *Config) { c.Audio.FramesPerBuffer = 32768 }, true},
		{"zero queue size", func(c *Config) { c.Audio.FrameQueueSize = 0 }, true},
		{"named device allowed", func(c *Config) { c.Audio.InputDevice = "pulse" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestValidateListening(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"passive window too short", func(c *Config) { c.Listening.PassiveWindowMS = 500 }, true},
		{"active shorter than passive", func(c *Config) { c.Listening.ActiveWindowMS = 1500 }, true},
		{"negative guard", func(c *Config) { c.Listening.GuardSamples = -1 }, true},
		{"zero guard allowed", func(c *Config) { c.Listening.GuardSamples = 0 }, false},
		{"zero listen duration", func(c *Config) { c.Listening.ListenDurationMS = 0 }, true},
		{"threshold above one", func(c *Config) { c.Listening.VADThreshold = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestValidateWakeWords(t *testing.T) {
	cfg := validConfig()
	cfg.WakeWords = nil
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for missing wake words")
	}

	cfg = validConfig()
	cfg.WakeWords = []string{"hey", ""}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for empty wake word")
	}
}

func TestValidateEngine(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"whisper without model path", func(c *Config) { c.Engine.ModelPath = "" }, true},
		{"unknown backend", func(c *Config) { c.Engine.Backend = "parrot" }, true},
		{"remote without endpoint", func(c *Config) {
			c.Engine.Backend = "remote"
			c.Engine.Endpoint = ""
		}, true},
		{"remote valid", func(c *Config) {
			c.Engine.Backend = "remote"
			c.Engine.Endpoint = "http://localhost:8080/transcribe"
		}, false},
		{"remote zero timeout", func(c *Config) {
			c.Engine.Backend = "remote"
			c.Engine.Endpoint = "http://localhost:8080/transcribe"
			c.Engine.Timeout = 0
		}, true},
		{"remote negative retries", func(c *Config) {
			c.Engine.Backend = "remote"
			c.Engine.Endpoint = "http://localhost:8080/transcribe"
			c.Engine.MaxRetries = -1
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestValidateLogging(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for invalid log level")
	}

	cfg = validConfig()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for invalid log format")
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
audio:
  frames_per_buffer: 512
  frame_queue_size: 32
listening:
  passive_window_ms: 3000
  active_window_ms: 6000
  guard_samples: 200
  listen_duration_ms: 8000
wake_words:
  - "Hey Virgil"
  - "Okay Virgil"
engine:
  backend: whisper
  model_path: /models/ggml-base.en.bin
  language: en
logging:
  level: debug
  format: json
  output: stdout
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Audio.FramesPerBuffer != 512 {
		t.Errorf("Expected frames_per_buffer 512, got %d", cfg.Audio.FramesPerBuffer)
	}
	if len(cfg.WakeWords) != 2 || cfg.WakeWords[0] != "Hey Virgil" {
		t.Errorf("Expected wake words in declaration order, got %v", cfg.WakeWords)
	}
	if cfg.Engine.ModelPath != "/models/ggml-base.en.bin" {
		t.Errorf("Expected model path from file, got %q", cfg.Engine.ModelPath)
	}
	if cfg.Listening.ListenDuration() != 8*time.Second {
		t.Errorf("Expected 8s listen duration, got %v", cfg.Listening.ListenDuration())
	}

	// Sections absent from the file keep their defaults.
	if cfg.HTTP.Port != 9090 {
		t.Errorf("Expected default http port 9090, got %d", cfg.HTTP.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("audio: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestWindowSamples(t *testing.T) {
	tests := []struct {
		windowMS int
		guard    int
		want     int
	}{
		{1000, 0, 16000},
		{1000, 200, 16200},
		{2000, 200, 32200},
		{1500, 0, 16000}, // sub-second remainder floors away
		{5000, 200, 80200},
	}

	for _, tt := range tests {
		if got := WindowSamples(tt.windowMS, tt.guard); got != tt.want {
			t.Errorf("WindowSamples(%d, %d) = %d, want %d", tt.windowMS, tt.guard, got, tt.want)
		}
	}
}
