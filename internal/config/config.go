package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Target format required by the inference engine.
const (
	TargetSampleRate = 16000
	TargetChannels   = 1
)

// Config represents the complete backend configuration
type Config struct {
	Audio     AudioConfig     `yaml:"audio"`
	Listening ListeningConfig `yaml:"listening"`
	WakeWords []string        `yaml:"wake_words"`
	Engine    EngineConfig    `yaml:"engine"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AudioConfig contains capture and normalization parameters
type AudioConfig struct {
	InputDevice     string `yaml:"input_device"`      // empty = default device
	FramesPerBuffer int    `yaml:"frames_per_buffer"` // callback buffer size in frames
	FrameQueueSize  int    `yaml:"frame_queue_size"`  // bounded channel between callback and consumer
	DebugDumpDir    string `yaml:"debug_dump_dir"`    // write emitted windows as WAV files when set
}

// ListeningConfig contains orchestration parameters
type ListeningConfig struct {
	PassiveWindowMS  int     `yaml:"passive_window_ms"`  // detection window length
	ActiveWindowMS   int     `yaml:"active_window_ms"`   // transcription window length
	GuardSamples     int     `yaml:"guard_samples"`      // extra samples appended to each window target
	ListenDurationMS int     `yaml:"listen_duration_ms"` // active-phase deadline
	VADEnabled       bool    `yaml:"vad_enabled"`
	VADThreshold     float64 `yaml:"vad_threshold"` // RMS energy gate
}

// EngineConfig contains inference backend configuration
type EngineConfig struct {
	Backend   string `yaml:"backend"` // "whisper" or "remote"
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`

	// Remote backend only
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// HTTPConfig contains the monitoring endpoint configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration with working defaults for every section
// except the model path, which has no sensible default.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			FramesPerBuffer: 1024,
			FrameQueueSize:  64,
		},
		Listening: ListeningConfig{
			PassiveWindowMS:  2000,
			ActiveWindowMS:   5000,
			GuardSamples:     200,
			ListenDurationMS: 10000,
			VADEnabled:       true,
			VADThreshold:     0.01,
		},
		Engine: EngineConfig{
			Backend:       "whisper",
			Language:      "en",
			Timeout:       30,
			MaxRetries:    3,
			MaxConcurrent: 1,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    9090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file, layering it over defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Listening.Validate(); err != nil {
		return fmt.Errorf("listening config: %w", err)
	}

	if len(c.WakeWords) == 0 {
		return fmt.Errorf("wake_words cannot be empty")
	}
	for i, w := range c.WakeWords {
		if w == "" {
			return fmt.Errorf("wake_words[%d] cannot be empty", i)
		}
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates capture configuration
func (a *AudioConfig) Validate() error {
	if a.FramesPerBuffer < 64 || a.FramesPerBuffer > 16384 {
		return fmt.Errorf("frames_per_buffer must be between 64 and 16384, got %d", a.FramesPerBuffer)
	}

	if a.FrameQueueSize < 1 {
		return fmt.Errorf("frame_queue_size must be at least 1, got %d", a.FrameQueueSize)
	}

	return nil
}

// Validate validates orchestration configuration
func (l *ListeningConfig) Validate() error {
	if l.PassiveWindowMS < 1000 {
		return fmt.Errorf("passive_window_ms must be at least 1000, got %d", l.PassiveWindowMS)
	}

	if l.ActiveWindowMS < l.PassiveWindowMS {
		return fmt.Errorf("active_window_ms (%d) must be at least passive_window_ms (%d)",
			l.ActiveWindowMS, l.PassiveWindowMS)
	}

	if l.GuardSamples < 0 {
		return fmt.Errorf("guard_samples cannot be negative, got %d", l.GuardSamples)
	}

	if l.ListenDurationMS < 1 {
		return fmt.Errorf("listen_duration_ms must be positive, got %d", l.ListenDurationMS)
	}

	if l.VADThreshold < 0 || l.VADThreshold > 1 {
		return fmt.Errorf("vad_threshold must be between 0 and 1, got %f", l.VADThreshold)
	}

	return nil
}

// Validate validates inference backend configuration
func (e *EngineConfig) Validate() error {
	switch e.Backend {
	case "whisper":
		if e.ModelPath == "" {
			return fmt.Errorf("model_path cannot be empty for the whisper backend")
		}
	case "remote":
		if e.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for the remote backend")
		}
		if e.Timeout < 1 {
			return fmt.Errorf("timeout must be at least 1 second, got %d", e.Timeout)
		}
		if e.MaxRetries < 0 {
			return fmt.Errorf("max_retries cannot be negative, got %d", e.MaxRetries)
		}
		if e.MaxConcurrent < 1 {
			return fmt.Errorf("max_concurrent must be at least 1, got %d", e.MaxConcurrent)
		}
	default:
		return fmt.Errorf("backend must be 'whisper' or 'remote', got '%s'", e.Backend)
	}

	return nil
}

// Validate validates the monitoring endpoint configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// PassiveWindowDuration returns the passive window length as a time.Duration
func (l *ListeningConfig) PassiveWindowDuration() time.Duration {
	return time.Duration(l.PassiveWindowMS) * time.Millisecond
}

// ActiveWindowDuration returns the active window length as a time.Duration
func (l *ListeningConfig) ActiveWindowDuration() time.Duration {
	return time.Duration(l.ActiveWindowMS) * time.Millisecond
}

// ListenDuration returns the active-phase deadline as a time.Duration
func (l *ListeningConfig) ListenDuration() time.Duration {
	return time.Duration(l.ListenDurationMS) * time.Millisecond
}

// TimeoutDuration returns the remote engine timeout as a time.Duration
func (e *EngineConfig) TimeoutDuration() time.Duration {
	return time.Duration(e.Timeout) * time.Second
}

// WindowSamples converts a window length in milliseconds to a sample target
// at the engine rate: floor(ms/1000) * 16000 plus the configured guard.
func WindowSamples(windowMS, guardSamples int) int {
	return (windowMS/1000)*TargetSampleRate + guardSamples
}
