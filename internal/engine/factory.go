package engine

import (
	"fmt"
	"time"

	"github.com/aryan-regmi/virgil/internal/config"
)

// New constructs the backend selected by the configuration.
func New(cfg config.EngineConfig) (Engine, error) {
	switch cfg.Backend {
	case "whisper":
		return NewWhisper(cfg.ModelPath, cfg.Language)
	case "remote":
		return NewRemote(RemoteConfig{
			Endpoint:      cfg.Endpoint,
			APIKey:        cfg.APIKey,
			Language:      cfg.Language,
			Timeout:       time.Duration(cfg.Timeout) * time.Second,
			MaxRetries:    cfg.MaxRetries,
			MaxConcurrent: cfg.MaxConcurrent,
		})
	default:
		return nil, fmt.Errorf("unknown engine backend %q", cfg.Backend)
	}
}
