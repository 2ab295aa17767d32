// Package main provides the virgil CLI.
//
// Usage:
//
//	virgil [command]
//
// Commands:
//
//	listen   - Start a wake-word listening session on the microphone
//	devices  - List available audio input devices
//	version  - Print the version
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aryan-regmi/virgil/internal/audio"
	"github.com/aryan-regmi/virgil/internal/config"
	"github.com/aryan-regmi/virgil/internal/engine"
	"github.com/aryan-regmi/virgil/internal/metrics"
	"github.com/aryan-regmi/virgil/internal/notify"
	"github.com/aryan-regmi/virgil/internal/server"
	"github.com/aryan-regmi/virgil/internal/session"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "virgil"
	serviceVersion    = "1.0.0"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "virgil",
	Short: "Wake-word gated speech capture",
	Long: `virgil listens on the microphone, transcribes short windows of audio,
and switches to full transcription when a configured wake word is heard.`,
	SilenceUsage: true,
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Start a listening session on the microphone",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListen()
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available audio input devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := audio.ListInputDevices()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("no input devices found")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", serviceName, serviceVersion)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to configuration file")
	rootCmd.AddCommand(listenCmd, devicesCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runListen() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("engine_backend", cfg.Engine.Backend),
		slog.String("model_path", cfg.Engine.ModelPath),
		slog.Any("wake_words", cfg.WakeWords),
		slog.Int("passive_window_ms", cfg.Listening.PassiveWindowMS),
		slog.Int("active_window_ms", cfg.Listening.ActiveWindowMS),
		slog.Int("listen_duration_ms", cfg.Listening.ListenDurationMS),
		slog.Bool("vad_enabled", cfg.Listening.VADEnabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)

	eng, err := engine.New(cfg.Engine)
	if err != nil {
		return fmt.Errorf("failed to create inference engine: %w", err)
	}
	defer eng.Close()

	capture, err := audio.NewCapture(audio.CaptureConfig{
		DeviceName:      cfg.Audio.InputDevice,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		QueueSize:       cfg.Audio.FrameQueueSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize audio capture: %w", err)
	}
	defer capture.Close()

	capture.OnDrop = appMetrics.FramesDropped.Inc

	if err := capture.Start(); err != nil {
		return fmt.Errorf("failed to start audio capture: %w", err)
	}

	channels, sampleRate := capture.Format()
	logger.Info("Audio capture started",
		slog.Int("channels", channels),
		slog.Int("sample_rate", sampleRate),
	)

	notifier := notify.NewNotifier(logger)
	defer notifier.Close()

	notifier.Register(func(transcript string) {
		fmt.Println(transcript)
	})

	sess, err := session.New(logger, cfg, capture, eng, notifier, appMetrics)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, sess)
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Listening for wake words...", slog.Any("wake_words", cfg.WakeWords))

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		if err := sess.Stop(); err != nil {
			logger.Warn("Error stopping capture", slog.String("error", err.Error()))
		}
		if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Session ended with error", slog.String("error", err.Error()))
		}
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Session ended with error", slog.String("error", err.Error()))
		}
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	stats := sess.Stats()
	logger.Info("Final session statistics",
		slog.String("session_id", stats.ID),
		slog.Uint64("windows_emitted", stats.WindowsEmitted),
		slog.Uint64("wake_detections", stats.WakeDetections),
		slog.Uint64("transcripts", stats.Transcripts),
		slog.Duration("uptime", stats.Uptime),
	)

	logger.Info("Service stopped")
	return nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr", "":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
