package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aryan-regmi/virgil/internal/audio"
	"github.com/aryan-regmi/virgil/internal/config"
	"github.com/aryan-regmi/virgil/internal/engine"
	"github.com/aryan-regmi/virgil/internal/metrics"
	"github.com/aryan-regmi/virgil/internal/notify"
	"github.com/aryan-regmi/virgil/internal/vad"
	"github.com/aryan-regmi/virgil/internal/wakeword"
	"github.com/google/uuid"
)

// State is the listening session's lifecycle phase.
type State int

const (
	StateIdle State = iota
	StatePassive
	StateActive
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePassive:
		return "passive"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source delivers captured frames to the session. The frame channel closing
// signals end-of-stream; the error channel carries fatal device failures.
type Source interface {
	Frames() <-chan audio.Frame
	Errors() <-chan error
	Format() (channels, sampleRate int)
	Stop() error
}

// Session drives one listening run: passive windows are transcribed with the
// fast strategy and scanned for wake words; a hit switches to a longer active
// window transcribed with the accurate strategy, whose text is posted to the
// notifier. A single goroutine (Run) consumes frames and calls the engine,
// so inference is never concurrent within a session.
type Session struct {
	ID string

	logger   *slog.Logger
	cfg      *config.Config
	engine   engine.Engine
	detector *wakeword.Detector
	gate     *vad.Gate // nil when disabled
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	source   Source

	// Consumer-goroutine state, touched only inside Run.
	acc       *audio.Accumulator
	deadline  *time.Timer
	deadlineC <-chan time.Time

	mu             sync.RWMutex
	state          State
	startTime      time.Time
	wakeDetections uint64
	transcripts    uint64
	lastWakeWord   string
	lastTranscript string
}

// Stats is a point-in-time snapshot for monitoring.
type Stats struct {
	ID             string        `json:"id"`
	State          string        `json:"state"`
	Uptime         time.Duration `json:"uptime"`
	WakeDetections uint64        `json:"wake_detections"`
	Transcripts    uint64        `json:"transcripts"`
	WindowsEmitted uint64        `json:"windows_emitted"`
	SamplesPushed  uint64        `json:"samples_pushed"`
	LastWakeWord   string        `json:"last_wake_word,omitempty"`
	LastTranscript string        `json:"last_transcript,omitempty"`
}

// New assembles a session from validated configuration. The source, engine,
// and notifier are owned by the caller; the session only drives them.
func New(logger *slog.Logger, cfg *config.Config, source Source, eng engine.Engine, notifier *notify.Notifier, m *metrics.Metrics) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	detector, err := wakeword.NewDetector(cfg.WakeWords)
	if err != nil {
		return nil, fmt.Errorf("failed to create wake word detector: %w", err)
	}

	var gate *vad.Gate
	if cfg.Listening.VADEnabled {
		gate, err = vad.NewGate(float32(cfg.Listening.VADThreshold))
		if err != nil {
			return nil, fmt.Errorf("failed to create energy gate: %w", err)
		}
	}

	return &Session{
		ID:       uuid.NewString(),
		logger:   logger,
		cfg:      cfg,
		engine:   eng,
		detector: detector,
		gate:     gate,
		notifier: notifier,
		metrics:  m,
		source:   source,
		state:    StateIdle,
	}, nil
}

// Run consumes frames until the context is canceled, the source closes, or a
// fatal error occurs. It is the session's single consumer goroutine.
func (s *Session) Run(ctx context.Context) error {
	channels, sampleRate := s.source.Format()

	normalizer, err := audio.NewNormalizer(sampleRate, config.TargetSampleRate)
	if err != nil {
		s.setState(StateStopped)
		return err
	}

	passiveTarget := config.WindowSamples(s.cfg.Listening.PassiveWindowMS, s.cfg.Listening.GuardSamples)
	s.acc, err = audio.NewAccumulator(passiveTarget)
	if err != nil {
		s.setState(StateStopped)
		return err
	}

	s.mu.Lock()
	s.state = StatePassive
	s.startTime = time.Now()
	s.mu.Unlock()

	s.logger.Info("listening session started",
		slog.String("session_id", s.ID),
		slog.Int("source_channels", channels),
		slog.Int("source_sample_rate", sampleRate),
		slog.Int("passive_window_samples", passiveTarget),
	)

	defer func() {
		if s.metrics != nil {
			s.metrics.SessionDuration.Observe(time.Since(s.startTime).Seconds())
		}
		s.stopDeadline()
	}()

	// A closed error channel disables its case; frames keep flowing.
	errsC := s.source.Errors()

	for {
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			s.logger.Info("listening session canceled", slog.String("session_id", s.ID))
			return ctx.Err()

		case err, ok := <-errsC:
			if !ok {
				errsC = nil
				continue
			}
			s.setState(StateStopped)
			s.logger.Error("capture device failed",
				slog.String("session_id", s.ID),
				slog.String("error", err.Error()),
			)
			return err

		case <-s.deadlineC:
			s.abandonActivePhase()

		case frame, ok := <-s.source.Frames():
			if !ok {
				s.setState(StateStopped)
				s.logger.Info("capture stream ended", slog.String("session_id", s.ID))
				return nil
			}

			if s.metrics != nil {
				s.metrics.FramesCaptured.Inc()
			}

			mono, err := normalizer.Normalize(frame)
			if err != nil {
				s.logger.Warn("skipping malformed frame",
					slog.String("session_id", s.ID),
					slog.String("error", err.Error()),
				)
				continue
			}

			if s.metrics != nil {
				s.metrics.SamplesIngested.Add(float64(len(mono)))
			}

			for _, window := range s.acc.Push(mono) {
				if err := s.handleWindow(ctx, window); err != nil {
					s.setState(StateStopped)
					return err
				}
			}
		}
	}
}

// handleWindow processes one complete window. A non-nil return is fatal to
// the session; per-window inference failures are logged and absorbed.
func (s *Session) handleWindow(ctx context.Context, window []float32) error {
	switch s.State() {
	case StatePassive:
		return s.handlePassiveWindow(ctx, window)
	case StateActive:
		return s.handleActiveWindow(ctx, window)
	default:
		return nil
	}
}

func (s *Session) handlePassiveWindow(ctx context.Context, window []float32) error {
	if s.gate != nil && !s.gate.Admit(window) {
		if s.metrics != nil {
			s.metrics.RecordWindow(true)
		}
		return nil
	}
	if s.metrics != nil {
		s.metrics.RecordWindow(false)
	}

	transcript, err := s.transcribe(ctx, window, engine.StrategyGreedy)
	if err != nil {
		if errors.Is(err, engine.ErrModelInvalid) {
			return err
		}
		s.logger.Warn("passive window inference failed",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	detection := s.detector.Detect(transcript)
	if detection == nil {
		return nil
	}

	s.enterActivePhase(detection, transcript)
	return nil
}

func (s *Session) handleActiveWindow(ctx context.Context, window []float32) error {
	if s.metrics != nil {
		s.metrics.RecordWindow(false)
	}

	transcript, err := s.transcribe(ctx, window, engine.StrategyBeam)
	if err != nil {
		if errors.Is(err, engine.ErrModelInvalid) {
			return err
		}
		s.logger.Warn("active window inference failed",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
		s.exitActivePhase()
		return nil
	}

	if dir := s.cfg.Audio.DebugDumpDir; dir != "" {
		if path, err := audio.DumpWAV(dir, window, config.TargetSampleRate); err != nil {
			s.logger.Warn("debug dump failed", slog.String("error", err.Error()))
		} else {
			s.logger.Debug("active window dumped", slog.String("path", path))
		}
	}

	s.mu.Lock()
	s.transcripts++
	s.lastTranscript = transcript
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ActivePhases.Inc()
	}

	s.logger.Info("transcription completed",
		slog.String("session_id", s.ID),
		slog.String("transcript", transcript),
	)

	if s.notifier != nil {
		s.notifier.Post(transcript)
	}

	s.exitActivePhase()
	return nil
}

// transcribe runs one inference call and records its outcome.
func (s *Session) transcribe(ctx context.Context, window []float32, strategy engine.Strategy) (string, error) {
	start := time.Now()
	transcript, err := s.engine.Transcribe(ctx, window, strategy)
	if s.metrics != nil {
		s.metrics.RecordInference(time.Since(start).Seconds(), err)
	}
	return transcript, err
}

// enterActivePhase switches to the active window size and arms the deadline.
// Samples already buffered carry over, so speech right after the wake word
// is not lost.
func (s *Session) enterActivePhase(detection *wakeword.Detection, transcript string) {
	activeTarget := config.WindowSamples(s.cfg.Listening.ActiveWindowMS, s.cfg.Listening.GuardSamples)
	if err := s.acc.SetTarget(activeTarget); err != nil {
		s.logger.Error("failed to retarget accumulator", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	s.state = StateActive
	s.wakeDetections++
	s.lastWakeWord = detection.Word
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.WakeWordsDetected.Inc()
	}

	s.deadline = time.NewTimer(s.cfg.Listening.ListenDuration())
	s.deadlineC = s.deadline.C

	s.logger.Info("wake word detected, entering active phase",
		slog.String("session_id", s.ID),
		slog.String("wake_word", detection.Word),
		slog.Int("offset", detection.Start),
		slog.String("transcript", transcript),
		slog.Duration("listen_duration", s.cfg.Listening.ListenDuration()),
	)
}

// exitActivePhase returns to passive listening, restoring the passive window
// size. Buffered samples carry over into the next passive window.
func (s *Session) exitActivePhase() {
	s.stopDeadline()

	passiveTarget := config.WindowSamples(s.cfg.Listening.PassiveWindowMS, s.cfg.Listening.GuardSamples)
	if err := s.acc.SetTarget(passiveTarget); err != nil {
		s.logger.Error("failed to retarget accumulator", slog.String("error", err.Error()))
	}

	s.setState(StatePassive)
}

// abandonActivePhase fires when the active deadline passes before a full
// window accumulated. The partial window is discarded; the deadline is
// authoritative.
func (s *Session) abandonActivePhase() {
	if s.State() != StateActive {
		return
	}

	pending := s.acc.Pending()
	s.acc.Reset()

	if s.metrics != nil {
		s.metrics.WindowsAbandoned.Inc()
	}

	s.logger.Info("active phase deadline expired, abandoning partial window",
		slog.String("session_id", s.ID),
		slog.Int("pending_samples", pending),
	)

	s.exitActivePhase()
}

func (s *Session) stopDeadline() {
	if s.deadline != nil {
		s.deadline.Stop()
		s.deadline = nil
		s.deadlineC = nil
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Stats returns a monitoring snapshot.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := time.Duration(0)
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime)
	}

	stats := Stats{
		ID:             s.ID,
		State:          s.state.String(),
		Uptime:         uptime,
		WakeDetections: s.wakeDetections,
		Transcripts:    s.transcripts,
		LastWakeWord:   s.lastWakeWord,
		LastTranscript: s.lastTranscript,
	}
	if s.acc != nil {
		stats.WindowsEmitted = s.acc.WindowsEmitted()
		stats.SamplesPushed = s.acc.SamplesPushed()
	}

	return stats
}

// Stop halts the source, which closes the frame channel and lets Run return.
func (s *Session) Stop() error {
	return s.source.Stop()
}
