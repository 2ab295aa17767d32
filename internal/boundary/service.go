package boundary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aryan-regmi/virgil/internal/audio"
	"github.com/aryan-regmi/virgil/internal/config"
	"github.com/aryan-regmi/virgil/internal/engine"
	"github.com/aryan-regmi/virgil/internal/metrics"
	"github.com/aryan-regmi/virgil/internal/notify"
	"github.com/aryan-regmi/virgil/internal/protocol"
	"github.com/aryan-regmi/virgil/internal/session"
	"github.com/aryan-regmi/virgil/internal/wakeword"
)

// EngineFactory loads an inference engine from a model path.
type EngineFactory func(modelPath string) (engine.Engine, error)

// SourceFactory opens a frame source for a listening session. The default
// opens the default microphone.
type SourceFactory func() (session.Source, error)

// Service owns the long-lived state behind the host boundary: the loaded
// engine, the configured wake words, the staged audio buffer, and the buffer
// arena. Hosts interact with it through encoded messages (HandleMessage is
// total and answers every malformed or failed request with an error response
// instead of panicking) and through Listen, which runs the wake-word-gated
// capture pipeline.
type Service struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	notifier *notify.Notifier
	arena    *Arena
	factory  EngineFactory

	// Sources may be replaced before the first Listen call; nil opens the
	// default microphone.
	Sources SourceFactory

	mu        sync.Mutex
	eng       engine.Engine
	modelPath string
	wakeWords []string
	samples   []float32
}

// NewService creates a boundary service. A nil factory defaults to the
// in-process whisper backend.
func NewService(logger *slog.Logger, m *metrics.Metrics, notifier *notify.Notifier, factory EngineFactory) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if factory == nil {
		factory = func(modelPath string) (engine.Engine, error) {
			return engine.NewWhisper(modelPath, "")
		}
	}

	return &Service{
		logger:   logger,
		metrics:  m,
		notifier: notifier,
		arena:    NewArena(),
		factory:  factory,
	}
}

// HandleMessage decodes one envelope, dispatches it, and returns an encoded
// response envelope. It never returns an invalid frame: decode failures,
// unknown types, and handler errors all become error responses.
func (s *Service) HandleMessage(data []byte) []byte {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		s.record("invalid", true)
		return errorResponse(fmt.Sprintf("malformed envelope: %v", err))
	}

	if !protocol.IsValidMessageType(env.Type) {
		s.record("invalid", true)
		return errorResponse(fmt.Sprintf("unknown message type 0x%02x", env.Type))
	}

	name := protocol.MessageTypeString(env.Type)

	var resp []byte
	switch env.Type {
	case protocol.MessageTypeLoadModel:
		resp = s.handleLoadModel(env.Payload)
	case protocol.MessageTypeUpdateAudioData:
		resp = s.handleUpdateAudioData(env.Payload)
	case protocol.MessageTypeDetectWakeWords:
		resp = s.handleDetectWakeWords(env.Payload)
	case protocol.MessageTypeTranscribe:
		resp = s.handleTranscribe(env.Payload)
	case protocol.MessageTypeDebug:
		resp = s.handleDebug(env.Payload)
	}

	s.record(name, isErrorResponse(resp))
	return resp
}

// handleLoadModel loads the model named by the context and remembers the
// context's wake words as the defaults for later detection and listening
// calls.
func (s *Service) handleLoadModel(payload []byte) []byte {
	ctx, err := protocol.DecodeContext(payload)
	if err != nil {
		return errorResponse(fmt.Sprintf("malformed context: %v", err))
	}

	eng, err := s.factory(ctx.ModelPath)
	if err != nil {
		return errorResponse(fmt.Sprintf("model load failed: %v", err))
	}

	s.mu.Lock()
	old := s.eng
	s.eng = eng
	s.modelPath = ctx.ModelPath
	s.wakeWords = append([]string(nil), ctx.WakeWords...)
	s.samples = nil
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			s.logger.Warn("failed to close previous engine", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("model loaded",
		slog.String("model_path", ctx.ModelPath),
		slog.Int("wake_words", len(ctx.WakeWords)),
	)

	return textResponse("ok")
}

func (s *Service) handleUpdateAudioData(payload []byte) []byte {
	samples, _, err := protocol.DecodeSamples(payload)
	if err != nil {
		return errorResponse(fmt.Sprintf("malformed samples: %v", err))
	}

	s.mu.Lock()
	s.samples = append(s.samples, samples...)
	buffered := len(s.samples)
	s.mu.Unlock()

	return textResponse(fmt.Sprintf("buffered %d samples", buffered))
}

// handleDetectWakeWords scans for wake words in the audio staged by
// UpdateAudioData: the staged samples are consumed, transcribed with the fast
// strategy, and the resulting transcript is searched. With no staged audio
// the context's transcript is searched instead. An empty payload uses the
// wake words remembered from LoadModel.
func (s *Service) handleDetectWakeWords(payload []byte) []byte {
	var words []string
	var transcript string

	if len(payload) > 0 {
		ctx, err := protocol.DecodeContext(payload)
		if err != nil {
			return errorResponse(fmt.Sprintf("malformed context: %v", err))
		}
		words = ctx.WakeWords
		transcript = ctx.Transcript
	}

	s.mu.Lock()
	if len(words) == 0 {
		words = s.wakeWords
	}
	eng := s.eng
	s.mu.Unlock()

	detector, err := wakeword.NewDetector(words)
	if err != nil {
		return errorResponse(fmt.Sprintf("invalid wake word list: %v", err))
	}

	// Consume the staged audio only once the request itself is valid.
	s.mu.Lock()
	staged := s.samples
	s.samples = nil
	s.mu.Unlock()

	if len(staged) > 0 {
		if eng == nil {
			return errorResponse("no model loaded")
		}
		transcript, err = eng.Transcribe(context.Background(), staged, engine.StrategyGreedy)
		if err != nil {
			return errorResponse(fmt.Sprintf("transcription failed: %v", err))
		}
	}

	det := &protocol.WakeWordDetection{}
	if hit := detector.Detect(transcript); hit != nil {
		det.Detected = true
		det.StartIdx = hit.Start
		det.EndIdx = hit.End
	}

	return protocol.EncodeEnvelope(protocol.ResponseTypeWakeWordDetection,
		protocol.EncodeWakeWordDetection(det))
}

// handleTranscribe consumes the staged audio and returns its transcript. The
// payload is empty; a non-empty payload must still be a valid context so a
// corrupted frame is rejected rather than ignored.
func (s *Service) handleTranscribe(payload []byte) []byte {
	if len(payload) > 0 {
		if _, err := protocol.DecodeContext(payload); err != nil {
			return errorResponse(fmt.Sprintf("malformed context: %v", err))
		}
	}

	s.mu.Lock()
	eng := s.eng
	modelPath := s.modelPath
	window := s.samples
	s.samples = nil
	s.mu.Unlock()

	if eng == nil {
		return errorResponse("no model loaded")
	}
	if len(window) == 0 {
		return errorResponse("no audio buffered")
	}

	transcript, err := eng.Transcribe(context.Background(), window, engine.StrategyBeam)
	if err != nil {
		return errorResponse(fmt.Sprintf("transcription failed: %v", err))
	}

	s.logger.Info("boundary transcription completed",
		slog.Int("samples", len(window)),
		slog.String("model_path", modelPath),
	)

	if s.notifier != nil {
		s.notifier.Post(transcript)
	}

	return textResponse(transcript)
}

func (s *Service) handleDebug(payload []byte) []byte {
	msg, _, err := protocol.DecodeString(payload)
	if err != nil {
		return errorResponse(fmt.Sprintf("malformed debug message: %v", err))
	}

	s.mu.Lock()
	buffered := len(s.samples)
	modelPath := s.modelPath
	loaded := s.eng != nil
	s.mu.Unlock()

	s.logger.Debug("debug message from host", slog.String("message", msg))

	return textResponse(fmt.Sprintf("model_loaded=%t model_path=%q buffered_samples=%d",
		loaded, modelPath, buffered))
}

// Listen runs one wake-word-gated listening session against the capture
// pipeline: microphone frames are normalized, accumulated, gated on the
// context's wake words (falling back to the words remembered from LoadModel),
// and the first active-phase transcript completes the call. It returns a copy
// of the request context with the transcript updated; the transcript is also
// pushed through the notifier. The call blocks until a transcript is
// produced, the source ends, or ctx is canceled. listenDuration bounds the
// active phase, matching the authoritative deadline semantics.
func (s *Service) Listen(ctx context.Context, reqCtx *protocol.Context, listenDuration time.Duration) (*protocol.Context, error) {
	s.mu.Lock()
	eng := s.eng
	words := reqCtx.WakeWords
	if len(words) == 0 {
		words = s.wakeWords
	}
	s.mu.Unlock()

	if eng == nil {
		return nil, fmt.Errorf("no model loaded")
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("no wake words configured")
	}

	cfg := config.Default()
	cfg.WakeWords = words
	if listenDuration > 0 {
		cfg.Listening.ListenDurationMS = int(listenDuration / time.Millisecond)
	}

	factory := s.Sources
	if factory == nil {
		factory = defaultSource
	}
	source, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to open capture source: %w", err)
	}
	defer closeSource(source)

	notifier := s.notifier
	if notifier == nil {
		notifier = notify.NewNotifier(s.logger)
		defer notifier.Close()
	}

	sess, err := session.New(s.logger, cfg, source, eng, notifier, s.metrics)
	if err != nil {
		return nil, err
	}

	transcripts := make(chan string, 1)
	subID := notifier.Register(func(t string) {
		select {
		case transcripts <- t:
		default:
		}
	})
	defer notifier.Unregister(subID)

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	var transcript string
	select {
	case transcript = <-transcripts:
		sess.Stop()
		<-runErr

	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return nil, err
		}
		// The stream ended; pick up a transcript that raced the closure.
		select {
		case transcript = <-transcripts:
		default:
		}

	case <-ctx.Done():
		sess.Stop()
		<-runErr
		return nil, ctx.Err()
	}

	out := *reqCtx
	out.Transcript = transcript
	return &out, nil
}

// defaultSource opens the default microphone with the stock audio settings.
func defaultSource() (session.Source, error) {
	cfg := config.Default()

	capture, err := audio.NewCapture(audio.CaptureConfig{
		DeviceName:      cfg.Audio.InputDevice,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		QueueSize:       cfg.Audio.FrameQueueSize,
	})
	if err != nil {
		return nil, err
	}
	if err := capture.Start(); err != nil {
		capture.Close()
		return nil, err
	}
	return capture, nil
}

// closeSource releases a source, terminating the audio host API when the
// source supports a full close.
func closeSource(src session.Source) {
	if closer, ok := src.(io.Closer); ok {
		closer.Close()
		return
	}
	src.Stop()
}

// TrackBuffer registers a host-owned buffer under the given key.
func (s *Service) TrackBuffer(key uint64, buf []byte) error {
	if err := s.arena.Adopt(key, buf); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.BuffersAllocated.Inc()
	}
	return nil
}

// FreeBuffer releases a host-owned buffer exactly once.
func (s *Service) FreeBuffer(key uint64) error {
	if err := s.arena.Free(key); err != nil {
		return err
	}
	if key != 0 && s.metrics != nil {
		s.metrics.BuffersFreed.Inc()
	}
	return nil
}

// LiveBuffers returns the number of buffers the host has not yet freed.
func (s *Service) LiveBuffers() int {
	return s.arena.Len()
}

// Close releases the engine.
func (s *Service) Close() error {
	s.mu.Lock()
	eng := s.eng
	s.eng = nil
	s.mu.Unlock()

	if eng != nil {
		return eng.Close()
	}
	return nil
}

func (s *Service) record(messageType string, isError bool) {
	if s.metrics != nil {
		s.metrics.RecordBoundaryRequest(messageType, isError)
	}
}

func textResponse(text string) []byte {
	return protocol.EncodeEnvelope(protocol.ResponseTypeText, protocol.EncodeString(text))
}

func errorResponse(msg string) []byte {
	return protocol.EncodeEnvelope(protocol.ResponseTypeError, protocol.EncodeString(msg))
}

func isErrorResponse(resp []byte) bool {
	return len(resp) > 0 && resp[0] == protocol.ResponseTypeError
}
