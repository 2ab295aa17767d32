package engine

import (
	"context"
	"errors"
	"fmt"
)

// Strategy selects the decoding strategy for a transcription call. Passive
// listening uses greedy decoding for speed; active capture uses beam search
// for accuracy.
type Strategy int

const (
	StrategyGreedy Strategy = iota
	StrategyBeam
)

// String returns a human-readable strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyGreedy:
		return "greedy"
	case StrategyBeam:
		return "beam"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ErrModelInvalid reports that the engine's model is unusable. Unlike a
// per-window inference failure it is fatal to the session.
var ErrModelInvalid = errors.New("model is invalid or unloaded")

// ModelLoadError wraps a failure to load a model from disk.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model %q: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// Engine transcribes mono 16 kHz audio. Implementations serialize their own
// internal state; callers may invoke Transcribe from one goroutine at a time
// per call but concurrent callers are safe.
type Engine interface {
	// Transcribe converts the window to text. A failure on one window does
	// not poison the engine unless the error is (or wraps) ErrModelInvalid.
	Transcribe(ctx context.Context, samples []float32, strategy Strategy) (string, error)

	// Close releases the model and any transport resources.
	Close() error
}

// minWindowSamples is one second at 16 kHz, the shortest input the decoder
// accepts reliably.
const minWindowSamples = 16000

// padToMinLength appends silence so the window meets the decoder's minimum
// input length. Windows already long enough are returned unchanged.
func padToMinLength(samples []float32) []float32 {
	if len(samples) >= minWindowSamples {
		return samples
	}

	padded := make([]float32, minWindowSamples)
	copy(padded, samples)
	return padded
}
