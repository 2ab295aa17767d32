package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// beamSize for the accurate decoding path. Greedy decoding ignores it.
const beamSize = 5

// Whisper runs whisper.cpp in-process. One context is created per call and
// the model is shared; a mutex serializes calls because the binding is not
// reentrant.
type Whisper struct {
	mu       sync.Mutex
	model    whisper.Model
	language string
	closed   bool
}

// NewWhisper loads a ggml model from disk. A missing or unreadable file
// yields a ModelLoadError before the binding is touched.
func NewWhisper(modelPath, language string) (*Whisper, error) {
	if modelPath == "" {
		return nil, &ModelLoadError{Path: modelPath, Err: fmt.Errorf("model path is empty")}
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, &ModelLoadError{Path: modelPath, Err: err}
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, &ModelLoadError{Path: modelPath, Err: err}
	}

	return &Whisper{
		model:    model,
		language: language,
	}, nil
}

// Transcribe decodes one window of mono 16 kHz samples. Short windows are
// padded with silence to the decoder's minimum length.
func (w *Whisper) Transcribe(ctx context.Context, samples []float32, strategy Strategy) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.model == nil {
		return "", ErrModelInvalid
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelInvalid, err)
	}

	wctx.SetTranslate(false)
	if w.language != "" {
		wctx.SetLanguage(w.language)
	}
	if strategy == StrategyBeam {
		wctx.SetBeamSize(beamSize)
	}

	if err := wctx.Process(padToMinLength(samples), nil, nil, nil); err != nil {
		return "", fmt.Errorf("inference failed: %w", err)
	}

	var result strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read segment: %w", err)
		}
		result.WriteString(segment.Text)
	}

	return strings.TrimSpace(result.String()), nil
}

// Close releases the model. Subsequent Transcribe calls return
// ErrModelInvalid.
func (w *Whisper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.model != nil {
		w.model.Close()
		w.model = nil
	}

	return nil
}
