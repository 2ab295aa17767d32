package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Frame is one capture callback's worth of raw interleaved samples, tagged
// with its source format. Ownership transfers to the consumer on send; the
// capture side never retains it after the callback returns.
type Frame struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// Normalizer converts raw frames to mono samples at the engine rate.
// Downmixing averages the channels of each interleaved frame and drops an
// incomplete trailing interleaved frame (stream truncation); that policy is
// per-frame and deterministic. Rate conversion uses a windowed-sinc resampler
// chosen for quality over latency, since the output feeds inference rather
// than playback; the resampler carries filter state across frames, so one
// Normalizer serves exactly one stream.
type Normalizer struct {
	srcRate    int
	targetRate int
	resampler  resampling.Resampler
}

// NewNormalizer creates a normalizer from the source rate to the target rate.
// Equal rates pass samples through untouched.
func NewNormalizer(srcRate, targetRate int) (*Normalizer, error) {
	if srcRate < 1 || targetRate < 1 {
		return nil, fmt.Errorf("sample rates must be positive, got src=%d target=%d", srcRate, targetRate)
	}

	n := &Normalizer{
		srcRate:    srcRate,
		targetRate: targetRate,
	}

	if srcRate != targetRate {
		rs, err := resampling.New(&resampling.Config{
			InputRate:  float64(srcRate),
			OutputRate: float64(targetRate),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create resampler (%d -> %d Hz): %w", srcRate, targetRate, err)
		}
		n.resampler = rs
	}

	return n, nil
}

// Normalize converts one frame to mono samples at the target rate.
func (n *Normalizer) Normalize(frame Frame) ([]float32, error) {
	if frame.Channels < 1 {
		return nil, fmt.Errorf("frame channel count must be positive, got %d", frame.Channels)
	}
	if frame.SampleRate != n.srcRate {
		return nil, fmt.Errorf("frame sample rate %d does not match normalizer source rate %d",
			frame.SampleRate, n.srcRate)
	}

	mono := Downmix(frame.Samples, frame.Channels)
	if n.resampler == nil {
		return mono, nil
	}

	input := make([]float64, len(mono))
	for i, s := range mono {
		input[i] = float64(s)
	}

	output, err := n.resampler.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	out := make([]float32, len(output))
	for i, s := range output {
		out[i] = float32(s)
	}

	return out, nil
}

// Downmix averages the channels of each interleaved frame into one mono
// sample. Mono input is copied through unchanged. A trailing group of fewer
// than channels samples is dropped.
func Downmix(samples []float32, channels int) []float32 {
	if channels == 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}

	return out
}
