package vad

import (
	"fmt"
	"math"
	"sync"
)

// Gate decides whether a window of normalized mono samples carries enough
// energy to be worth transcribing. Silent windows are gated out so the
// inference engine never runs on dead air.
type Gate struct {
	threshold float32
	smoothing float32

	mu            sync.RWMutex
	lastEnergy    float32
	totalWindows  uint64
	activeWindows uint64
}

// GateStats is a snapshot of gate activity.
type GateStats struct {
	TotalWindows     uint64  `json:"total_windows"`
	ActiveWindows    uint64  `json:"active_windows"`
	ActivePercentage float64 `json:"active_percentage"`
	Threshold        float32 `json:"threshold"`
}

// NewGate creates a gate with the given RMS energy threshold. A threshold of
// zero admits everything.
func NewGate(threshold float32) (*Gate, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	return &Gate{
		threshold: threshold,
		smoothing: 0.3,
	}, nil
}

// Admit reports whether the window carries voice-level energy. The smoothed
// RMS across consecutive windows damps single-window transients.
func (g *Gate) Admit(samples []float32) bool {
	energy := RMS(samples)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.totalWindows > 0 {
		energy = g.smoothing*energy + (1-g.smoothing)*g.lastEnergy
	}
	g.lastEnergy = energy

	admitted := energy >= g.threshold

	g.totalWindows++
	if admitted {
		g.activeWindows++
	}

	return admitted
}

// RMS returns the root-mean-square energy of the samples, in the same [0, 1]
// scale as the normalized input.
func RMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return float32(math.Sqrt(sum / float64(len(samples))))
}

// SetThreshold updates the energy threshold.
func (g *Gate) SetThreshold(threshold float32) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.threshold = threshold
	return nil
}

// Threshold returns the current energy threshold.
func (g *Gate) Threshold() float32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.threshold
}

// Stats returns a snapshot of gate activity.
func (g *Gate) Stats() GateStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	pct := float64(0)
	if g.totalWindows > 0 {
		pct = float64(g.activeWindows) / float64(g.totalWindows) * 100
	}

	return GateStats{
		TotalWindows:     g.totalWindows,
		ActiveWindows:    g.activeWindows,
		ActivePercentage: pct,
		Threshold:        g.threshold,
	}
}

// Reset clears the smoothing state and statistics.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastEnergy = 0
	g.totalWindows = 0
	g.activeWindows = 0
}
