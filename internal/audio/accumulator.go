package audio

import (
	"fmt"
	"sync/atomic"
)

// Accumulator buffers normalized mono samples and splits them into windows of
// exactly the target size. It owns its buffer exclusively; the caller must
// not retain slices passed to Push.
//
// Invariant: the concatenation of all emitted windows, in order, followed by
// the current remainder equals the concatenation of all pushed chunks. No
// sample is ever duplicated or dropped across a split.
type Accumulator struct {
	target int
	buf    []float32

	// Counters are atomic so monitoring snapshots can read them without
	// synchronizing with the consumer goroutine.
	windowsEmitted atomic.Uint64
	samplesPushed  atomic.Uint64
}

// NewAccumulator creates an accumulator emitting windows of target samples.
func NewAccumulator(target int) (*Accumulator, error) {
	if target < 1 {
		return nil, fmt.Errorf("window target must be positive, got %d", target)
	}

	return &Accumulator{
		target: target,
		buf:    make([]float32, 0, target),
	}, nil
}

// Push appends a chunk to the buffer and returns every complete window that
// became available, in order. A chunk larger than the target may yield
// several windows at once; the sub-target tail is retained for the next call.
func (a *Accumulator) Push(chunk []float32) [][]float32 {
	a.buf = append(a.buf, chunk...)
	a.samplesPushed.Add(uint64(len(chunk)))

	var windows [][]float32
	for len(a.buf) >= a.target {
		window := make([]float32, a.target)
		copy(window, a.buf[:a.target])
		windows = append(windows, window)

		remainder := len(a.buf) - a.target
		copy(a.buf, a.buf[a.target:])
		a.buf = a.buf[:remainder]

		a.windowsEmitted.Add(1)
	}

	return windows
}

// SetTarget changes the window size without disturbing buffered samples.
// Samples already accumulated count toward the new target; if the buffer
// already holds enough, the next Push (even of an empty chunk) emits them.
func (a *Accumulator) SetTarget(target int) error {
	if target < 1 {
		return fmt.Errorf("window target must be positive, got %d", target)
	}

	a.target = target
	return nil
}

// Target returns the current window size in samples.
func (a *Accumulator) Target() int {
	return a.target
}

// Pending returns the number of buffered samples awaiting a full window.
func (a *Accumulator) Pending() int {
	return len(a.buf)
}

// Remainder returns a copy of the buffered samples, in arrival order.
func (a *Accumulator) Remainder() []float32 {
	out := make([]float32, len(a.buf))
	copy(out, a.buf)
	return out
}

// Reset discards any buffered samples.
func (a *Accumulator) Reset() {
	a.buf = a.buf[:0]
}

// WindowsEmitted returns the total number of windows emitted so far.
func (a *Accumulator) WindowsEmitted() uint64 {
	return a.windowsEmitted.Load()
}

// SamplesPushed returns the total number of samples accepted so far.
func (a *Accumulator) SamplesPushed() uint64 {
	return a.samplesPushed.Load()
}
