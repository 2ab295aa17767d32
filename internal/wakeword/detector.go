package wakeword

import (
	"fmt"
	"strings"
	"sync"
)

// Detection locates a wake word inside a transcript. Offsets are byte
// indices into the lowercased transcript; End is exclusive.
type Detection struct {
	Word  string `json:"word"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Detector performs case-insensitive substring matching of a fixed wake-word
// list against transcripts. Words are tried in declaration order and the
// first match wins, so callers control priority by ordering the list.
type Detector struct {
	words []string // lowercased, declaration order preserved

	mu         sync.Mutex
	detections uint64
	scans      uint64
}

// NewDetector creates a detector for the given wake words. Empty and
// whitespace-only words are rejected.
func NewDetector(words []string) (*Detector, error) {
	if len(words) == 0 {
		return nil, fmt.Errorf("wake word list must not be empty")
	}

	lowered := make([]string, len(words))
	for i, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			return nil, fmt.Errorf("wake word %d is empty", i)
		}
		lowered[i] = w
	}

	return &Detector{words: lowered}, nil
}

// Detect scans the transcript for the first wake word, in declaration order.
// It returns nil when no word matches.
func (d *Detector) Detect(transcript string) *Detection {
	d.mu.Lock()
	d.scans++
	d.mu.Unlock()

	haystack := strings.ToLower(transcript)

	for _, w := range d.words {
		idx := strings.Index(haystack, w)
		if idx < 0 {
			continue
		}

		d.mu.Lock()
		d.detections++
		d.mu.Unlock()

		return &Detection{
			Word:  w,
			Start: idx,
			End:   idx + len(w),
		}
	}

	return nil
}

// Words returns the lowercased wake-word list in declaration order.
func (d *Detector) Words() []string {
	out := make([]string, len(d.words))
	copy(out, d.words)
	return out
}

// Stats returns the scan and detection counts.
func (d *Detector) Stats() (scans, detections uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scans, d.detections
}
