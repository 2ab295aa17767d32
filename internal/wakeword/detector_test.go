package wakeword

import (
	"testing"
)

func TestNewDetector(t *testing.T) {
	tests := []struct {
		name    string
		words   []string
		wantErr bool
	}{
		{"single word", []string{"jarvis"}, false},
		{"multiple words", []string{"hey", "computer"}, false},
		{"empty list", nil, true},
		{"blank word", []string{"hey", "  "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDetector(tt.words)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewDetector(%v) error = %v, wantErr %v", tt.words, err, tt.wantErr)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name       string
		words      []string
		transcript string
		want       *Detection
	}{
		{
			name:       "case-insensitive match with offsets",
			words:      []string{"Wake", "Test"},
			transcript: "hello wake word test",
			want:       &Detection{Word: "wake", Start: 6, End: 10},
		},
		{
			name:       "no match",
			words:      []string{"jarvis"},
			transcript: "just chatting about the weather",
			want:       nil,
		},
		{
			name:       "declaration order beats transcript order",
			words:      []string{"test", "wake"},
			transcript: "hello wake word test",
			want:       &Detection{Word: "test", Start: 16, End: 20},
		},
		{
			name:       "mixed-case transcript",
			words:      []string{"computer"},
			transcript: "Hey COMPUTER, lights on",
			want:       &Detection{Word: "computer", Start: 4, End: 12},
		},
		{
			name:       "substring of a longer word still matches",
			words:      []string{"wake"},
			transcript: "he awakened early",
			want:       &Detection{Word: "wake", Start: 4, End: 8},
		},
		{
			name:       "empty transcript",
			words:      []string{"wake"},
			transcript: "",
			want:       nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDetector(tt.words)
			if err != nil {
				t.Fatalf("NewDetector: %v", err)
			}

			got := d.Detect(tt.transcript)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("Detect() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("Detect() = nil, want %+v", tt.want)
			}
			if *got != *tt.want {
				t.Errorf("Detect() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDetectorWordsAreLowercasedCopies(t *testing.T) {
	d, err := NewDetector([]string{"  Jarvis ", "COMPUTER"})
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}

	words := d.Words()
	if words[0] != "jarvis" || words[1] != "computer" {
		t.Errorf("Words() = %v, want [jarvis computer]", words)
	}

	words[0] = "mutated"
	if d.Words()[0] != "jarvis" {
		t.Error("Words() returned an aliased slice")
	}
}

func TestDetectorStats(t *testing.T) {
	d, err := NewDetector([]string{"wake"})
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}

	d.Detect("nothing here")
	d.Detect("wake up")

	scans, detections := d.Stats()
	if scans != 2 {
		t.Errorf("scans = %d, want 2", scans)
	}
	if detections != 1 {
		t.Errorf("detections = %d, want 1", detections)
	}
}
