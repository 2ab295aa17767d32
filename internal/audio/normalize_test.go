package audio

import (
	"math"
	"testing"
)

func TestDownmix(t *testing.T) {
	tests := []struct {
		name     string
		samples  []float32
		channels int
		want     []float32
	}{
		{
			name:     "mono passthrough",
			samples:  []float32{0.1, -0.2, 0.3},
			channels: 1,
			want:     []float32{0.1, -0.2, 0.3},
		},
		{
			name:     "stereo average",
			samples:  []float32{1.0, 0.0, 0.5, -0.5, -1.0, 1.0},
			channels: 2,
			want:     []float32{0.5, 0.0, 0.0},
		},
		{
			name:     "four channels",
			samples:  []float32{1, 1, 1, 1, 0, 0.4, 0.8, 0.8},
			channels: 4,
			want:     []float32{1, 0.5},
		},
		{
			name:     "trailing partial frame dropped",
			samples:  []float32{0.2, 0.4, 0.6},
			channels: 2,
			want:     []float32{0.3},
		},
		{
			name:     "empty input",
			samples:  nil,
			channels: 2,
			want:     []float32{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Downmix(tt.samples, tt.channels)
			if len(got) != len(tt.want) {
				t.Fatalf("Downmix returned %d samples, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Errorf("sample %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDownmixCopies(t *testing.T) {
	in := []float32{0.1, 0.2}
	out := Downmix(in, 1)
	out[0] = 5
	if in[0] != 0.1 {
		t.Error("mono downmix aliased the input slice")
	}
}

func TestNewNormalizer(t *testing.T) {
	tests := []struct {
		name       string
		srcRate    int
		targetRate int
		wantErr    bool
	}{
		{"equal rates", 16000, 16000, false},
		{"downsample", 48000, 16000, false},
		{"upsample", 8000, 16000, false},
		{"zero source rate", 0, 16000, true},
		{"negative target rate", 16000, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNormalizer(tt.srcRate, tt.targetRate)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewNormalizer(%d, %d) error = %v, wantErr %v",
					tt.srcRate, tt.targetRate, err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeEqualRateIdentity(t *testing.T) {
	n, err := NewNormalizer(16000, 16000)
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	frame := Frame{
		Samples:    []float32{0.25, -0.25, 0.5},
		Channels:   1,
		SampleRate: 16000,
	}

	got, err := n.Normalize(frame)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(got) != len(frame.Samples) {
		t.Fatalf("got %d samples, want %d", len(got), len(frame.Samples))
	}
	for i := range frame.Samples {
		if got[i] != frame.Samples[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], frame.Samples[i])
		}
	}
}

func TestNormalizeStereoDownmix(t *testing.T) {
	n, err := NewNormalizer(16000, 16000)
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	frame := Frame{
		Samples:    []float32{1.0, 0.0, -0.5, 0.5},
		Channels:   2,
		SampleRate: 16000,
	}

	got, err := n.Normalize(frame)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []float32{0.5, 0.0}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNormalizeRejectsBadFrames(t *testing.T) {
	n, err := NewNormalizer(48000, 16000)
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	tests := []struct {
		name  string
		frame Frame
	}{
		{"zero channels", Frame{Samples: []float32{0}, Channels: 0, SampleRate: 48000}},
		{"rate mismatch", Frame{Samples: []float32{0}, Channels: 1, SampleRate: 44100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := n.Normalize(tt.frame); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
