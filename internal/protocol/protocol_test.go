package protocol

import (
	"errors"
	"reflect"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		msgType uint8
		payload []byte
	}{
		{"load model", MessageTypeLoadModel, EncodeString("model.bin")},
		{"detect wake words", MessageTypeDetectWakeWords, nil},
		{"transcribe", MessageTypeTranscribe, []byte{}},
		{"debug", MessageTypeDebug, EncodeString("ping")},
		{"audio data", MessageTypeUpdateAudioData, EncodeSamples([]float32{0.5, -0.25, 0})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := EncodeEnvelope(tt.msgType, tt.payload)

			env, err := DecodeEnvelope(frame)
			if err != nil {
				t.Fatalf("DecodeEnvelope failed: %v", err)
			}

			if env.Type != tt.msgType {
				t.Errorf("Expected type 0x%02x, got 0x%02x", tt.msgType, env.Type)
			}

			if len(env.Payload) != len(tt.payload) {
				t.Errorf("Expected %d payload bytes, got %d", len(tt.payload), len(env.Payload))
			}
		})
	}
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"nil input", nil},
		{"empty input", []byte{}},
		{"truncated header", []byte{MessageTypeDebug, 0x00}},
		{"length larger than data", []byte{MessageTypeDebug, 0x00, 0x00, 0x00, 0x10}},
		{"length smaller than data", append(EncodeEnvelope(MessageTypeDebug, nil), 0xFF)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope(tt.data)
			if err == nil {
				t.Fatal("Expected decode error, got nil")
			}

			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("Expected *DecodeError, got %T: %v", err, err)
			}
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	tests := []string{"", "model.bin", "hey virgil", "ünïcödé wörds"}

	for _, want := range tests {
		data := EncodeString(want)

		got, n, err := DecodeString(data)
		if err != nil {
			t.Fatalf("DecodeString(%q) failed: %v", want, err)
		}
		if got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
		if n != len(data) {
			t.Errorf("Expected %d bytes consumed, got %d", len(data), n)
		}
	}
}

func TestDecodeStringTruncated(t *testing.T) {
	data := EncodeString("wake word")

	// Every strict prefix of a valid encoding must fail cleanly.
	for i := 0; i < len(data); i++ {
		if _, _, err := DecodeString(data[:i]); err == nil {
			t.Errorf("Expected error decoding %d-byte prefix of %d-byte encoding", i, len(data))
		}
	}
}

func TestStringSliceRoundTrip(t *testing.T) {
	tests := [][]string{
		{},
		{"Hey"},
		{"Wake", "Test", "hey virgil"},
	}

	for _, want := range tests {
		data := EncodeStringSlice(want)

		got, n, err := DecodeStringSlice(data)
		if err != nil {
			t.Fatalf("DecodeStringSlice(%v) failed: %v", want, err)
		}
		if len(got) != len(want) {
			t.Fatalf("Expected %d items, got %d", len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Item %d: expected %q, got %q", i, want[i], got[i])
			}
		}
		if n != len(data) {
			t.Errorf("Expected %d bytes consumed, got %d", len(data), n)
		}
	}
}

func TestStringSliceOrderPreserved(t *testing.T) {
	words := []string{"zulu", "alpha", "mike"}

	got, _, err := DecodeStringSlice(EncodeStringSlice(words))
	if err != nil {
		t.Fatalf("DecodeStringSlice failed: %v", err)
	}

	if !reflect.DeepEqual(got, words) {
		t.Errorf("Declaration order not preserved: expected %v, got %v", words, got)
	}
}

func TestDecodeStringSliceHostileCount(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"max u32 count, no items", []byte{0xFF, 0xFF, 0xFF, 0xFF}},
		{"huge count, one real item", append([]byte{0x7F, 0xFF, 0xFF, 0xFF}, EncodeString("hey")...)},
		{"count one past remaining bytes", []byte{0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00}},
	}

	// The count must be validated against the remaining bytes before any
	// allocation happens, so a four-byte frame cannot reserve gigabytes.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeStringSlice(tt.data)
			if err == nil {
				t.Fatal("Expected decode error, got nil")
			}

			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("Expected *DecodeError, got %T: %v", err, err)
			}
		})
	}
}

func TestSamplesRoundTrip(t *testing.T) {
	want := []float32{0, 1, -1, 0.5, -0.999, 3.14159e-5}

	got, n, err := DecodeSamples(EncodeSamples(want))
	if err != nil {
		t.Fatalf("DecodeSamples failed: %v", err)
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if n != lenSize+len(want)*sampleSize {
		t.Errorf("Expected %d bytes consumed, got %d", lenSize+len(want)*sampleSize, n)
	}
}

func TestDecodeSamplesTruncated(t *testing.T) {
	data := EncodeSamples([]float32{0.1, 0.2, 0.3})

	for i := 0; i < len(data); i++ {
		if _, _, err := DecodeSamples(data[:i]); err == nil {
			t.Errorf("Expected error decoding %d-byte prefix of %d-byte encoding", i, len(data))
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
	}{
		{"empty transcript", Context{ModelPath: "model.bin", WakeWords: []string{"Hey"}, Transcript: ""}},
		{"no wake words", Context{ModelPath: "/models/ggml-small.bin", WakeWords: []string{}, Transcript: "hello"}},
		{"full", Context{ModelPath: "m.bin", WakeWords: []string{"Wake", "Test"}, Transcript: "hey there"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeContext(EncodeContext(&tt.ctx))
			if err != nil {
				t.Fatalf("DecodeContext failed: %v", err)
			}

			if got.ModelPath != tt.ctx.ModelPath {
				t.Errorf("Expected model path %q, got %q", tt.ctx.ModelPath, got.ModelPath)
			}
			if !reflect.DeepEqual(got.WakeWords, tt.ctx.WakeWords) {
				t.Errorf("Expected wake words %v, got %v", tt.ctx.WakeWords, got.WakeWords)
			}
			if got.Transcript != tt.ctx.Transcript {
				t.Errorf("Expected transcript %q, got %q", tt.ctx.Transcript, got.Transcript)
			}
		})
	}
}

func TestDecodeContextMalformed(t *testing.T) {
	valid := EncodeContext(&Context{
		ModelPath:  "model.bin",
		WakeWords:  []string{"hey"},
		Transcript: "text",
	})

	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"truncated", valid[:len(valid)-3]},
		{"trailing garbage", append(append([]byte{}, valid...), 0xDE, 0xAD)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeContext(tt.data)
			if err == nil {
				t.Fatal("Expected decode error, got nil")
			}

			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("Expected *DecodeError, got %T: %v", err, err)
			}
		})
	}
}

func TestWakeWordDetectionRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		det  WakeWordDetection
	}{
		{"not detected", WakeWordDetection{Detected: false}},
		{"detected at start", WakeWordDetection{Detected: true, StartIdx: 0, EndIdx: 4}},
		{"detected mid transcript", WakeWordDetection{Detected: true, StartIdx: 6, EndIdx: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeWakeWordDetection(EncodeWakeWordDetection(&tt.det))
			if err != nil {
				t.Fatalf("DecodeWakeWordDetection failed: %v", err)
			}

			if got.Detected != tt.det.Detected {
				t.Errorf("Expected detected=%v, got %v", tt.det.Detected, got.Detected)
			}
			if got.Detected && (got.StartIdx != tt.det.StartIdx || got.EndIdx != tt.det.EndIdx) {
				t.Errorf("Expected indices [%d,%d), got [%d,%d)",
					tt.det.StartIdx, tt.det.EndIdx, got.StartIdx, got.EndIdx)
			}
		})
	}
}

func TestDecodeWakeWordDetectionMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"bad flag", []byte{0x02}},
		{"positive but truncated", []byte{0x01, 0x00, 0x00}},
		{"negative with trailing bytes", []byte{0x00, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeWakeWordDetection(tt.data); err == nil {
				t.Fatal("Expected decode error, got nil")
			}
		})
	}
}

func TestMessageTypeValidation(t *testing.T) {
	for _, mt := range []uint8{
		MessageTypeLoadModel, MessageTypeUpdateAudioData,
		MessageTypeDetectWakeWords, MessageTypeTranscribe, MessageTypeDebug,
	} {
		if !IsValidMessageType(mt) {
			t.Errorf("Expected 0x%02x to be a valid message type", mt)
		}
	}

	for _, mt := range []uint8{0x00, 0x06, 0xFF} {
		if IsValidMessageType(mt) {
			t.Errorf("Expected 0x%02x to be invalid", mt)
		}
	}
}
