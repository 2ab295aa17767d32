package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Protocol constants
const (
	// Message types (host -> native)
	MessageTypeLoadModel       = 0x01
	MessageTypeUpdateAudioData = 0x02
	MessageTypeDetectWakeWords = 0x03
	MessageTypeTranscribe      = 0x04
	MessageTypeDebug           = 0x05

	// Response types (native -> host)
	ResponseTypeText              = 0x01
	ResponseTypeWakeWordDetection = 0x02
	ResponseTypeError             = 0x03

	// Envelope structure sizes
	EnvelopeHeaderSize = 5 // 1 type byte + 4 length bytes

	// Fixed field widths
	lenSize    = 4 // u32 length prefix for strings and slices
	sampleSize = 4 // IEEE-754 float32 bits
)

// DecodeError indicates malformed boundary input. Decoding never reads past
// the supplied length; any shortfall or inconsistency produces this error
// with a diagnostic for the host.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "decode error: " + e.Reason
}

func decodeErrorf(format string, args ...any) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// Context is the cross-boundary session state. The host owns it between
// calls; the native side decodes it on entry and returns an updated copy.
type Context struct {
	ModelPath  string
	WakeWords  []string
	Transcript string
}

// WakeWordDetection is the result of a wake-word check over one window's
// transcript. StartIdx and EndIdx are byte offsets into the lowercased
// transcript and are only meaningful when Detected is true.
type WakeWordDetection struct {
	Detected bool
	StartIdx int
	EndIdx   int
}

// Envelope is a self-describing frame: one type byte, a u32 payload length,
// and the payload itself.
type Envelope struct {
	Type    uint8
	Payload []byte
}

// IsValidMessageType checks if the message type discriminant is known.
func IsValidMessageType(t uint8) bool {
	return t >= MessageTypeLoadModel && t <= MessageTypeDebug
}

// IsValidResponseType checks if the response type discriminant is known.
func IsValidResponseType(t uint8) bool {
	return t >= ResponseTypeText && t <= ResponseTypeError
}

// MessageTypeString converts a message type to a human-readable name.
func MessageTypeString(t uint8) string {
	switch t {
	case MessageTypeLoadModel:
		return "LoadModel"
	case MessageTypeUpdateAudioData:
		return "UpdateAudioData"
	case MessageTypeDetectWakeWords:
		return "DetectWakeWords"
	case MessageTypeTranscribe:
		return "Transcribe"
	case MessageTypeDebug:
		return "Debug"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", t)
	}
}

// EncodeEnvelope encodes a type discriminant plus payload into a frame sized
// exactly EnvelopeHeaderSize+len(payload).
func EncodeEnvelope(msgType uint8, payload []byte) []byte {
	buf := make([]byte, EnvelopeHeaderSize+len(payload))
	buf[0] = msgType
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[EnvelopeHeaderSize:], payload)
	return buf
}

// DecodeEnvelope parses a self-describing frame. The declared payload length
// must match the bytes actually present.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) < EnvelopeHeaderSize {
		return nil, decodeErrorf("envelope too short: expected at least %d bytes, got %d",
			EnvelopeHeaderSize, len(data))
	}

	payloadLen := binary.BigEndian.Uint32(data[1:5])
	if int(payloadLen) != len(data)-EnvelopeHeaderSize {
		return nil, decodeErrorf("envelope length mismatch: header says %d payload bytes, got %d",
			payloadLen, len(data)-EnvelopeHeaderSize)
	}

	payload := make([]byte, payloadLen)
	copy(payload, data[EnvelopeHeaderSize:])

	return &Envelope{Type: data[0], Payload: payload}, nil
}

// EncodeString encodes a length-prefixed UTF-8 string.
func EncodeString(s string) []byte {
	buf := make([]byte, lenSize+len(s))
	binary.BigEndian.PutUint32(buf[0:lenSize], uint32(len(s)))
	copy(buf[lenSize:], s)
	return buf
}

// DecodeString decodes a length-prefixed string from the start of data and
// returns the string plus the number of bytes consumed.
func DecodeString(data []byte) (string, int, error) {
	if len(data) < lenSize {
		return "", 0, decodeErrorf("string length prefix truncated: need %d bytes, have %d",
			lenSize, len(data))
	}

	strLen := int(binary.BigEndian.Uint32(data[0:lenSize]))
	if strLen < 0 || len(data)-lenSize < strLen {
		return "", 0, decodeErrorf("string body truncated: declared %d bytes, have %d",
			strLen, len(data)-lenSize)
	}

	return string(data[lenSize : lenSize+strLen]), lenSize + strLen, nil
}

// EncodeStringSlice encodes a count-prefixed sequence of strings, preserving
// order.
func EncodeStringSlice(items []string) []byte {
	size := lenSize
	for _, s := range items {
		size += lenSize + len(s)
	}

	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(items)))
	for _, s := range items {
		buf = append(buf, EncodeString(s)...)
	}
	return buf
}

// DecodeStringSlice decodes a count-prefixed string sequence and returns the
// items plus the number of bytes consumed.
func DecodeStringSlice(data []byte) ([]string, int, error) {
	if len(data) < lenSize {
		return nil, 0, decodeErrorf("string slice count truncated: need %d bytes, have %d",
			lenSize, len(data))
	}

	count := int(binary.BigEndian.Uint32(data[0:lenSize]))
	offset := lenSize

	// Each item carries at least its own length prefix, so a count beyond
	// the remaining bytes is malformed. Checking before allocating keeps a
	// hostile count from reserving gigabytes.
	if count < 0 || count > (len(data)-lenSize)/lenSize {
		return nil, 0, decodeErrorf("string slice count %d exceeds remaining %d bytes",
			count, len(data)-lenSize)
	}

	items := make([]string, 0, count)
	for i := 0; i < count; i++ {
		s, n, err := DecodeString(data[offset:])
		if err != nil {
			return nil, 0, decodeErrorf("string slice item %d of %d: %v", i, count, err)
		}
		items = append(items, s)
		offset += n
	}

	return items, offset, nil
}

// EncodeSamples encodes a count-prefixed float32 sample sequence using the
// IEEE-754 bit representation of each sample.
func EncodeSamples(samples []float32) []byte {
	buf := make([]byte, 0, lenSize+len(samples)*sampleSize)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(samples)))
	for _, s := range samples {
		buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(s))
	}
	return buf
}

// DecodeSamples decodes a count-prefixed float32 sample sequence.
func DecodeSamples(data []byte) ([]float32, int, error) {
	if len(data) < lenSize {
		return nil, 0, decodeErrorf("sample count truncated: need %d bytes, have %d",
			lenSize, len(data))
	}

	count := int(binary.BigEndian.Uint32(data[0:lenSize]))
	need := count * sampleSize
	if count < 0 || len(data)-lenSize < need {
		return nil, 0, decodeErrorf("sample body truncated: declared %d samples (%d bytes), have %d bytes",
			count, need, len(data)-lenSize)
	}

	samples := make([]float32, count)
	for i := 0; i < count; i++ {
		bits := binary.BigEndian.Uint32(data[lenSize+i*sampleSize:])
		samples[i] = math.Float32frombits(bits)
	}

	return samples, lenSize + need, nil
}

// EncodeContext encodes the cross-boundary session state.
// Layout: [model_path string][wake word count + words][transcript string].
func EncodeContext(ctx *Context) []byte {
	var buf []byte
	buf = append(buf, EncodeString(ctx.ModelPath)...)
	buf = append(buf, EncodeStringSlice(ctx.WakeWords)...)
	buf = append(buf, EncodeString(ctx.Transcript)...)
	return buf
}

// DecodeContext decodes the cross-boundary session state. Trailing bytes
// beyond the encoded fields are rejected so that a corrupted length prefix
// cannot silently truncate the context.
func DecodeContext(data []byte) (*Context, error) {
	modelPath, n, err := DecodeString(data)
	if err != nil {
		return nil, decodeErrorf("context model path: %v", err)
	}
	offset := n

	wakeWords, n, err := DecodeStringSlice(data[offset:])
	if err != nil {
		return nil, decodeErrorf("context wake words: %v", err)
	}
	offset += n

	transcript, n, err := DecodeString(data[offset:])
	if err != nil {
		return nil, decodeErrorf("context transcript: %v", err)
	}
	offset += n

	if offset != len(data) {
		return nil, decodeErrorf("context has %d trailing bytes", len(data)-offset)
	}

	return &Context{
		ModelPath:  modelPath,
		WakeWords:  wakeWords,
		Transcript: transcript,
	}, nil
}

// EncodeWakeWordDetection encodes a detection record.
// Layout: [detected:1][start_idx:4][end_idx:4], the index fields present only
// when detected is set.
func EncodeWakeWordDetection(det *WakeWordDetection) []byte {
	if !det.Detected {
		return []byte{0}
	}

	buf := make([]byte, 1, 1+2*lenSize)
	buf[0] = 1
	buf = binary.BigEndian.AppendUint32(buf, uint32(det.StartIdx))
	buf = binary.BigEndian.AppendUint32(buf, uint32(det.EndIdx))
	return buf
}

// DecodeWakeWordDetection decodes a detection record.
func DecodeWakeWordDetection(data []byte) (*WakeWordDetection, error) {
	if len(data) < 1 {
		return nil, decodeErrorf("wake word detection is empty")
	}

	switch data[0] {
	case 0:
		if len(data) != 1 {
			return nil, decodeErrorf("negative detection has %d trailing bytes", len(data)-1)
		}
		return &WakeWordDetection{Detected: false}, nil
	case 1:
		if len(data) != 1+2*lenSize {
			return nil, decodeErrorf("positive detection must be %d bytes, got %d",
				1+2*lenSize, len(data))
		}
		return &WakeWordDetection{
			Detected: true,
			StartIdx: int(binary.BigEndian.Uint32(data[1:5])),
			EndIdx:   int(binary.BigEndian.Uint32(data[5:9])),
		}, nil
	default:
		return nil, decodeErrorf("invalid detection flag: 0x%02x", data[0])
	}
}

// String returns a human-readable representation of the context.
func (c *Context) String() string {
	return fmt.Sprintf("Context{ModelPath:%q, WakeWords:%d, TranscriptLen:%d}",
		c.ModelPath, len(c.WakeWords), len(c.Transcript))
}

// String returns a human-readable representation of the detection record.
func (d *WakeWordDetection) String() string {
	if !d.Detected {
		return "WakeWordDetection{Detected:false}"
	}
	return fmt.Sprintf("WakeWordDetection{Detected:true, StartIdx:%d, EndIdx:%d}",
		d.StartIdx, d.EndIdx)
}
