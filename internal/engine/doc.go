// Package engine abstracts speech-to-text inference behind a small
// interface.
//
// Two backends are provided: Whisper runs whisper.cpp in-process against a
// local ggml model, and Remote posts WAV windows to an HTTP transcription
// service. Both accept mono 16 kHz float32 samples and pad short windows
// with silence to the decoder's minimum input length.
package engine
