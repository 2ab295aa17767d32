// Package audio handles microphone capture, format normalization, and exact
// sample accumulation. Raw interleaved frames from the capture callback are
// downmixed to mono, resampled to the engine rate, and split loss-free into
// fixed-size inference windows.
package audio
