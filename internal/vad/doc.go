// Package vad provides an energy-based voice activity gate.
//
// The gate sits between window assembly and inference: each complete window
// has its RMS energy measured, smoothed across consecutive windows, and
// compared against a configurable threshold. Windows below the threshold are
// skipped without invoking the engine.
package vad
