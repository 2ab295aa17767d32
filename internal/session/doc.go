// Package session orchestrates the listening loop.
//
// A session wires a frame source, the normalizer, the window accumulator,
// the energy gate, the wake-word detector, and the inference engine into a
// two-phase state machine: short passive windows are scanned for wake words,
// and a hit switches to one longer active window whose transcript is posted
// to subscribers. All inference runs on the session's single consumer
// goroutine.
package session
