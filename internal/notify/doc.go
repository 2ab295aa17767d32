// Package notify fans completed transcripts out to host-registered
// subscribers.
//
// Delivery is asynchronous and bounded: each subscriber owns a small queue
// drained by its own goroutine, so a stalled callback drops messages for
// that subscriber only and never back-pressures the capture pipeline.
package notify
