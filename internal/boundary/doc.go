// Package boundary implements the host-facing message surface.
//
// A Service holds the state a host manipulates through encoded envelopes:
// the loaded model, its wake words, the staged audio buffer, and the arena
// of buffers whose ownership crossed to the host. HandleMessage is total;
// any malformed input or failed operation is answered with an error response
// so the boundary never propagates a panic to a foreign caller. Listen runs
// the full wake-word-gated capture pipeline on behalf of a host and blocks
// until it has a transcript for the updated context.
package boundary
