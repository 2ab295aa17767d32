// Package protocol implements the binary boundary codec shared with the host.
// Every message and response is framed as a type discriminant plus a
// length-prefixed payload, encoded with fixed-width big-endian integers so
// that encode/decode round-trips exactly on both sides of the boundary.
package protocol
