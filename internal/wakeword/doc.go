// Package wakeword matches a configured word list against transcripts.
//
// Matching is a case-insensitive substring search. The word list order is
// significant: words are tried first to last and the first hit wins, which
// keeps results deterministic when several words appear in one transcript.
package wakeword
