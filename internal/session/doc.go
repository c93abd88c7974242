// Package session holds the in-memory conversation state for the honeypot.
//
// # Locking discipline
//
// A message turn takes the per-session mutex via Store.Lock before touching
// state, holds it across the model round trip, and releases it after the
// final mutation. The store's own lock only guards the maps and is never
// held while a turn is in flight, so distinct sessions proceed in parallel.
//
// Readers outside a turn (ops handlers, the report sweeper) go through
// Snapshot, which deep-copies under the same per-session mutex.
//
// # Status machine
//
// Sessions move strictly forward:
//
//	ACTIVE -> COMPLETE -> REPORTED
//
// MarkComplete and MarkReported enforce the order and return sentinel
// errors on illegal moves without mutating anything. REPORTED is terminal:
// a reported session accepts no further turns.
package session
