// Package engine orchestrates honeypot conversations.
//
// # Turn lifecycle
//
// One inbound message runs as a single critical section under its session
// lock:
//
//  1. Lock the session, get or create its state (seeding any
//     platform-provided history on first contact).
//  2. Reject the turn if the session is already REPORTED.
//  3. Record the inbound message and scan it for entities.
//  4. Compose the prompt from the full history and call the model.
//  5. On model failure, append a stall line and answer normally; the
//     status does not change and the persona does not break.
//  6. On success, record the reply, scan it, merge the model's own
//     intelligence hints, and capture its behavioural notes.
//  7. If the model declared the conversation over, mark the session
//     COMPLETE and try to dispatch the final report. Delivery marks it
//     REPORTED; failure leaves it COMPLETE for the sweeper.
//
// Report dispatch runs on a context detached from the inbound request, so
// a platform that hangs up early cannot abort a report mid-flight.
//
// # Sweeper
//
// RunSweeper retries delivery for COMPLETE sessions on an interval. The
// cooldown gate spaces attempts per session; each retry re-checks status
// under the session lock, so a report can never be sent twice.
package engine
