// Package quill is the streaming client core for the Quill document
// application. It consumes incremental generation responses delivered as
// typed frames over a long-lived HTTP connection and maintains a
// resilient live-update channel for out-of-band change notifications.
//
// The root package holds the domain types: frames, the accumulated
// stream state, and the reduction that folds one into the other.
// Transport lives in subpackages: sse decodes the wire protocol,
// session owns one cancellable generation stream at a time, live keeps
// the auto-reconnecting websocket, and dispatch fans notifications out
// to subscribers.
package quill
