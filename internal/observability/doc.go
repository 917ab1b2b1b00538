// Package observability provides the daemon's line-oriented log sink, an
// slog handler that writes into it, and a JSON Lines event log recording
// task and directive transitions for external inspection.
package observability
