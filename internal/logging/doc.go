// Package logging provides structured logging for granolad built on Zap.
//
// The Logger wraps zap.Logger with context-aware methods that attach
// correlation fields (run ID, meeting ID, request ID) carried in the
// context. Construction is driven by a Config that controls level,
// output format, caller annotation, and stacktrace capture.
package logging
