package logging

import (
	"context"

	"go.uber.org/zap"
)

// Context key types
type runCtxKey struct{}
type meetingCtxKey struct{}
type requestCtxKey struct{}

// WithRunID returns a context carrying a processing-run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunIDFromContext returns the run ID or "" if absent.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithMeetingID returns a context carrying the meeting being processed.
func WithMeetingID(ctx context.Context, meetingID string) context.Context {
	return context.WithValue(ctx, meetingCtxKey{}, meetingID)
}

// MeetingIDFromContext returns the meeting ID or "" if absent.
func MeetingIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(meetingCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID returns a context carrying an HTTP request identifier.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request ID or "" if absent.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 3)

	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}
	if meetingID := MeetingIDFromContext(ctx); meetingID != "" {
		fields = append(fields, zap.String("meeting.id", meetingID))
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}
