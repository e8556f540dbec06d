package common

import (
	"context"
	"time"
)

// ContextKey represents a context key type
type ContextKey string

// Context keys
const (
	ContextKeyRequestID ContextKey = "request_id"
	ContextKeySessionID ContextKey = "session_id"
	ContextKeyStartTime ContextKey = "start_time"
)

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(ContextKeyRequestID).(string)
	return requestID, ok
}

// WithSessionID adds the draft session ID to context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// GetSessionID extracts the draft session ID from context
func GetSessionID(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(ContextKeySessionID).(string)
	return sessionID, ok
}

// WithStartTime adds start time to context
func WithStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyStartTime, startTime)
}

// GetStartTime extracts start time from context
func GetStartTime(ctx context.Context) (time.Time, bool) {
	startTime, ok := ctx.Value(ContextKeyStartTime).(time.Time)
	return startTime, ok
}

// GetElapsedTime calculates elapsed time from start time in context
func GetElapsedTime(ctx context.Context) time.Duration {
	if startTime, ok := GetStartTime(ctx); ok {
		return time.Since(startTime)
	}
	return 0
}

// ContextMetadata contains all context metadata
type ContextMetadata struct {
	RequestID string        `json:"request_id,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// ExtractMetadata extracts all metadata from context
func ExtractMetadata(ctx context.Context) ContextMetadata {
	meta := ContextMetadata{}
	if requestID, ok := GetRequestID(ctx); ok {
		meta.RequestID = requestID
	}
	if sessionID, ok := GetSessionID(ctx); ok {
		meta.SessionID = sessionID
	}
	meta.Duration = GetElapsedTime(ctx)
	return meta
}
