// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Audit event types recorded by the API.
const (
	EventRequest    = "api.request"
	EventAuthFailed = "auth.failed"
)

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeBlocked = "blocked"
)

// AuditEvent describes one security-relevant action.
//
// Example:
//
//	event := AuditEvent{
//	    EventType:    EventRequest,
//	    UserID:       info.UserID,
//	    Action:       "POST",
//	    ResourceType: "/v1/match",
//	    Outcome:      OutcomeSuccess,
//	    Metadata:     map[string]any{"status": 200},
//	}
type AuditEvent struct {
	// EventType categorizes the event, "category.action".
	EventType string

	// Timestamp is when the event occurred, in UTC. Loggers set it when zero.
	Timestamp time.Time

	// UserID identifies who acted. "anonymous" when the token was rejected.
	UserID string

	// Action is the attempted operation, the HTTP method for API requests.
	Action string

	// ResourceType is the route template the request hit.
	ResourceType string

	// ResourceID is the run ID the response carried, when there was one.
	ResourceID string

	// Outcome is one of OutcomeSuccess, OutcomeFailure or OutcomeBlocked.
	Outcome string

	// Metadata holds event-specific detail such as "status" or "error".
	Metadata map[string]any
}

// AuditLogger records audit events.
//
// Implementations must be safe for concurrent use and should return
// quickly; the API logs from the request goroutine.
type AuditLogger interface {
	// Log records event. A logging failure never fails the request.
	Log(ctx context.Context, event AuditEvent) error

	// Flush persists anything buffered. Call before shutdown.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards every event.
type NopAuditLogger struct{}

// Log discards the event.
func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error { return nil }

// Flush is a no-op.
func (l *NopAuditLogger) Flush(ctx context.Context) error { return nil }

var _ AuditLogger = (*NopAuditLogger)(nil)

// SlogAuditLogger writes events as structured log records at Info level,
// or Warn for blocked and failed outcomes.
type SlogAuditLogger struct {
	logger *slog.Logger
}

// NewSlogAuditLogger returns an audit logger writing to logger.
// A nil logger falls back to slog.Default().
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{logger: logger.With(slog.String("component", "audit"))}
}

// Log writes event.
func (l *SlogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	level := slog.LevelInfo
	if event.Outcome != OutcomeSuccess {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("event_type", event.EventType),
		slog.Time("timestamp", event.Timestamp),
		slog.String("user_id", event.UserID),
		slog.String("action", event.Action),
		slog.String("resource_type", event.ResourceType),
		slog.String("outcome", event.Outcome),
	}
	if event.ResourceID != "" {
		attrs = append(attrs, slog.String("resource_id", event.ResourceID))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.LogAttrs(ctx, level, "Audit", attrs...)
	return nil
}

// Flush is a no-op; slog handlers write synchronously.
func (l *SlogAuditLogger) Flush(ctx context.Context) error { return nil }

var _ AuditLogger = (*SlogAuditLogger)(nil)

// MemoryAuditLogger keeps events in memory, newest last. It backs tests
// and short-lived embedded servers.
type MemoryAuditLogger struct {
	mu     sync.Mutex
	events []AuditEvent
}

// Log appends event.
func (l *MemoryAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
	return nil
}

// Flush is a no-op.
func (l *MemoryAuditLogger) Flush(ctx context.Context) error { return nil }

// Events returns a copy of the recorded events.
func (l *MemoryAuditLogger) Events() []AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuditEvent(nil), l.events...)
}

var _ AuditLogger = (*MemoryAuditLogger)(nil)
