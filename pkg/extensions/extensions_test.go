// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// ============================================================================
// ServiceOptions Tests
// ============================================================================

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if _, ok := opts.AuthProvider.(*NopAuthProvider); !ok {
		t.Error("DefaultOptions().AuthProvider should be *NopAuthProvider")
	}
	if _, ok := opts.AuditLogger.(*NopAuditLogger); !ok {
		t.Error("DefaultOptions().AuditLogger should be *NopAuditLogger")
	}
}

func TestServiceOptions_FluentChaining(t *testing.T) {
	auth := NewTokenAuthProvider(map[string]string{"secret": "alice"})
	audit := &MemoryAuditLogger{}

	opts := DefaultOptions().WithAuth(auth).WithAudit(audit)

	if opts.AuthProvider != auth {
		t.Error("WithAuth should set AuthProvider")
	}
	if opts.AuditLogger != audit {
		t.Error("WithAudit should set AuditLogger")
	}
}

func TestServiceOptions_WithDefaults(t *testing.T) {
	opts := ServiceOptions{}.WithDefaults()
	if opts.AuthProvider == nil || opts.AuditLogger == nil {
		t.Fatal("WithDefaults should fill nil fields")
	}

	audit := &MemoryAuditLogger{}
	opts = ServiceOptions{AuditLogger: audit}.WithDefaults()
	if opts.AuditLogger != audit {
		t.Error("WithDefaults should keep fields already set")
	}
}

// ============================================================================
// Auth Tests
// ============================================================================

func TestAuthInfo_HasRole(t *testing.T) {
	info := &AuthInfo{UserID: "u", Roles: []string{"analyst", "viewer"}}

	tests := []struct {
		role string
		want bool
	}{
		{"analyst", true},
		{"viewer", true},
		{"admin", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := info.HasRole(tt.role); got != tt.want {
			t.Errorf("HasRole(%q) = %v, want %v", tt.role, got, tt.want)
		}
	}

	var nilInfo *AuthInfo
	if nilInfo.HasRole("admin") {
		t.Error("nil AuthInfo should hold no roles")
	}
}

func TestNopAuthProvider_Validate(t *testing.T) {
	p := &NopAuthProvider{}
	for _, token := range []string{"", "anything"} {
		info, err := p.Validate(context.Background(), token)
		if err != nil {
			t.Fatalf("Validate(%q) error = %v", token, err)
		}
		if info.UserID != LocalUserID {
			t.Errorf("UserID = %q, want %q", info.UserID, LocalUserID)
		}
		if !info.HasRole("admin") {
			t.Error("local user should be admin")
		}
	}
}

func TestTokenAuthProvider_Validate(t *testing.T) {
	p := NewTokenAuthProvider(map[string]string{
		"s3cret": "alice",
		"other":  "",
		"":       "ignored",
	})
	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}

	info, err := p.Validate(context.Background(), "s3cret")
	if err != nil {
		t.Fatalf("Validate(valid) error = %v", err)
	}
	if info.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", info.UserID)
	}

	info, err = p.Validate(context.Background(), "other")
	if err != nil {
		t.Fatalf("Validate(unnamed) error = %v", err)
	}
	if !strings.HasPrefix(info.UserID, "token-") || len(info.UserID) != len("token-")+8 {
		t.Errorf("unnamed token UserID = %q", info.UserID)
	}

	for _, bad := range []string{"", "s3cre", "S3CRET"} {
		if _, err := p.Validate(context.Background(), bad); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("Validate(%q) error = %v, want ErrUnauthorized", bad, err)
		}
	}
}

func TestParseTokenList(t *testing.T) {
	got := ParseTokenList(" alice:tok1 , tok2,, bob : tok3 ,carol:")
	want := map[string]string{"tok1": "alice", "tok2": "", "tok3": "bob"}
	if len(got) != len(want) {
		t.Fatalf("ParseTokenList() = %v, want %v", got, want)
	}
	for token, user := range want {
		if got[token] != user {
			t.Errorf("token %q user = %q, want %q", token, got[token], user)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := BearerToken(tt.header); got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

// ============================================================================
// Audit Tests
// ============================================================================

func TestNopAuditLogger(t *testing.T) {
	l := &NopAuditLogger{}
	if err := l.Log(context.Background(), AuditEvent{}); err != nil {
		t.Errorf("Log() error = %v", err)
	}
	if err := l.Flush(context.Background()); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
}

func TestSlogAuditLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogAuditLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	err := l.Log(context.Background(), AuditEvent{
		EventType:    EventAuthFailed,
		UserID:       "anonymous",
		Action:       "POST",
		ResourceType: "/v1/match",
		Outcome:      OutcomeBlocked,
		Metadata:     map[string]any{"status": 401},
	})
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"level=WARN", "component=audit", "event_type=auth.failed", "outcome=blocked", "status=401"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestMemoryAuditLogger_ConcurrentSafety(t *testing.T) {
	l := &MemoryAuditLogger{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Log(context.Background(), AuditEvent{EventType: EventRequest})
		}()
	}
	wg.Wait()

	events := l.Events()
	if len(events) != 50 {
		t.Fatalf("len(Events()) = %d, want 50", len(events))
	}
	if events[0].Timestamp.IsZero() {
		t.Error("Log should stamp events")
	}
}
