// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/lawpath/pkg/extensions"
)

// Gin context keys.
const (
	authInfoKey = "lawpath.auth"
	runIDKey    = "lawpath.run_id"
)

// AuthInfo returns the identity the auth middleware attached to c, or nil.
func AuthInfo(c *gin.Context) *extensions.AuthInfo {
	v, ok := c.Get(authInfoKey)
	if !ok {
		return nil
	}
	info, _ := v.(*extensions.AuthInfo)
	return info
}

// authenticate validates the bearer token, then records the request with
// the audit logger once the handler has run. Rejected tokens get 401 and an
// auth.failed event.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		token := extensions.BearerToken(c.GetHeader("Authorization"))

		info, err := s.opts.AuthProvider.Validate(ctx, token)
		if err != nil {
			s.audit(c, extensions.AuditEvent{
				EventType: extensions.EventAuthFailed,
				UserID:    "anonymous",
				Outcome:   extensions.OutcomeBlocked,
				Metadata:  map[string]any{"error": err.Error()},
			})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(authInfoKey, info)

		c.Next()

		status := c.Writer.Status()
		outcome := extensions.OutcomeSuccess
		if status >= http.StatusBadRequest {
			outcome = extensions.OutcomeFailure
		}
		s.audit(c, extensions.AuditEvent{
			EventType:  extensions.EventRequest,
			UserID:     info.UserID,
			ResourceID: c.GetString(runIDKey),
			Outcome:    outcome,
			Metadata:   map[string]any{"status": status},
		})
	}
}

// audit fills the request fields of event and logs it. Audit failures are
// logged and otherwise ignored.
func (s *Server) audit(c *gin.Context, event extensions.AuditEvent) {
	event.Action = c.Request.Method
	event.ResourceType = c.FullPath()
	if err := s.opts.AuditLogger.Log(c.Request.Context(), event); err != nil {
		s.logger.Warn("Audit log failed",
			slog.String("event_type", event.EventType),
			slog.String("error", err.Error()),
		)
	}
}
