// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the hooks a lawpath deployment can plug into
// the HTTP API.
//
// A local install needs none of them: DefaultOptions accepts every caller
// as "local-user" and discards audit events. A shared deployment swaps in
// a TokenAuthProvider and an audit sink:
//
//	opts := extensions.DefaultOptions().
//	    WithAuth(extensions.NewTokenAuthProvider(tokens)).
//	    WithAudit(extensions.NewSlogAuditLogger(logger))
//	srv, err := api.NewServer(p, laws, logger, opts)
//
// # Thread Safety
//
// All implementations must be safe for concurrent use. The API calls them
// from every request goroutine.
package extensions

// ServiceOptions groups the extension points a service accepts.
//
// Nil fields are replaced with no-op defaults by WithDefaults.
type ServiceOptions struct {
	// AuthProvider validates bearer tokens.
	// Default: NopAuthProvider (every caller is the local user)
	AuthProvider AuthProvider

	// AuditLogger records API requests and rejected tokens.
	// Default: NopAuditLogger (discards all events)
	AuditLogger AuditLogger
}

// DefaultOptions returns ServiceOptions with no-op defaults.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider: &NopAuthProvider{},
		AuditLogger:  &NopAuditLogger{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// WithDefaults returns a copy of opts with nil fields filled from
// DefaultOptions.
func (opts ServiceOptions) WithDefaults() ServiceOptions {
	def := DefaultOptions()
	if opts.AuthProvider == nil {
		opts.AuthProvider = def.AuthProvider
	}
	if opts.AuditLogger == nil {
		opts.AuditLogger = def.AuditLogger
	}
	return opts
}
