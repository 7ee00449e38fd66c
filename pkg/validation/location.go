// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided storage addresses before they
// reach a cloud SDK.
//
// Document locations arrive from flags, config files and HTTP requests.
// These validators reject bucket names and object keys that the backends
// would refuse or that could escape the intended prefix.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// bucketPattern matches bucket names accepted by both GCS and S3.
// Allows: lowercase letters, digits, dots, hyphens, underscores.
// Must start and end with a letter or digit. Length 3-63.
var bucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,61}[a-z0-9]$`)

// MaxObjectKeyBytes is the longest key either backend accepts.
const MaxObjectKeyBytes = 1024

// ValidateBucket validates a GCS or S3 bucket name.
//
// Valid buckets:
//   - 3-63 characters
//   - Lowercase letters a-z, digits 0-9
//   - Dots, hyphens and underscores, not at either end
//   - No ".." sequence
//
// Example:
//
//	if err := validation.ValidateBucket(bucket); err != nil {
//	    return Location{}, fmt.Errorf("invalid location: %w", err)
//	}
func ValidateBucket(bucket string) error {
	if bucket == "" {
		return fmt.Errorf("bucket cannot be empty")
	}
	if !bucketPattern.MatchString(bucket) || strings.Contains(bucket, "..") {
		return fmt.Errorf("invalid bucket name: %q (must be 3-63 lowercase alphanumeric chars, dots, hyphens or underscores)", bucket)
	}
	return nil
}

// ValidateObjectKey validates an object key inside a bucket.
//
// Keys must be non-empty UTF-8 of at most MaxObjectKeyBytes, must not
// start with "/", must not contain control characters, and must not have a
// "." or ".." path segment.
func ValidateObjectKey(key string) error {
	if key == "" {
		return fmt.Errorf("object key cannot be empty")
	}
	if len(key) > MaxObjectKeyBytes {
		return fmt.Errorf("object key exceeds %d bytes", MaxObjectKeyBytes)
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("object key is not valid UTF-8")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("object key %q must not start with /", key)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("object key %q contains a control character", key)
		}
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "." || seg == ".." {
			return fmt.Errorf("object key %q contains a relative path segment", key)
		}
	}
	return nil
}

// SanitizeBucket normalizes and validates a bucket name.
// Returns the lowercase bucket if valid, or an error if invalid.
func SanitizeBucket(bucket string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(bucket))
	if err := ValidateBucket(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
