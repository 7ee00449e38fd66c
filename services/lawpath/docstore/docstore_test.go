// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package docstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw     string
		want    Location
		wantErr bool
	}{
		{raw: "out/pathways.json", want: Location{Scheme: SchemeFile, Key: "out/pathways.json"}},
		{raw: "file:///tmp/x.json", want: Location{Scheme: SchemeFile, Key: "/tmp/x.json"}},
		{raw: "gs://bucket/runs/a.json", want: Location{Scheme: SchemeGCS, Bucket: "bucket", Key: "runs/a.json"}},
		{raw: "s3://my-bucket/k.json", want: Location{Scheme: SchemeS3, Bucket: "my-bucket", Key: "k.json"}},
		{raw: "", wantErr: true},
		{raw: "gs://bucket", wantErr: true},
		{raw: "s3:///key", wantErr: true},
		{raw: "ftp://host/x", wantErr: true},
		{raw: "gs://Bad_Bucket/x.json", wantErr: true},
		{raw: "s3://my-bucket/runs/../x.json", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseLocation(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocation_String(t *testing.T) {
	assert.Equal(t, "gs://b/k", Location{Scheme: SchemeGCS, Bucket: "b", Key: "k"}.String())
	assert.Equal(t, "a/b.json", Location{Scheme: SchemeFile, Key: "a/b.json"}.String())
}

func TestLocalStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())

	_, err := s.Read(ctx, "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Write(ctx, "nested/dir/doc.json", []byte(`{"a":1}`)))
	require.NoError(t, s.Write(ctx, "nested/dir/doc.json", []byte(`{"a":2}`)))
	got, err := s.Read(ctx, "nested/dir/doc.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(got))

	entries, err := os.ReadDir(filepath.Join(s.Root, "nested", "dir"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestLocalStore_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewLocalStore(t.TempDir())
	assert.ErrorIs(t, s.Write(ctx, "a.json", nil), context.Canceled)
	_, err := s.Read(ctx, "a.json")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRouter_Local(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.json")
	r := NewRouter(Config{})
	defer r.Close()

	require.NoError(t, r.Write(ctx, path, []byte("x")))
	got, err := r.Read(ctx, "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))

	_, err = r.Read(ctx, "ftp://nope/x")
	assert.Error(t, err)
}
