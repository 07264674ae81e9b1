/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFsStoreWrite(t *testing.T) {
	store, err := NewFsStore(t.TempDir())
	require.NoError(t, err)

	content := "hello custodian"
	result, err := store.Write(context.Background(), "jobs/1/item.eml", strings.NewReader(content))
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), result.Sha256)
	assert.Equal(t, int64(len(content)), result.SizeBytes)
	assert.Equal(t, "jobs/1/item.eml", result.Path)

	rc, err := store.Read(context.Background(), "jobs/1/item.eml")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestFsStoreWriteRejectsTraversal(t *testing.T) {
	store, err := NewFsStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Write(context.Background(), "../escape", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = store.Write(context.Background(), "", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestFsStoreNoPartialBlobOnFailure(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFsStore(dir)
	require.NoError(t, err)

	failing := io.MultiReader(strings.NewReader("partial"), &errReader{})
	_, err = store.Write(context.Background(), "jobs/2/item.bin", failing)
	require.Error(t, err)

	exists, err := store.Exists(context.Background(), "jobs/2/item.bin")
	require.NoError(t, err)
	assert.False(t, exists)

	// no stray temp files left behind
	entries, err := os.ReadDir(filepath.Join(dir, "jobs", "2"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFsStoreWriteImmutable(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFsStore(dir)
	require.NoError(t, err)

	result, err := store.WriteImmutable(context.Background(), "manifests/job-1/manifest.json", strings.NewReader("{}"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Path, ImmutablePrefix))

	info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(result.Path)))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o444), info.Mode().Perm())

	// second publish to the same name must be refused
	_, err = store.WriteImmutable(context.Background(), "manifests/job-1/manifest.json", strings.NewReader("{}"))
	assert.Error(t, err)
}

func TestFsStoreReadNotFound(t *testing.T) {
	store, err := NewFsStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Read(context.Background(), "missing/blob")
	assert.Error(t, err)

	exists, err := store.Exists(context.Background(), "missing/blob")
	require.NoError(t, err)
	assert.False(t, exists)
}

type errReader struct{}

func (e *errReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}
