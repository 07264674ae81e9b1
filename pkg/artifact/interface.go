/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package artifact

import (
	"context"
	"io"
)

// WriteResult reports where an artifact landed and the hash observed while
// writing it. The hash is computed in the same pass as the write so it is
// available before the blob is published.
type WriteResult struct {
	Path      string
	Sha256    string
	SizeBytes int64
}

// Store is the named-blob persistence capability. Writes are atomic: a
// partially written blob is never visible under its final name.
type Store interface {
	// Write persists the reader's bytes under name and returns the
	// content hash computed during the write.
	Write(ctx context.Context, name string, r io.Reader) (*WriteResult, error)

	// Read opens a previously written blob.
	Read(ctx context.Context, name string) (io.ReadCloser, error)

	// Exists reports whether name has been written.
	Exists(ctx context.Context, name string) (bool, error)

	// WriteImmutable persists into the WORM namespace. A second write to
	// the same name fails.
	WriteImmutable(ctx context.Context, name string, r io.Reader) (*WriteResult, error)

	// PresignGet returns a time-bounded direct download URL, or "" when
	// the backend has no presign capability.
	PresignGet(ctx context.Context, name string, expireSeconds int64) (string, error)
}
