/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"

	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
)

const (
	// ImmutablePrefix roots the WORM namespace inside the store.
	ImmutablePrefix = "immutable/worm"

	tmpSuffix = ".tmp"
)

// FsStore persists blobs under a root directory. Writes stage to a temp
// file, fsync, then rename, so readers never observe partial blobs.
// The immutable namespace drops write permission after publish.
type FsStore struct {
	root string
}

func NewFsStore(root string) (*FsStore, error) {
	if root == "" {
		return nil, customerrors.NewBadRequest("artifact root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FsStore{root: root}, nil
}

func (s *FsStore) Write(ctx context.Context, name string, r io.Reader) (*WriteResult, error) {
	return s.write(ctx, name, r, false)
}

func (s *FsStore) WriteImmutable(ctx context.Context, name string, r io.Reader) (*WriteResult, error) {
	if !strings.HasPrefix(name, ImmutablePrefix) {
		name = filepath.Join(ImmutablePrefix, name)
	}
	if exists, err := s.Exists(ctx, name); err != nil {
		return nil, err
	} else if exists {
		return nil, customerrors.NewAlreadyExist(fmt.Sprintf("immutable blob %s already exists", name))
	}
	return s.write(ctx, name, r, true)
}

func (s *FsStore) write(ctx context.Context, name string, r io.Reader, immutable bool) (*WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" || strings.Contains(name, "..") {
		return nil, customerrors.NewBadRequest(fmt.Sprintf("invalid artifact name %q", name))
	}
	fullPath := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), filepath.Base(fullPath)+tmpSuffix)
	if err != nil {
		return nil, err
	}
	tmpName := tmp.Name()
	defer func() {
		// best-effort cleanup on any failed path
		_ = os.Remove(tmpName)
	}()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		tmp.Close()
		return nil, err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return nil, err
	}
	if err = tmp.Close(); err != nil {
		return nil, err
	}
	if immutable {
		if err = os.Chmod(tmpName, 0o444); err != nil {
			return nil, err
		}
	}
	if err = os.Rename(tmpName, fullPath); err != nil {
		return nil, err
	}
	result := &WriteResult{
		Path:      name,
		Sha256:    hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes: size,
	}
	klog.V(4).Infof("wrote artifact %s, size: %d, sha256: %s", name, size, result.Sha256)
	return result, nil
}

func (s *FsStore) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(name)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, customerrors.NewNotFoundWithMessage(fmt.Sprintf("artifact %s not found", name))
		}
		return nil, err
	}
	return f, nil
}

func (s *FsStore) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(name)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// PresignGet is not supported by the filesystem backend.
func (s *FsStore) PresignGet(_ context.Context, _ string, _ int64) (string, error) {
	return "", nil
}
