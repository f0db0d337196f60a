// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package asset stores uploaded chat attachments and removes the files of
// deleted messages in the background.
package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tomtom215/parley/internal/config"
)

// ErrInvalidKey is returned for storage keys that escape the storage root.
var ErrInvalidKey = errors.New("asset: invalid storage key")

// Storage is the file storage contract.
type Storage interface {
	// CreateAsset writes r and returns the new storage key and size.
	CreateAsset(ctx context.Context, ownerID, mimeType string, r io.Reader) (key string, size int64, err error)
	// DeleteFilesFromStorage removes the given keys. Missing files are ignored.
	DeleteFilesFromStorage(ctx context.Context, keys []string) error
	GetAssetURL(key string) string
}

// FileStorage keeps assets on the local filesystem under a root directory.
type FileStorage struct {
	root    string
	baseURL string
}

// NewFileStorage creates the root directory if needed.
func NewFileStorage(cfg config.AssetsConfig) (*FileStorage, error) {
	if cfg.Root == "" {
		return nil, errors.New("asset: storage root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o750); err != nil {
		return nil, fmt.Errorf("asset: create root: %w", err)
	}
	return &FileStorage{root: cfg.Root, baseURL: strings.TrimRight(cfg.BaseURL, "/")}, nil
}

func (s *FileStorage) CreateAsset(ctx context.Context, ownerID, mimeType string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	if ownerID == "" || strings.ContainsAny(ownerID, `/\`) || ownerID == "." || ownerID == ".." {
		return "", 0, fmt.Errorf("asset: invalid owner id %q", ownerID)
	}

	key := path.Join(ownerID, uuid.NewString()+extensionFor(mimeType))
	full, err := s.resolve(key)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", 0, fmt.Errorf("asset: create owner dir: %w", err)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("asset: create file: %w", err)
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(full)
		return "", 0, fmt.Errorf("asset: write file: %w", err)
	}
	return key, n, nil
}

func (s *FileStorage) DeleteFilesFromStorage(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		full, err := s.resolve(key)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (s *FileStorage) GetAssetURL(key string) string {
	return s.baseURL + "/" + key
}

// resolve maps a key to a path inside the root.
func (s *FileStorage) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || clean != "/"+key {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, filepath.FromSlash(clean[1:])), nil
}

func extensionFor(mimeType string) string {
	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
