// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-authflow.
//
// go-authflow is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// Directory permissions (owner rwx only)
	fileDirPerms = 0700

	// File permissions (owner rw only); entries may hold session
	// identifiers, never world-readable.
	fileEntryPerms = 0600
)

// FileBackend stores key-value pairs as files under a root directory.
// Keys map to file names with path separators preserved as
// sub-directories. Thread-safe.
type FileBackend struct {
	mu      sync.RWMutex
	rootDir string
	closed  bool
}

// NewFile creates a new file-based storage backend rooted at rootDir.
// The root directory is created with 0700 permissions if it doesn't exist.
func NewFile(rootDir string) (*FileBackend, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("file storage: root directory cannot be empty")
	}

	if err := os.MkdirAll(rootDir, fileDirPerms); err != nil {
		return nil, fmt.Errorf("file storage: failed to create root directory: %w", err)
	}

	return &FileBackend{rootDir: rootDir}, nil
}

// Get retrieves the value for the given key.
// Returns ErrNotFound if the key does not exist.
func (f *FileBackend) Get(key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrClosed
	}

	path, err := f.keyToPath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("file storage: failed to read key %q: %w", key, err)
	}
	return data, nil
}

// Set stores the value for the given key, overwriting any existing value.
func (f *FileBackend) Set(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}

	path, err := f.keyToPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), fileDirPerms); err != nil {
		return fmt.Errorf("file storage: failed to create directory for key %q: %w", key, err)
	}

	// Write-then-rename so a crash mid-write never leaves a torn entry.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, fileEntryPerms); err != nil {
		return fmt.Errorf("file storage: failed to write key %q: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("file storage: failed to commit key %q: %w", key, err)
	}
	return nil
}

// Delete removes the key and its value from storage.
// Returns ErrNotFound if the key does not exist.
func (f *FileBackend) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}

	path, err := f.keyToPath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("file storage: failed to delete key %q: %w", key, err)
	}
	return nil
}

// Close marks the backend closed. Subsequent operations return ErrClosed.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

// keyToPath maps a storage key to an absolute file path, rejecting keys
// that would escape the root directory.
func (f *FileBackend) keyToPath(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}

	path := filepath.Join(f.rootDir, filepath.FromSlash(key))
	cleanRoot := filepath.Clean(f.rootDir) + string(filepath.Separator)
	if !strings.HasPrefix(filepath.Clean(path)+string(filepath.Separator), cleanRoot) {
		return "", ErrInvalidKey
	}
	return path, nil
}
