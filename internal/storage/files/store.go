// Package files is a local-disk blob store. Paths handed to callers are
// relative to the configured root; staging uses a tmp directory on the same
// filesystem so promotion is an atomic rename.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidPath = errors.New("invalid storage path")

type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("files store: root is empty")
	}
	absolute, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("files store: resolve root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(absolute, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("files store: create root: %w", err)
	}
	return &Store{root: absolute}, nil
}

// resolve maps a relative storage path under the root, rejecting traversal.
func (s *Store) resolve(path string) (string, error) {
	if path == "" {
		return "", ErrInvalidPath
	}
	cleaned := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.root, cleaned), nil
}

// SaveTemp stages content in the tmp directory and returns its path plus the
// number of bytes written.
func (s *Store) SaveTemp(_ context.Context, r io.Reader) (string, int64, error) {
	file, err := os.CreateTemp(filepath.Join(s.root, "tmp"), "upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}

	size, err := io.Copy(file, r)
	if closeErr := file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(file.Name())
		return "", 0, fmt.Errorf("stage temp file: %w", err)
	}
	return file.Name(), size, nil
}

// Promote moves a staged file to its final location.
func (s *Store) Promote(_ context.Context, tempPath, finalPath string) error {
	target, err := s.resolve(finalPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create asset directory: %w", err)
	}
	if err := os.Rename(tempPath, target); err != nil {
		return fmt.Errorf("promote temp file: %w", err)
	}
	return nil
}

// Discard removes a staged file. Missing files are not an error.
func (s *Store) Discard(_ context.Context, tempPath string) error {
	if err := os.Remove(tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard temp file: %w", err)
	}
	return nil
}

func (s *Store) Open(_ context.Context, path string) (io.ReadCloser, error) {
	target, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return file, nil
}

// Create opens a writer at the given relative path, creating parents.
func (s *Store) Create(_ context.Context, path string) (io.WriteCloser, error) {
	target, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	file, err := os.Create(target)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return file, nil
}

// Remove deletes a stored file.
func (s *Store) Remove(_ context.Context, path string) error {
	target, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
