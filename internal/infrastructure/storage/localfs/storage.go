// Package localfs reads captured images from a directory on local disk.
package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docuflow/capture/internal/core/ports"
)

type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/captures"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

// Save stores an incoming capture under its ref. Refs are flat names, not
// paths.
func (s *Storage) Save(_ context.Context, ref string, data io.Reader) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *Storage) Stat(_ context.Context, ref string) (ports.FileInfo, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return ports.FileInfo{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return ports.FileInfo{}, fmt.Errorf("stat file: %w", err)
	}
	return ports.FileInfo{
		Name:      info.Name(),
		SizeBytes: info.Size(),
	}, nil
}

func (s *Storage) resolve(ref string) (string, error) {
	if ref == "" || strings.Contains(ref, "..") || strings.ContainsRune(ref, os.PathSeparator) {
		return "", fmt.Errorf("invalid image ref: %q", ref)
	}
	return filepath.Join(s.basePath, ref), nil
}
