// Package storage keeps uploaded documents on an afero filesystem rooted at
// the public storage directory.
package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	domainRepo "patient-registration/internal/domain/repository"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

var (
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrUnsupportedType = errors.New("content type is not allowed")
	ErrInvalidPath     = errors.New("invalid storage path")
)

// extensions maps accepted content types to the stored file extension.
var extensions = map[string]string{
	"image/jpeg": ".jpg",
}

type LocalStorage struct {
	fs           afero.Fs
	publicPrefix string
	maxBytes     int64
}

var _ domainRepo.DocumentStorage = (*LocalStorage)(nil)

// NewLocalStorage stores files under root on the OS filesystem.
func NewLocalStorage(root, publicPrefix string, maxBytes int64) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return NewStorage(afero.NewBasePathFs(afero.NewOsFs(), root), publicPrefix, maxBytes), nil
}

func NewStorage(fs afero.Fs, publicPrefix string, maxBytes int64) *LocalStorage {
	return &LocalStorage{fs: fs, publicPrefix: publicPrefix, maxBytes: maxBytes}
}

// Fs exposes the underlying filesystem so it can be served read-only.
func (s *LocalStorage) Fs() afero.Fs {
	return s.fs
}

// Save re-checks the type and size of the content and writes it under
// namespace with a generated name. It returns the relative storage path.
func (s *LocalStorage) Save(ctx context.Context, namespace string, r io.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	br := bufio.NewReader(r)
	head, err := br.Peek(3072)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}

	detected := mimetype.Detect(head)
	ext, ok := extensions[contentType]
	if !ok || !detected.Is(contentType) {
		return "", ErrUnsupportedType
	}

	if err := s.fs.MkdirAll(namespace, 0o755); err != nil {
		return "", fmt.Errorf("create namespace %s: %w", namespace, err)
	}

	rel := path.Join(namespace, uuid.NewString()+ext)
	f, err := s.fs.Create(rel)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", rel, err)
	}

	n, copyErr := io.Copy(f, io.LimitReader(br, s.maxBytes+1))
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		_ = s.fs.Remove(rel)
		return "", fmt.Errorf("write %s: %w", rel, copyErr)
	case n > s.maxBytes:
		_ = s.fs.Remove(rel)
		return "", ErrFileTooLarge
	case closeErr != nil:
		_ = s.fs.Remove(rel)
		return "", fmt.Errorf("close %s: %w", rel, closeErr)
	}

	return rel, nil
}

func (s *LocalStorage) Delete(_ context.Context, p string) error {
	clean := path.Clean("/" + p)
	if clean == "/" || strings.Contains(p, "..") {
		return ErrInvalidPath
	}
	if err := s.fs.Remove(strings.TrimPrefix(clean, "/")); err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

func (s *LocalStorage) URL(p string) string {
	return strings.TrimSuffix(s.publicPrefix, "/") + "/" + strings.TrimPrefix(p, "/")
}
