package repository

import (
	"context"
	"io"
)

// DocumentStorage persists uploaded files and maps their keys to public URLs.
type DocumentStorage interface {
	Save(ctx context.Context, namespace string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
	URL(path string) string
}
