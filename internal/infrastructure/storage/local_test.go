package storage

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jpegBytes(size int) []byte {
	b := make([]byte, size)
	copy(b, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00})
	return b
}

func TestLocalStorage_SaveWritesUnderNamespace(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStorage(fs, "/storage/", 1024)

	rel, err := s.Save(context.Background(), "documents", bytes.NewReader(jpegBytes(512)), "image/jpeg")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rel, "documents/"))
	assert.True(t, strings.HasSuffix(rel, ".jpg"))

	data, err := afero.ReadFile(fs, rel)
	require.NoError(t, err)
	assert.Len(t, data, 512)

	assert.Equal(t, "/storage/"+rel, s.URL(rel))
}

func TestLocalStorage_SaveGeneratesUniqueNames(t *testing.T) {
	s := NewStorage(afero.NewMemMapFs(), "/storage/", 1024)

	a, err := s.Save(context.Background(), "documents", bytes.NewReader(jpegBytes(64)), "image/jpeg")
	require.NoError(t, err)
	b, err := s.Save(context.Background(), "documents", bytes.NewReader(jpegBytes(64)), "image/jpeg")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestLocalStorage_SaveRejectsOversizedContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStorage(fs, "/storage/", 100)

	_, err := s.Save(context.Background(), "documents", bytes.NewReader(jpegBytes(101)), "image/jpeg")
	assert.ErrorIs(t, err, ErrFileTooLarge)

	entries, _ := afero.ReadDir(fs, "documents")
	assert.Empty(t, entries)
}

func TestLocalStorage_SaveRejectsNonJPEG(t *testing.T) {
	s := NewStorage(afero.NewMemMapFs(), "/storage/", 1024)

	_, err := s.Save(context.Background(), "documents", strings.NewReader("plain text"), "image/jpeg")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = s.Save(context.Background(), "documents", bytes.NewReader(jpegBytes(64)), "image/png")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestLocalStorage_Delete(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStorage(fs, "/storage/", 1024)

	rel, err := s.Save(context.Background(), "documents", bytes.NewReader(jpegBytes(64)), "image/jpeg")
	require.NoError(t, err)

	require.NoError(t, s.Delete(context.Background(), rel))
	exists, _ := afero.Exists(fs, rel)
	assert.False(t, exists)

	assert.ErrorIs(t, s.Delete(context.Background(), "../etc/passwd"), ErrInvalidPath)
}
