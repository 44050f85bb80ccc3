// Package blob stores uploaded chat images and hands back URLs for
// later retrieval.
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store saves image bytes for a caller and returns a serveable URL.
type Store interface {
	Put(userID string, data []byte, mimeType string) (string, error)
}

// LocalStore keeps uploads on the local filesystem under
// <dataDir>/uploads/<user>/ and returns /uploads/... URLs served by
// the HTTP layer.
type LocalStore struct {
	uploadsDir string
}

// NewLocalStore creates the uploads directory under dataDir.
func NewLocalStore(dataDir string) (*LocalStore, error) {
	uploadsDir := filepath.Join(dataDir, "uploads")

	// 0700 - uploads may contain private user images
	if err := os.MkdirAll(uploadsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}

	return &LocalStore{uploadsDir: uploadsDir}, nil
}

// Dir returns the directory uploads are written to, for static serving.
func (s *LocalStore) Dir() string {
	return s.uploadsDir
}

// Put writes the image and returns its URL path.
func (s *LocalStore) Put(userID string, data []byte, mimeType string) (string, error) {
	userDir := filepath.Join(s.uploadsDir, userID)
	if err := os.MkdirAll(userDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create user uploads directory: %w", err)
	}

	filename := uuid.New().String() + extensionForMIME(mimeType)
	path := filepath.Join(userDir, filename)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}

	return "/uploads/" + userID + "/" + filename, nil
}

func extensionForMIME(mimeType string) string {
	_, subtype, ok := strings.Cut(mimeType, "/")
	if !ok || subtype == "" {
		return ".bin"
	}
	if subtype == "jpeg" {
		return ".jpg"
	}
	return "." + subtype
}
