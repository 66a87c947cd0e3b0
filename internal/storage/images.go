// Package storage persists uploaded catalog images on local disk.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxImageSize is the upload limit for catalog images.
const MaxImageSize = 2 << 20

var (
	ErrImageTooLarge = errors.New("Image must be under 2MB")
	ErrNotAnImage    = errors.New("Uploaded file is not an image")
	ErrEmptyImage    = errors.New("Image is required")
)

const imageDir = "clothes"

// ImageStore writes images under root/clothes and hands out references
// relative to root.
type ImageStore struct {
	root   string
	logger *zap.Logger
}

// NewImageStore creates the storage directory if needed.
func NewImageStore(root string, logger *zap.Logger) (*ImageStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Join(root, imageDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &ImageStore{root: root, logger: logger}, nil
}

// Root is the directory served under /media/.
func (s *ImageStore) Root() string { return s.root }

// Validate checks size and content type without writing anything.
func Validate(data []byte) (*mimetype.MIME, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if len(data) > MaxImageSize {
		return nil, ErrImageTooLarge
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, ErrNotAnImage
	}
	return mt, nil
}

// Save validates data and writes it under a fresh name. The returned
// reference looks like "clothes/<uuid>.png".
func (s *ImageStore) Save(originalName string, data []byte) (string, error) {
	mt, err := Validate(data)
	if err != nil {
		return "", err
	}

	ext := mt.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(originalName))
	}
	ref := imageDir + "/" + uuid.NewString() + ext

	if err := os.WriteFile(filepath.Join(s.root, filepath.FromSlash(ref)), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	s.logger.Info("image stored",
		zap.String("ref", ref),
		zap.String("mime", mt.String()),
		zap.Int("bytes", len(data)),
	)
	return ref, nil
}

// Remove deletes a stored image. The placeholder and unknown references
// are ignored.
func (s *ImageStore) Remove(ref string) error {
	clean := path.Clean(ref)
	if clean == "clothes/default.png" || !strings.HasPrefix(clean, imageDir+"/") {
		return nil
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(clean)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove image: %w", err)
	}
	return nil
}
