package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxPhotoBytes caps a proof photo upload.
const MaxPhotoBytes = 10 << 20

var (
	ErrPhotoTooLarge   = errors.New("photo exceeds size limit")
	ErrPhotoNotAnImage = errors.New("photo must be an image")
)

var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// ProofPhotoKey validates fileHeader and returns the object key it is stored
// under: proofs/<user>/<uuid><ext>.
func ProofPhotoKey(userID string, fileHeader *multipart.FileHeader) (string, error) {
	if fileHeader.Size > MaxPhotoBytes {
		return "", ErrPhotoTooLarge
	}
	contentType := strings.ToLower(fileHeader.Header.Get("Content-Type"))
	ext, ok := photoExtensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrPhotoNotAnImage, contentType)
	}
	return path.Join("proofs", userID, uuid.NewString()+ext), nil
}

// LocalPhotoStore keeps proof photos on disk below Dir and serves them under
// BaseURL. Used when no R2 bucket is configured.
type LocalPhotoStore struct {
	Dir     string
	BaseURL string
}

// EnsureUploadDir creates the uploads directory if it doesn't exist
func (s LocalPhotoStore) EnsureUploadDir() error {
	return os.MkdirAll(s.Dir, os.ModePerm)
}

func (s LocalPhotoStore) UploadProofPhoto(_ context.Context, userID string, fileHeader *multipart.FileHeader) (string, error) {
	key, err := ProofPhotoKey(userID, fileHeader)
	if err != nil {
		return "", err
	}
	if err := SaveFile(fileHeader, filepath.Join(s.Dir, filepath.FromSlash(key))); err != nil {
		return "", fmt.Errorf("save photo: %w", err)
	}
	return strings.TrimRight(s.BaseURL, "/") + "/" + key, nil
}

// SaveFile saves the uploaded file to the given destination path
func SaveFile(fileHeader *multipart.FileHeader, destPath string) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, file)
	return err
}
