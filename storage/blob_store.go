// Package storage keeps uploaded document content in a content-addressed
// blob store. Blobs are keyed by their SHA-256 digest so identical uploads
// share one file and tampering is detectable on read.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// BlobInfo describes a stored blob
type BlobInfo struct {
	Key    string
	SHA256 string
	Size   int64
}

// BlobStore writes blobs under root on an afero filesystem
type BlobStore struct {
	fs   afero.Fs
	root string
}

// NewBlobStore creates a blob store rooted at root
func NewBlobStore(fs afero.Fs, root string) (*BlobStore, error) {
	if err := fs.MkdirAll(path.Join(root, "tmp"), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create blob store root %s: %w", root, err)
	}
	return &BlobStore{fs: fs, root: root}, nil
}

// NewOsBlobStore creates a blob store on the local disk
func NewOsBlobStore(root string) (*BlobStore, error) {
	return NewBlobStore(afero.NewOsFs(), root)
}

// keyFor returns the storage key for a hex digest
func keyFor(digest string) string {
	return path.Join("sha256", digest[:2], digest)
}

// Put streams r into the store, hashing as it writes. Content larger than
// maxBytes is discarded and models.ErrTooLarge is returned.
func (s *BlobStore) Put(r io.Reader, maxBytes int64) (*BlobInfo, error) {
	tmpPath := path.Join(s.root, "tmp", uuid.New().String())
	tmp, err := s.fs.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp blob: %w", err)
	}

	hasher := sha256.New()
	// Read one byte past the limit to detect oversized content
	written, copyErr := io.Copy(io.MultiWriter(tmp, hasher), io.LimitReader(r, maxBytes+1))
	closeErr := tmp.Close()

	if copyErr != nil || closeErr != nil || written > maxBytes {
		_ = s.fs.Remove(tmpPath)
		switch {
		case copyErr != nil:
			return nil, fmt.Errorf("failed to write blob: %w", copyErr)
		case closeErr != nil:
			return nil, fmt.Errorf("failed to close blob: %w", closeErr)
		default:
			return nil, fmt.Errorf("%w: limit is %d bytes", models.ErrTooLarge, maxBytes)
		}
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	key := keyFor(digest)
	finalPath := path.Join(s.root, key)

	if exists, _ := afero.Exists(s.fs, finalPath); exists {
		_ = s.fs.Remove(tmpPath)
		return &BlobInfo{Key: key, SHA256: digest, Size: written}, nil
	}

	if err := s.fs.MkdirAll(path.Dir(finalPath), 0o750); err != nil {
		_ = s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := s.fs.Rename(tmpPath, finalPath); err != nil {
		_ = s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("failed to move blob into place: %w", err)
	}

	return &BlobInfo{Key: key, SHA256: digest, Size: written}, nil
}

// Open returns a reader for the blob stored under key
func (s *BlobStore) Open(key string) (afero.File, error) {
	f, err := s.fs.Open(path.Join(s.root, path.Clean("/"+key)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", key, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open blob %s: %w", key, err)
	}
	return f, nil
}

// ReadVerified reads the whole blob and checks it against expectedHash.
// A mismatch returns models.ErrIntegrity.
func (s *BlobStore) ReadVerified(key, expectedHash string) ([]byte, error) {
	f, err := s.Open(key)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}

	sum := sha256.Sum256(data)
	actual := hex.EncodeToString(sum[:])
	if actual != expectedHash {
		return nil, fmt.Errorf("%w: blob %s has digest %s, expected %s", models.ErrIntegrity, key, actual, expectedHash)
	}
	return data, nil
}

// Verify recomputes the digest of a stored blob without keeping its content
func (s *BlobStore) Verify(key, expectedHash string) (string, error) {
	f, err := s.Open(key)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	actual := hex.EncodeToString(hasher.Sum(nil))
	if actual != expectedHash {
		return actual, fmt.Errorf("%w: blob %s has digest %s, expected %s", models.ErrIntegrity, key, actual, expectedHash)
	}
	return actual, nil
}
