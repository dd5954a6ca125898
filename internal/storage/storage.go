// Package storage holds the media sources the library indexes and the
// object stores downloaded media is written to.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"
)

type FileInfo struct {
	ID         string
	Name       string
	Folder     string
	MimeType   string
	Size       int64
	ModifiedAt time.Time
}

// MediaSource is a place media files can be listed and read from.
type MediaSource interface {
	SourceType() string
	IsConfigured() bool
	GetFolders(ctx context.Context) ([]string, error)
	ListFiles(ctx context.Context, folder string) ([]FileInfo, error)
	GetFileInfo(ctx context.Context, id string) (*FileInfo, error)
	FileExists(ctx context.Context, id string) (bool, error)
	DownloadFile(ctx context.Context, id string) ([]byte, error)
	CalculateFileHash(ctx context.Context, id string) (string, error)
}

// ObjectStore persists media bytes under a key.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// PublicURL returns a URL the Graph API can fetch location from, or ""
	// when the store is not publicly reachable.
	PublicURL(location string) string
}

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
