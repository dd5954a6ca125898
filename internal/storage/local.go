package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/h2non/filetype"
	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/models"
)

// LocalSource reads media from a directory tree. Each top-level directory
// is a folder; file ids are paths relative to the root.
type LocalSource struct {
	root string
}

func NewLocalSource(root string) *LocalSource {
	return &LocalSource{root: root}
}

func (s *LocalSource) SourceType() string {
	return models.SourceLocal
}

func (s *LocalSource) IsConfigured() bool {
	info, err := os.Stat(s.root)
	return err == nil && info.IsDir()
}

func (s *LocalSource) path(id string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(id))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("file id %q escapes the media root", id)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *LocalSource) GetFolders(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	var folders []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			folders = append(folders, e.Name())
		}
	}
	return folders, nil
}

// ListFiles walks folder recursively and returns the image and video files
// in it, sorted by id.
func (s *LocalSource) ListFiles(ctx context.Context, folder string) ([]FileInfo, error) {
	dir, err := s.path(folder)
	if err != nil {
		return nil, err
	}

	var files []FileInfo
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		head := readHead(p)
		if !filetype.IsImage(head) && !filetype.IsVideo(head) {
			return nil
		}
		kind, err := filetype.Match(head)
		if err != nil {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		files = append(files, FileInfo{
			ID:         filepath.ToSlash(rel),
			Name:       d.Name(),
			Folder:     folder,
			MimeType:   kind.MIME.Value,
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
	return files, nil
}

// readHead returns the first bytes of the file at p, enough for sniffing.
func readHead(p string) []byte {
	f, err := os.Open(p)
	if err != nil {
		return nil
	}
	defer f.Close()

	head := make([]byte, 262)
	n, _ := f.Read(head)
	return head[:n]
}

func (s *LocalSource) GetFileInfo(ctx context.Context, id string) (*FileInfo, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.New(apperrors.ErrContentNotFound, "file info", err)
		}
		return nil, err
	}

	var mime string
	if kind, err := filetype.MatchFile(p); err == nil {
		mime = kind.MIME.Value
	}
	folder, _, _ := strings.Cut(filepath.ToSlash(filepath.Clean(id)), "/")
	return &FileInfo{
		ID:         id,
		Name:       info.Name(),
		Folder:     folder,
		MimeType:   mime,
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
	}, nil
}

func (s *LocalSource) FileExists(ctx context.Context, id string) (bool, error) {
	p, err := s.path(id)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *LocalSource) DownloadFile(ctx context.Context, id string) ([]byte, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.New(apperrors.ErrContentNotFound, "download file", err)
	}
	return data, err
}

func (s *LocalSource) CalculateFileHash(ctx context.Context, id string) (string, error) {
	p, err := s.path(id)
	if err != nil {
		return "", err
	}
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return hashReader(f)
}

// LocalStore writes objects below a directory.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	p := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return p, nil
}

func (s *LocalStore) PublicURL(location string) string {
	return ""
}
