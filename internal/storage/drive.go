package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/models"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	driveFolderMime = "application/vnd.google-apps.folder"
	driveFileFields = "id, name, mimeType, size, modifiedTime, parents"
)

// DriveSource reads media from the folders below one Google Drive folder.
type DriveSource struct {
	svc    *drive.Service
	rootID string
}

// NewDriveSource builds a source over rootID using an authorised client.
// An empty rootID means the user's My Drive root.
func NewDriveSource(ctx context.Context, client *http.Client, rootID string) (*DriveSource, error) {
	svc, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, err
	}
	if rootID == "" {
		rootID = "root"
	}
	return &DriveSource{svc: svc, rootID: rootID}, nil
}

func (s *DriveSource) SourceType() string {
	return models.SourceDrive
}

func (s *DriveSource) IsConfigured() bool {
	return s.svc != nil
}

func driveError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound:
			return apperrors.New(apperrors.ErrContentNotFound, op, err)
		case gerr.Code == http.StatusUnauthorized:
			return apperrors.New(apperrors.ErrCredentialExpired, op, err)
		case gerr.Code == http.StatusTooManyRequests:
			return apperrors.New(apperrors.ErrRateLimited, op, err)
		case gerr.Code >= 500:
			return apperrors.New(apperrors.ErrTransientNetwork, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *DriveSource) list(ctx context.Context, q string) ([]*drive.File, error) {
	var files []*drive.File
	err := s.svc.Files.List().
		Q(q).
		Fields(googleapi.Field("nextPageToken, files(" + driveFileFields + ")")).
		PageSize(100).
		Pages(ctx, func(page *drive.FileList) error {
			files = append(files, page.Files...)
			return nil
		})
	if err != nil {
		return nil, driveError("list drive files", err)
	}
	return files, nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

func (s *DriveSource) GetFolders(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf("%s in parents and mimeType = '%s' and trashed = false", quote(s.rootID), driveFolderMime)
	files, err := s.list(ctx, q)
	if err != nil {
		return nil, err
	}

	folders := make([]string, 0, len(files))
	for _, f := range files {
		folders = append(folders, f.Name)
	}
	return folders, nil
}

func (s *DriveSource) folderID(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("%s in parents and name = %s and mimeType = '%s' and trashed = false", quote(s.rootID), quote(name), driveFolderMime)
	files, err := s.list(ctx, q)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", apperrors.New(apperrors.ErrContentNotFound, "drive folder", fmt.Errorf("%q", name))
	}
	return files[0].Id, nil
}

func (s *DriveSource) ListFiles(ctx context.Context, folder string) ([]FileInfo, error) {
	id, err := s.folderID(ctx, folder)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf("%s in parents and (mimeType contains 'image/' or mimeType contains 'video/') and trashed = false", quote(id))
	files, err := s.list(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]FileInfo, 0, len(files))
	for _, f := range files {
		info := toFileInfo(f)
		info.Folder = folder
		out = append(out, info)
	}
	return out, nil
}

func toFileInfo(f *drive.File) FileInfo {
	modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
	return FileInfo{
		ID:         f.Id,
		Name:       f.Name,
		MimeType:   f.MimeType,
		Size:       f.Size,
		ModifiedAt: modified,
	}
}

func (s *DriveSource) GetFileInfo(ctx context.Context, id string) (*FileInfo, error) {
	f, err := s.svc.Files.Get(id).Fields(googleapi.Field(driveFileFields)).Context(ctx).Do()
	if err != nil {
		return nil, driveError("get drive file", err)
	}
	info := toFileInfo(f)
	return &info, nil
}

func (s *DriveSource) FileExists(ctx context.Context, id string) (bool, error) {
	_, err := s.GetFileInfo(ctx, id)
	if errors.Is(err, apperrors.ErrContentNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *DriveSource) DownloadFile(ctx context.Context, id string) ([]byte, error) {
	resp, err := s.svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, driveError("download drive file", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrTransientNetwork, "read drive file", err)
	}
	return data, nil
}

func (s *DriveSource) CalculateFileHash(ctx context.Context, id string) (string, error) {
	resp, err := s.svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return "", driveError("download drive file", err)
	}
	defer resp.Body.Close()
	return hashReader(resp.Body)
}
