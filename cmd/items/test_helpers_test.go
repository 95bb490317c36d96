package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-personal/internal/app"
	"github.com/tonimelisma/onedrive-personal/internal/config"
	"github.com/tonimelisma/onedrive-personal/internal/logger"
	"github.com/tonimelisma/onedrive-personal/internal/session"
	"github.com/tonimelisma/onedrive-personal/pkg/onedrive"
)

// MockSDK implements app.SDK with overridable functions.
type MockSDK struct {
	GetDriveItemFunc           func(ctx context.Context, path string) (onedrive.DriveItem, error)
	GetAppRootFunc             func(ctx context.Context) (*onedrive.Folder, error)
	ListDriveItemsFunc         func(ctx context.Context, itemID string) ([]onedrive.DriveItem, error)
	DeleteDriveItemFunc        func(ctx context.Context, path string) error
	DownloadDriveItemFunc      func(ctx context.Context, path string) (io.ReadCloser, error)
	UpdateDriveItemFunc        func(ctx context.Context, itemID string, update onedrive.ItemUpdate) (onedrive.DriveItem, error)
	CreateFolderFunc           func(ctx context.Context, parentID, name string, behavior onedrive.ConflictBehavior) (*onedrive.Folder, error)
	UploadFunc                 func(ctx context.Context, file onedrive.FileInfo, opts ...onedrive.LargeFileOption) (*onedrive.File, error)
	ResumeUploadFunc           func(ctx context.Context, file onedrive.FileInfo, s *onedrive.UploadSession, opts ...onedrive.LargeFileOption) (*onedrive.File, error)
	GetUploadSessionStatusFunc func(ctx context.Context, uploadURL string) (*onedrive.UploadSession, error)
	CancelUploadSessionFunc    func(ctx context.Context, uploadURL string) error
}

var errNotMocked = errors.New("not implemented in mock")

func (m *MockSDK) GetDriveItem(ctx context.Context, path string) (onedrive.DriveItem, error) {
	if m.GetDriveItemFunc != nil {
		return m.GetDriveItemFunc(ctx, path)
	}
	return nil, errNotMocked
}

func (m *MockSDK) GetAppRoot(ctx context.Context) (*onedrive.Folder, error) {
	if m.GetAppRootFunc != nil {
		return m.GetAppRootFunc(ctx)
	}
	return nil, errNotMocked
}

func (m *MockSDK) ListDriveItems(ctx context.Context, itemID string) ([]onedrive.DriveItem, error) {
	if m.ListDriveItemsFunc != nil {
		return m.ListDriveItemsFunc(ctx, itemID)
	}
	return nil, nil
}

func (m *MockSDK) DeleteDriveItem(ctx context.Context, path string) error {
	if m.DeleteDriveItemFunc != nil {
		return m.DeleteDriveItemFunc(ctx, path)
	}
	return nil
}

func (m *MockSDK) DownloadDriveItem(ctx context.Context, path string) (io.ReadCloser, error) {
	if m.DownloadDriveItemFunc != nil {
		return m.DownloadDriveItemFunc(ctx, path)
	}
	return nil, errNotMocked
}

func (m *MockSDK) UpdateDriveItem(ctx context.Context, itemID string, update onedrive.ItemUpdate) (onedrive.DriveItem, error) {
	if m.UpdateDriveItemFunc != nil {
		return m.UpdateDriveItemFunc(ctx, itemID, update)
	}
	return nil, errNotMocked
}

func (m *MockSDK) CreateFolder(ctx context.Context, parentID, name string, behavior onedrive.ConflictBehavior) (*onedrive.Folder, error) {
	if m.CreateFolderFunc != nil {
		return m.CreateFolderFunc(ctx, parentID, name, behavior)
	}
	return nil, errNotMocked
}

func (m *MockSDK) Upload(ctx context.Context, file onedrive.FileInfo, opts ...onedrive.LargeFileOption) (*onedrive.File, error) {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, file, opts...)
	}
	return nil, errNotMocked
}

func (m *MockSDK) ResumeUpload(ctx context.Context, file onedrive.FileInfo, s *onedrive.UploadSession, opts ...onedrive.LargeFileOption) (*onedrive.File, error) {
	if m.ResumeUploadFunc != nil {
		return m.ResumeUploadFunc(ctx, file, s, opts...)
	}
	return nil, errNotMocked
}

func (m *MockSDK) GetUploadSessionStatus(ctx context.Context, uploadURL string) (*onedrive.UploadSession, error) {
	if m.GetUploadSessionStatusFunc != nil {
		return m.GetUploadSessionStatusFunc(ctx, uploadURL)
	}
	return nil, errNotMocked
}

func (m *MockSDK) CancelUploadSession(ctx context.Context, uploadURL string) error {
	if m.CancelUploadSessionFunc != nil {
		return m.CancelUploadSessionFunc(ctx, uploadURL)
	}
	return nil
}

var _ app.SDK = (*MockSDK)(nil)

// newTestApp returns an App around mock whose output lands in the returned
// buffer. Upload sessions live in a temporary directory.
func newTestApp(t *testing.T, mock *MockSDK) (*app.App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &app.App{
		Config:   config.Default(),
		Logger:   logger.Discard(),
		SDK:      mock,
		Sessions: session.NewManagerWithDir(t.TempDir()),
		Out:      &out,
		Err:      io.Discard,
		Now:      time.Now,
	}, &out
}

// newFlagCommand returns a command with the flags the item commands read,
// set to their defaults.
func newFlagCommand(t *testing.T, set map[string]string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.Flags().String("conflict", "fail", "")
	cmd.Flags().Int("jobs", 4, "")
	cmd.Flags().String("name", "", "")
	cmd.Flags().String("description", "", "")
	cmd.Flags().String("move-to", "", "")
	cmd.Flags().Bool("overwrite", false, "")
	cmd.Flags().Bool("defer-commit", false, "")
	for k, v := range set {
		if err := cmd.Flags().Set(k, v); err != nil {
			t.Fatalf("setting --%s: %v", k, err)
		}
	}
	return cmd
}

func folder(id, name string) *onedrive.Folder {
	return &onedrive.Folder{Item: onedrive.Item{ID: id, Name: name}}
}

func file(id, name string, size int64) *onedrive.File {
	return &onedrive.File{Item: onedrive.Item{ID: id, Name: name, Size: size}}
}

// itemsByRef serves GetDriveItem from a map keyed by drive reference.
func itemsByRef(items map[string]onedrive.DriveItem) func(context.Context, string) (onedrive.DriveItem, error) {
	return func(_ context.Context, ref string) (onedrive.DriveItem, error) {
		if item, ok := items[ref]; ok {
			return item, nil
		}
		return nil, onedrive.ErrNotFound
	}
}

func nopCloser(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}
