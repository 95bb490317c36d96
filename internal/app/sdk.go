package app

import (
	"context"
	"io"

	"github.com/tonimelisma/onedrive-personal/pkg/onedrive"
)

// SDK is the part of the OneDrive client the commands use. Tests replace it
// with a mock.
type SDK interface {
	GetDriveItem(ctx context.Context, path string) (onedrive.DriveItem, error)
	GetAppRoot(ctx context.Context) (*onedrive.Folder, error)
	ListDriveItems(ctx context.Context, itemID string) ([]onedrive.DriveItem, error)
	DeleteDriveItem(ctx context.Context, path string) error
	DownloadDriveItem(ctx context.Context, path string) (io.ReadCloser, error)
	UpdateDriveItem(ctx context.Context, itemID string, update onedrive.ItemUpdate) (onedrive.DriveItem, error)
	CreateFolder(ctx context.Context, parentID, name string, behavior onedrive.ConflictBehavior) (*onedrive.Folder, error)
	Upload(ctx context.Context, file onedrive.FileInfo, opts ...onedrive.LargeFileOption) (*onedrive.File, error)
	ResumeUpload(ctx context.Context, file onedrive.FileInfo, session *onedrive.UploadSession, opts ...onedrive.LargeFileOption) (*onedrive.File, error)
	GetUploadSessionStatus(ctx context.Context, uploadURL string) (*onedrive.UploadSession, error)
	CancelUploadSession(ctx context.Context, uploadURL string) error
}

// LiveSDK calls Microsoft Graph through an onedrive.Client.
type LiveSDK struct {
	*onedrive.Client
}

// NewLiveSDK wraps client.
func NewLiveSDK(client *onedrive.Client) *LiveSDK {
	return &LiveSDK{Client: client}
}

// ResumeUpload continues session with the content in file.
func (s *LiveSDK) ResumeUpload(ctx context.Context, file onedrive.FileInfo, session *onedrive.UploadSession, opts ...onedrive.LargeFileOption) (*onedrive.File, error) {
	u, err := s.NewLargeFileUpload(file, opts...)
	if err != nil {
		return nil, err
	}
	return u.Resume(ctx, session)
}

var _ SDK = (*LiveSDK)(nil)
