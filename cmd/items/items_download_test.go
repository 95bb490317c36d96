package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-personal/pkg/onedrive"
)

func downloadMock(body string, size int64) *MockSDK {
	return &MockSDK{
		GetDriveItemFunc: itemsByRef(map[string]onedrive.DriveItem{
			"root:/Docs/report.txt": file("F1", "report.txt", size),
			"root:/Docs":            folder("D1", "Docs"),
		}),
		DownloadDriveItemFunc: func(ctx context.Context, ref string) (io.ReadCloser, error) {
			return nopCloser(body), nil
		},
	}
}

func TestDownloadLogic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.txt")

	a, out := newTestApp(t, downloadMock("hello world", 11))
	require.NoError(t, downloadLogic(a, newFlagCommand(t, nil), []string{"/Docs/report.txt", target}))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Contains(t, out.String(), "Downloaded '/Docs/report.txt'")
}

func TestDownloadLogicIntoDirectory(t *testing.T) {
	dir := t.TempDir()

	a, _ := newTestApp(t, downloadMock("abc", 3))
	require.NoError(t, downloadLogic(a, newFlagCommand(t, nil), []string{"/Docs/report.txt", dir}))

	data, err := os.ReadFile(filepath.Join(dir, "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestDownloadLogicExistingFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(target, []byte("keep"), 0o600))

	a, _ := newTestApp(t, downloadMock("new", 3))
	err := downloadLogic(a, newFlagCommand(t, nil), []string{"/Docs/report.txt", target})
	assert.ErrorIs(t, err, onedrive.ErrFileExists)
	data, _ := os.ReadFile(target)
	assert.Equal(t, "keep", string(data), "existing file untouched")

	require.NoError(t, downloadLogic(a, newFlagCommand(t, map[string]string{"overwrite": "true"}), []string{"/Docs/report.txt", target}))
	data, _ = os.ReadFile(target)
	assert.Equal(t, "new", string(data))
}

func TestDownloadLogicShortBody(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.txt")

	a, _ := newTestApp(t, downloadMock("abc", 10))
	err := downloadLogic(a, newFlagCommand(t, nil), []string{"/Docs/report.txt", target})
	assert.ErrorContains(t, err, "3 of 10 bytes")
	assert.NoFileExists(t, target, "partial download removed")
}

func TestDownloadLogicRejects(t *testing.T) {
	dir := t.TempDir()
	a, _ := newTestApp(t, downloadMock("abc", 3))

	err := downloadLogic(a, newFlagCommand(t, nil), []string{"/Docs", filepath.Join(dir, "x")})
	assert.ErrorContains(t, err, "is a folder")

	err = downloadLogic(a, newFlagCommand(t, nil), []string{"/Docs/report.txt", "../escape.txt"})
	assert.ErrorIs(t, err, onedrive.ErrPathTraversal)
}
