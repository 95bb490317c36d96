package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-personal/pkg/onedrive"
)

func testState(expiry time.Time) *State {
	return &State{
		Session: onedrive.UploadSession{
			UploadURL:          "https://up.example/rup/1",
			ExpirationDateTime: expiry,
		},
		LocalPath:  "/home/someone/video.mp4",
		RemotePath: "/Videos/video.mp4",
		FolderID:   "FOLDER",
		Name:       "video.mp4",
		Size:       20 << 20,
		ModTime:    time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		ChunkSize:  onedrive.DefaultChunkSize,
	}
}

func TestSaveLoadDelete(t *testing.T) {
	m := NewManagerWithDir(filepath.Join(t.TempDir(), "sessions"))
	state := testState(time.Now().Add(time.Hour).UTC().Truncate(time.Second))

	require.NoError(t, m.Save(state))

	info, err := os.Stat(m.FilePath(state.LocalPath, state.RemotePath))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := m.Load(state.LocalPath, state.RemotePath)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state.Session.UploadURL, loaded.Session.UploadURL)
	assert.True(t, state.Session.ExpirationDateTime.Equal(loaded.Session.ExpirationDateTime))
	assert.Equal(t, state.FolderID, loaded.FolderID)
	assert.True(t, loaded.Matches(state.Size, state.ModTime))
	assert.False(t, loaded.Matches(state.Size+1, state.ModTime))

	require.NoError(t, m.Delete(state.LocalPath, state.RemotePath))
	loaded, err = m.Load(state.LocalPath, state.RemotePath)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadMissing(t *testing.T) {
	m := NewManagerWithDir(filepath.Join(t.TempDir(), "never-created"))
	state, err := m.Load("/a", "/b")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestLoadDropsExpired(t *testing.T) {
	m := NewManagerWithDir(t.TempDir())
	state := testState(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, m.Save(state))

	m.now = func() time.Time { return time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC) }
	loaded, err := m.Load(state.LocalPath, state.RemotePath)
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.NoFileExists(t, m.FilePath(state.LocalPath, state.RemotePath))
}

func TestFilePathIsDeterministic(t *testing.T) {
	m := NewManagerWithDir("/state")
	a := m.FilePath("/local/a", "/remote/a")
	assert.Equal(t, a, m.FilePath("/local/a", "/remote/a"))
	assert.NotEqual(t, a, m.FilePath("/local/a", "/remote/b"))
	assert.Equal(t, "/state", filepath.Dir(a))
	assert.Len(t, filepath.Base(a), 64+len(".json"))
}

func TestLockedState(t *testing.T) {
	m := NewManagerWithDir(t.TempDir())
	state := testState(time.Now().Add(time.Hour))
	require.NoError(t, m.Save(state))

	lock := flock.New(m.FilePath(state.LocalPath, state.RemotePath) + ".lock")
	locked, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer lock.Unlock()

	_, err = m.Load(state.LocalPath, state.RemotePath)
	assert.ErrorIs(t, err, ErrLocked)
	assert.ErrorIs(t, m.Save(state), ErrLocked)
}

func TestList(t *testing.T) {
	m := NewManagerWithDir(t.TempDir())
	now := time.Now()

	later := testState(now.Add(2 * time.Hour))
	later.LocalPath = "/later"
	sooner := testState(now.Add(time.Hour))
	sooner.LocalPath = "/sooner"
	expired := testState(now.Add(-time.Hour))
	expired.LocalPath = "/expired"

	for _, s := range []*State{later, sooner, expired} {
		require.NoError(t, m.Save(s))
	}
	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), "garbage.json"), []byte("{"), 0o600))

	states, err := m.List()
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "/sooner", states[0].LocalPath)
	assert.Equal(t, "/later", states[1].LocalPath)

	empty, err := NewManagerWithDir(filepath.Join(t.TempDir(), "none")).List()
	require.NoError(t, err)
	assert.Empty(t, empty)
}
