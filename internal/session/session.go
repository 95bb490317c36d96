// Package session persists upload sessions between CLI runs so a failed or
// interrupted upload can be resumed. State files are keyed by the local and
// remote path and guarded by file locks.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/tonimelisma/onedrive-personal/pkg/onedrive"
)

// ErrLocked means another process holds the state file.
var ErrLocked = errors.New("session: state file is locked by another process")

// State is what is needed to resume one upload.
type State struct {
	Session    onedrive.UploadSession `json:"session"`
	LocalPath  string                 `json:"localPath"`
	RemotePath string                 `json:"remotePath"`
	FolderID   string                 `json:"folderId"`
	Name       string                 `json:"name"`
	Size       int64                  `json:"size"`
	ModTime    time.Time              `json:"modTime"`
	// ChunkSize must match the resumed upload so chunk boundaries stay aligned.
	ChunkSize int64 `json:"chunkSize"`
}

// Matches reports whether the local file still looks like the one the
// session was created for.
func (s *State) Matches(size int64, modTime time.Time) bool {
	return s.Size == size && s.ModTime.Equal(modTime)
}

// Manager stores states in a directory.
type Manager struct {
	dir string
	now func() time.Time
}

// NewManager returns a Manager using the user cache directory.
func NewManager() (*Manager, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("could not get user cache directory: %w", err)
	}
	return NewManagerWithDir(filepath.Join(cacheDir, "onedrive-personal", "sessions")), nil
}

// NewManagerWithDir returns a Manager storing states in dir.
func NewManagerWithDir(dir string) *Manager {
	return &Manager{dir: dir, now: time.Now}
}

// Dir is the state directory.
func (m *Manager) Dir() string { return m.dir }

// FilePath returns the state file for an upload of localPath to remotePath.
func (m *Manager) FilePath(localPath, remotePath string) string {
	sum := sha256.Sum256([]byte(localPath + ":" + remotePath))
	return filepath.Join(m.dir, hex.EncodeToString(sum[:])+".json")
}

// Save writes state, replacing a previous one for the same paths.
func (m *Manager) Save(state *State) error {
	filePath := m.FilePath(state.LocalPath, state.RemotePath)

	unlock, err := tryLock(filePath)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal session state: %w", err)
	}
	return os.WriteFile(filePath, data, 0o600)
}

// Load returns the saved state, or nil when there is none. Expired states
// are deleted and reported as nil.
func (m *Manager) Load(localPath, remotePath string) (*State, error) {
	filePath := m.FilePath(localPath, remotePath)

	state, err := m.read(filePath)
	if err != nil || state == nil {
		return nil, err
	}
	if state.Session.Expired(m.now()) {
		_ = m.Delete(localPath, remotePath)
		return nil, nil
	}
	return state, nil
}

func (m *Manager) read(filePath string) (*State, error) {
	unlock, err := tryLock(filePath)
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read session file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("could not unmarshal session state %s: %w", filepath.Base(filePath), err)
	}
	return &state, nil
}

// Delete removes the state for the given paths.
func (m *Manager) Delete(localPath, remotePath string) error {
	filePath := m.FilePath(localPath, remotePath)

	unlock, err := tryLock(filePath)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("could not delete session file: %w", err)
	}
	_ = os.Remove(filePath + ".lock")
	return nil
}

// List returns every unexpired state, oldest expiry first. Expired and
// unreadable files are skipped.
func (m *Manager) List() ([]*State, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not list session directory: %w", err)
	}

	var states []*State
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		state, err := m.read(filepath.Join(m.dir, e.Name()))
		if err != nil || state == nil || state.Session.Expired(m.now()) {
			continue
		}
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Session.ExpirationDateTime.Before(states[j].Session.ExpirationDateTime)
	})
	return states, nil
}

func tryLock(filePath string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return nil, fmt.Errorf("could not create session directory: %w", err)
	}
	lock := flock.New(filePath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("could not acquire file lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return func() { _ = lock.Unlock() }, nil
}
