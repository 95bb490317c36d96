package cmd

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-personal/pkg/onedrive"
)

func TestMkdirLogic(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		flags      map[string]string
		items      map[string]onedrive.DriveItem
		wantParent string
		wantName   string
		wantMode   onedrive.ConflictBehavior
		wantErr    string
	}{
		{
			name:       "nested",
			path:       "/Documents/Reports",
			items:      map[string]onedrive.DriveItem{"root:/Documents": folder("DOCS", "Documents")},
			wantParent: "DOCS",
			wantName:   "Reports",
			wantMode:   onedrive.ConflictFail,
		},
		{
			name:       "under root with rename",
			path:       "Photos",
			flags:      map[string]string{"conflict": "rename"},
			items:      map[string]onedrive.DriveItem{"root": folder("ROOT", "root")},
			wantParent: "ROOT",
			wantName:   "Photos",
			wantMode:   onedrive.ConflictRename,
		},
		{
			name:    "parent is a file",
			path:    "/notes.txt/sub",
			items:   map[string]onedrive.DriveItem{"root:/notes.txt": file("F", "notes.txt", 1)},
			wantErr: "not a folder",
		},
		{
			name:    "root",
			path:    "/",
			wantErr: "already exists",
		},
		{
			name:    "bad conflict",
			path:    "/x",
			flags:   map[string]string{"conflict": "merge"},
			wantErr: "invalid --conflict",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			a, out := newTestApp(t, &MockSDK{
				GetDriveItemFunc: itemsByRef(tt.items),
				CreateFolderFunc: func(ctx context.Context, parentID, name string, behavior onedrive.ConflictBehavior) (*onedrive.Folder, error) {
					called = true
					assert.Equal(t, tt.wantParent, parentID)
					assert.Equal(t, tt.wantName, name)
					assert.Equal(t, tt.wantMode, behavior)
					return folder("NEW", name), nil
				},
			})

			err := mkdirLogic(a, newFlagCommand(t, tt.flags), []string{tt.path})
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				assert.False(t, called)
				return
			}
			require.NoError(t, err)
			assert.True(t, called)
			assert.Contains(t, out.String(), "with ID NEW")
		})
	}
}

func TestRmLogic(t *testing.T) {
	t.Run("deletes every path", func(t *testing.T) {
		var (
			mu   sync.Mutex
			refs []string
		)
		a, out := newTestApp(t, &MockSDK{
			DeleteDriveItemFunc: func(ctx context.Context, ref string) error {
				mu.Lock()
				defer mu.Unlock()
				refs = append(refs, ref)
				return nil
			},
		})

		err := rmLogic(a, newFlagCommand(t, map[string]string{"jobs": "2"}), []string{"/a.txt", "/b/c.txt", "d"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"root:/a.txt", "root:/b/c.txt", "root:/d"}, refs)
		assert.Contains(t, out.String(), "Deleted /b/c.txt")
	})

	t.Run("reports every failure", func(t *testing.T) {
		a, out := newTestApp(t, &MockSDK{
			DeleteDriveItemFunc: func(ctx context.Context, ref string) error {
				if ref == "root:/ok" {
					return nil
				}
				return errors.New("failed " + ref)
			},
		})

		err := rmLogic(a, newFlagCommand(t, nil), []string{"/x", "/ok", "/y"})
		require.Error(t, err)
		assert.ErrorContains(t, err, "failed root:/x")
		assert.ErrorContains(t, err, "failed root:/y")
		assert.Contains(t, out.String(), "Deleted /ok")
	})

	t.Run("refuses root", func(t *testing.T) {
		a, _ := newTestApp(t, &MockSDK{
			DeleteDriveItemFunc: func(ctx context.Context, ref string) error {
				t.Fatal("nothing may be deleted")
				return nil
			},
		})
		assert.ErrorContains(t, rmLogic(a, newFlagCommand(t, nil), []string{"/ok", "/"}), "drive root")
	})

	t.Run("validates before deleting", func(t *testing.T) {
		a, _ := newTestApp(t, &MockSDK{
			DeleteDriveItemFunc: func(ctx context.Context, ref string) error {
				t.Fatal("nothing may be deleted")
				return nil
			},
		})
		err := rmLogic(a, newFlagCommand(t, nil), []string{"/ok", "/../etc"})
		assert.ErrorIs(t, err, onedrive.ErrPathTraversal)
	})
}

func TestUpdateLogic(t *testing.T) {
	items := map[string]onedrive.DriveItem{
		"root:/old.txt": file("F1", "old.txt", 5),
		"root:/Archive": folder("ARCH", "Archive"),
	}

	t.Run("rename and move", func(t *testing.T) {
		a, out := newTestApp(t, &MockSDK{
			GetDriveItemFunc: itemsByRef(items),
			UpdateDriveItemFunc: func(ctx context.Context, itemID string, update onedrive.ItemUpdate) (onedrive.DriveItem, error) {
				assert.Equal(t, "F1", itemID)
				assert.Equal(t, "new.txt", update.Name)
				assert.Equal(t, "kept", update.Description)
				require.NotNil(t, update.ParentReference)
				assert.Equal(t, "ARCH", update.ParentReference.ID)
				return file("F1", "new.txt", 5), nil
			},
		})

		cmd := newFlagCommand(t, map[string]string{"name": "new.txt", "description": "kept", "move-to": "/Archive"})
		require.NoError(t, updateLogic(a, cmd, []string{"/old.txt"}))
		assert.Contains(t, out.String(), "new.txt")
	})

	t.Run("description only", func(t *testing.T) {
		a, _ := newTestApp(t, &MockSDK{
			GetDriveItemFunc: itemsByRef(items),
			UpdateDriveItemFunc: func(ctx context.Context, itemID string, update onedrive.ItemUpdate) (onedrive.DriveItem, error) {
				assert.Empty(t, update.Name)
				assert.Nil(t, update.ParentReference)
				return file("F1", "old.txt", 5), nil
			},
		})
		require.NoError(t, updateLogic(a, newFlagCommand(t, map[string]string{"description": "d"}), []string{"/old.txt"}))
	})

	t.Run("nothing to do", func(t *testing.T) {
		a, _ := newTestApp(t, &MockSDK{})
		assert.ErrorContains(t, updateLogic(a, newFlagCommand(t, nil), []string{"/old.txt"}), "nothing to update")
	})

	t.Run("invalid name", func(t *testing.T) {
		a, _ := newTestApp(t, &MockSDK{})
		err := updateLogic(a, newFlagCommand(t, map[string]string{"name": "a:b"}), []string{"/old.txt"})
		assert.ErrorIs(t, err, onedrive.ErrInvalidPath)
	})

	t.Run("destination is a file", func(t *testing.T) {
		a, _ := newTestApp(t, &MockSDK{GetDriveItemFunc: itemsByRef(items)})
		err := updateLogic(a, newFlagCommand(t, map[string]string{"move-to": "/old.txt"}), []string{"/old.txt"})
		assert.ErrorIs(t, err, errNotAFolder)
	})
}
