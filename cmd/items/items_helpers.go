// Package cmd (items_helpers.go) holds the path helpers shared by the item
// commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-personal/internal/app"
	"github.com/tonimelisma/onedrive-personal/pkg/onedrive"
)

// joinRemotePath joins a remote folder and a name with forward slashes.
// OneDrive paths never use the OS separator.
//
//	joinRemotePath("/Documents", "a.txt") -> "/Documents/a.txt"
//	joinRemotePath("", "a.txt")          -> "/a.txt"
//	joinRemotePath("/A/", "/b/c.doc")    -> "/A/b/c.doc"
func joinRemotePath(dir, file string) string {
	if dir == "" || dir == "/" {
		return "/" + strings.TrimPrefix(file, "/")
	}
	result := strings.TrimSuffix(dir, "/") + "/" + strings.TrimPrefix(file, "/")
	if !strings.HasPrefix(result, "/") {
		result = "/" + result
	}
	return result
}

// splitRemotePath returns the parent folder and final name of p.
func splitRemotePath(p string) (parent, name string) {
	cleaned := path.Clean("/" + p)
	return path.Dir(cleaned), path.Base(cleaned)
}

// commandContext returns the command's context, or Background for commands
// that were never executed through cobra (tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// getItem fetches the item at a user supplied remote path.
func getItem(ctx context.Context, a *app.App, remotePath string) (onedrive.DriveItem, error) {
	ref, err := onedrive.DrivePath(remotePath)
	if err != nil {
		return nil, err
	}
	return a.SDK.GetDriveItem(ctx, ref)
}

var errNotAFolder = errors.New("not a folder")

// resolveFolder fetches the folder at remotePath.
func resolveFolder(ctx context.Context, a *app.App, remotePath string) (*onedrive.Folder, error) {
	item, err := getItem(ctx, a, remotePath)
	if err != nil {
		return nil, err
	}
	folder, ok := item.(*onedrive.Folder)
	if !ok {
		return nil, fmt.Errorf("%q: %w", remotePath, errNotAFolder)
	}
	return folder, nil
}

func conflictFlag(cmd *cobra.Command) (onedrive.ConflictBehavior, error) {
	value, _ := cmd.Flags().GetString("conflict")
	behavior := onedrive.ConflictBehavior(value)
	if !behavior.Valid() {
		return "", fmt.Errorf("invalid --conflict %q: want fail, replace or rename", value)
	}
	return behavior, nil
}
