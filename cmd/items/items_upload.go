package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/onedrive-personal/internal/app"
	"github.com/tonimelisma/onedrive-personal/internal/session"
	"github.com/tonimelisma/onedrive-personal/internal/ui"
	"github.com/tonimelisma/onedrive-personal/pkg/onedrive"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <local-file> [remote-folder]",
	Short: "Upload a file",
	Long: `Uploads a local file into a remote folder (the drive root by default).
Files up to 4 MiB are sent in one request; larger files go through a
resumable upload session. An interrupted upload is resumed when the same
command is run again.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return uploadLogic(a, cmd, args)
	},
}

var uploadStatusCmd = &cobra.Command{
	Use:   "upload-status [<local-file> <remote-path>]",
	Short: "Show pending resumable uploads",
	Long:  "Without arguments lists the saved upload sessions. With a local file and its remote path, asks OneDrive which bytes it still expects.",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("accepts 0 or 2 args, received %d", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return uploadStatusLogic(a, cmd, args)
	},
}

var uploadCancelCmd = &cobra.Command{
	Use:   "upload-cancel <local-file> <remote-path>",
	Short: "Cancel a pending resumable upload",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return uploadCancelLogic(a, cmd, args)
	},
}

func uploadLogic(a *app.App, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	remoteFolder := "/"
	if len(args) > 1 {
		remoteFolder = path.Clean("/" + args[1])
	}
	name, _ := cmd.Flags().GetString("name")
	description, _ := cmd.Flags().GetString("description")
	deferCommit, _ := cmd.Flags().GetBool("defer-commit")
	behavior, err := conflictFlag(cmd)
	if err != nil {
		return err
	}

	localPath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", args[0])
	}

	if name == "" {
		// macOS hands out decomposed names; OneDrive stores composed ones.
		name = norm.NFC.String(filepath.Base(localPath))
	}
	if err := onedrive.ValidateFileName(name); err != nil {
		return err
	}
	remotePath := joinRemotePath(remoteFolder, name)

	folder, err := resolveFolder(ctx, a, remoteFolder)
	if err != nil {
		return fmt.Errorf("resolving destination folder: %w", err)
	}

	state := &session.State{
		LocalPath:  localPath,
		RemotePath: remotePath,
		FolderID:   folder.ID,
		Name:       name,
		Size:       fi.Size(),
		ModTime:    fi.ModTime(),
		ChunkSize:  a.Config.ChunkSizeBytes(),
	}
	file := onedrive.FileInfo{Name: name, FolderID: folder.ID, Size: fi.Size(), Content: f}

	progress := ui.NewProgress(a.Err, fi.Size(), "Uploading "+name, a.Interactive)
	opts := append(a.UploadOptions(),
		onedrive.WithConflictBehavior(behavior),
		onedrive.WithDescription(description),
		onedrive.WithDeferCommit(deferCommit),
		onedrive.WithProgress(func(uploaded, _ int64) { progress.Set(uploaded) }),
		onedrive.WithSessionCallback(func(s *onedrive.UploadSession) {
			state.Session = *s
			if err := a.Sessions.Save(state); err != nil {
				a.Logger.Warn("could not save upload session, the upload cannot be resumed",
					slog.String("error", err.Error()))
			}
		}),
	)

	uploaded, err := startOrResume(a, cmd, file, state, opts)
	progress.Finish()
	if err != nil {
		if saved, _ := a.Sessions.Load(localPath, remotePath); saved != nil {
			fmt.Fprintln(a.Err, "The upload session was saved; run the same command again to resume.")
		}
		return fmt.Errorf("uploading %s: %w", args[0], err)
	}

	if err := a.Sessions.Delete(localPath, remotePath); err != nil {
		a.Logger.Warn("could not remove upload session state", slog.String("error", err.Error()))
	}
	ui.Success(a.Out, "Uploaded '%s' to '%s' (%s, ID %s)", args[0], remotePath, ui.FormatBytes(uploaded.Size), uploaded.ID)
	return nil
}

// startOrResume continues a saved session for the same file and chunk size,
// and starts a new upload otherwise.
func startOrResume(a *app.App, cmd *cobra.Command, file onedrive.FileInfo, state *session.State, opts []onedrive.LargeFileOption) (*onedrive.File, error) {
	ctx := commandContext(cmd)
	saved, err := a.Sessions.Load(state.LocalPath, state.RemotePath)
	if err != nil {
		return nil, fmt.Errorf("loading saved upload session: %w", err)
	}

	if saved != nil {
		if saved.Matches(state.Size, state.ModTime) && saved.ChunkSize == state.ChunkSize && saved.FolderID == state.FolderID {
			fmt.Fprintf(a.Err, "Resuming upload of %s\n", state.LocalPath)
			state.Session = saved.Session
			uploaded, err := a.SDK.ResumeUpload(ctx, file, &state.Session, opts...)
			if err == nil || (!errors.Is(err, onedrive.ErrSessionExpired) && !errors.Is(err, onedrive.ErrNotFound)) {
				return uploaded, err
			}
			a.Logger.Info("saved upload session is gone, starting over", slog.String("error", err.Error()))
		} else {
			a.Logger.Info("local file changed since the upload started, starting over",
				slog.String("path", state.LocalPath))
		}
		if err := a.Sessions.Delete(state.LocalPath, state.RemotePath); err != nil {
			return nil, err
		}
		if seeker, ok := file.Content.(io.Seeker); ok {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return nil, err
			}
		}
	}

	return a.SDK.Upload(ctx, file, opts...)
}

func uploadStatusLogic(a *app.App, cmd *cobra.Command, args []string) error {
	now := a.Now()
	if len(args) == 0 {
		states, err := a.Sessions.List()
		if err != nil {
			return err
		}
		ui.DisplaySessions(a.Out, states, now)
		return nil
	}

	state, err := loadState(a, args)
	if err != nil {
		return err
	}
	status, err := a.SDK.GetUploadSessionStatus(commandContext(cmd), state.Session.UploadURL)
	if errors.Is(err, onedrive.ErrNotFound) {
		_ = a.Sessions.Delete(state.LocalPath, state.RemotePath)
		return fmt.Errorf("the upload session no longer exists on OneDrive: %w", err)
	}
	if err != nil {
		return err
	}
	ui.DisplayUploadStatus(a.Out, state, status, now)
	return nil
}

func uploadCancelLogic(a *app.App, cmd *cobra.Command, args []string) error {
	state, err := loadState(a, args)
	if err != nil {
		return err
	}
	err = a.SDK.CancelUploadSession(commandContext(cmd), state.Session.UploadURL)
	if err != nil && !errors.Is(err, onedrive.ErrNotFound) {
		return err
	}
	if err := a.Sessions.Delete(state.LocalPath, state.RemotePath); err != nil {
		return err
	}
	ui.Success(a.Out, "Canceled upload of '%s' to '%s'", state.LocalPath, state.RemotePath)
	return nil
}

func loadState(a *app.App, args []string) (*session.State, error) {
	localPath, err := filepath.Abs(args[0])
	if err != nil {
		return nil, err
	}
	remotePath := path.Clean("/" + args[1])
	state, err := a.Sessions.Load(localPath, remotePath)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("no pending upload of %s to %s", args[0], remotePath)
	}
	return state, nil
}
