package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-personal/internal/app"
	"github.com/tonimelisma/onedrive-personal/internal/ui"
	"github.com/tonimelisma/onedrive-personal/pkg/onedrive"
)

var downloadCmd = &cobra.Command{
	Use:   "download <remote-path> [local-path]",
	Short: "Download a file from OneDrive",
	Long: `Downloads a remote file. Without a local path the file is written to the
current directory under its remote name. If local-path is an existing
directory the file is placed inside it.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return downloadLogic(a, cmd, args)
	},
}

func downloadLogic(a *app.App, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	overwrite, _ := cmd.Flags().GetBool("overwrite")

	ref, err := onedrive.DrivePath(args[0])
	if err != nil {
		return err
	}
	item, err := a.SDK.GetDriveItem(ctx, ref)
	if err != nil {
		return err
	}
	file, ok := item.(*onedrive.File)
	if !ok {
		return fmt.Errorf("%q is a folder, only files can be downloaded", args[0])
	}

	localPath, err := downloadTarget(file.Name, args)
	if err != nil {
		return err
	}

	out, err := onedrive.SecureCreateFile(localPath, overwrite)
	if err != nil {
		return err
	}
	written, err := copyDownload(a, cmd, ref, file, out)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(localPath)
		return fmt.Errorf("downloading %s: %w", args[0], err)
	}

	a.Logger.Debug("download complete", "path", localPath, "bytes", written)
	ui.Success(a.Out, "Downloaded '%s' to '%s' (%s)", args[0], localPath, ui.FormatBytes(written))
	return nil
}

// downloadTarget picks the local file for a download of name.
func downloadTarget(name string, args []string) (string, error) {
	if err := onedrive.ValidateFileName(name); err != nil {
		return "", err
	}
	target := name
	if len(args) > 1 {
		target = args[1]
		if fi, err := os.Stat(target); err == nil && fi.IsDir() {
			target = filepath.Join(target, name)
		}
	}
	return onedrive.SanitizeLocalPath(target)
}

func copyDownload(a *app.App, cmd *cobra.Command, ref string, file *onedrive.File, out io.Writer) (int64, error) {
	body, err := a.SDK.DownloadDriveItem(commandContext(cmd), ref)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	progress := ui.NewProgress(a.Err, file.Size, "Downloading "+file.Name, a.Interactive)
	defer progress.Finish()

	written, err := io.Copy(io.MultiWriter(out, progress.Writer()), body)
	if err != nil {
		return written, err
	}
	if written != file.Size {
		return written, fmt.Errorf("download ended after %d of %d bytes", written, file.Size)
	}
	return written, nil
}
