package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-personal/internal/app"
	"github.com/tonimelisma/onedrive-personal/internal/ui"
	"github.com/tonimelisma/onedrive-personal/pkg/onedrive"
	"github.com/tonimelisma/onedrive-personal/pkg/quickxorhash"
)

var approotCmd = &cobra.Command{
	Use:   "approot",
	Short: "Show the application folder",
	Long:  "Shows the metadata of the folder OneDrive reserves for this application (special/approot).",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return approotLogic(a, cmd, args)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <remote-path>",
	Short: "Show the metadata of a file or folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return getLogic(a, cmd, args)
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [remote-path]",
	Short: "List the children of a folder",
	Long:  "Lists the files and folders inside a remote folder. Without a path the drive root is listed.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return lsLogic(a, cmd, args)
	},
}

var hashCmd = &cobra.Command{
	Use:   "hash <local-file>...",
	Short: "Print the QuickXorHash of local files",
	Long:  "Computes the QuickXorHash OneDrive reports for file content, so local and remote copies can be compared.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return hashLogic(cmd, args)
	},
}

func approotLogic(a *app.App, cmd *cobra.Command, args []string) error {
	folder, err := a.SDK.GetAppRoot(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("getting app folder: %w", err)
	}
	ui.DisplayDriveItem(a.Out, folder)
	return nil
}

func getLogic(a *app.App, cmd *cobra.Command, args []string) error {
	item, err := getItem(commandContext(cmd), a, args[0])
	if err != nil {
		return err
	}
	ui.DisplayDriveItem(a.Out, item)
	return nil
}

func lsLogic(a *app.App, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	remotePath := "/"
	if len(args) > 0 {
		remotePath = args[0]
	}

	item, err := getItem(ctx, a, remotePath)
	if err != nil {
		return err
	}
	folder, ok := item.(*onedrive.Folder)
	if !ok {
		// Listing a file shows the file itself.
		ui.DisplayDriveItems(a.Out, []onedrive.DriveItem{item}, fmt.Sprintf("%s:", remotePath))
		return nil
	}

	items, err := a.SDK.ListDriveItems(ctx, folder.ID)
	if err != nil {
		return err
	}
	ui.DisplayDriveItems(a.Out, items, fmt.Sprintf("Items in %s:", remotePath))
	return nil
}

func hashLogic(cmd *cobra.Command, args []string) error {
	for _, p := range args {
		sum, err := hashFile(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, p)
	}
	return nil
}

func hashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum, _, err := quickxorhash.FromReader(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", p, err)
	}
	return sum, nil
}
