package cmd

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/onedrive-personal/internal/app"
	"github.com/tonimelisma/onedrive-personal/internal/ui"
	"github.com/tonimelisma/onedrive-personal/pkg/onedrive"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <remote-path>",
	Short: "Create a folder",
	Long:  "Creates a folder at the given remote path. The parent folder must exist.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return mkdirLogic(a, cmd, args)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <remote-path>...",
	Short: "Delete files or folders",
	Long:  "Moves the given items to the OneDrive recycle bin. Folders are deleted with their contents.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return rmLogic(a, cmd, args)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <remote-path>",
	Short: "Rename, describe or move an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return updateLogic(a, cmd, args)
	},
}

func mkdirLogic(a *app.App, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	parentPath, name := splitRemotePath(args[0])
	if name == "/" {
		return errors.New("the drive root already exists")
	}
	behavior, err := conflictFlag(cmd)
	if err != nil {
		return err
	}

	parent, err := resolveFolder(ctx, a, parentPath)
	if err != nil {
		return fmt.Errorf("resolving parent folder: %w", err)
	}
	folder, err := a.SDK.CreateFolder(ctx, parent.ID, name, behavior)
	if err != nil {
		return err
	}
	ui.Success(a.Out, "Folder '%s' created with ID %s", folder.Name, folder.ID)
	return nil
}

func rmLogic(a *app.App, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	jobs, _ := cmd.Flags().GetInt("jobs")
	if jobs < 1 {
		jobs = 1
	}

	refs := make([]string, len(args))
	for i, p := range args {
		ref, err := onedrive.DrivePath(p)
		if err != nil {
			return err
		}
		if ref == "root" {
			return errors.New("refusing to delete the drive root")
		}
		refs[i] = ref
	}

	// Every path is attempted; failures are reported together.
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(jobs)
	for i, ref := range refs {
		g.Go(func() error {
			err := a.SDK.DeleteDriveItem(ctx, ref)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			ui.Success(a.Out, "Deleted %s", args[i])
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func updateLogic(a *app.App, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	name, _ := cmd.Flags().GetString("name")
	description, _ := cmd.Flags().GetString("description")
	moveTo, _ := cmd.Flags().GetString("move-to")
	if name == "" && description == "" && moveTo == "" {
		return errors.New("nothing to update: pass --name, --description or --move-to")
	}
	if name != "" {
		if err := onedrive.ValidateFileName(name); err != nil {
			return err
		}
	}

	item, err := getItem(ctx, a, args[0])
	if err != nil {
		return err
	}
	update := onedrive.ItemUpdate{Name: name, Description: description}
	if moveTo != "" {
		dest, err := resolveFolder(ctx, a, moveTo)
		if err != nil {
			return fmt.Errorf("resolving destination folder: %w", err)
		}
		update.ParentReference = &onedrive.ItemParentReference{ID: dest.ID}
	}

	updated, err := a.SDK.UpdateDriveItem(ctx, item.ItemInfo().ID, update)
	if err != nil {
		return err
	}
	ui.DisplayDriveItem(a.Out, updated)
	return nil
}
