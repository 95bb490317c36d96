package cmd

import (
	"github.com/spf13/cobra"
)

// InitItemsCommands registers the drive item commands on rootCmd.
func InitItemsCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(approotCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(uploadStatusCmd)
	rootCmd.AddCommand(uploadCancelCmd)

	mkdirCmd.Flags().String("conflict", "fail", "What to do if the folder exists: fail, replace or rename")

	rmCmd.Flags().Int("jobs", 4, "Number of items deleted concurrently")

	updateCmd.Flags().String("name", "", "New name")
	updateCmd.Flags().String("description", "", "New description")
	updateCmd.Flags().String("move-to", "", "Remote folder to move the item into")

	downloadCmd.Flags().Bool("overwrite", false, "Replace the local file if it exists")

	uploadCmd.Flags().String("name", "", "Remote name (default: the local file name)")
	uploadCmd.Flags().String("conflict", "fail", "What to do if the file exists: fail, replace or rename")
	uploadCmd.Flags().String("description", "", "Description to set on the uploaded file")
	uploadCmd.Flags().Bool("defer-commit", false, "Create the file only after an explicit commit of the last chunk")
}
