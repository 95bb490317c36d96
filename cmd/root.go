// Package cmd defines the onedrive-personal command line: the root command,
// its global flags and the auth and config command groups. The item commands
// live in cmd/items.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	cmdItems "github.com/tonimelisma/onedrive-personal/cmd/items"
	"github.com/tonimelisma/onedrive-personal/internal/app"
	"github.com/tonimelisma/onedrive-personal/pkg/onedrive"
)

var rootCmd = &cobra.Command{
	Use:   "onedrive-personal",
	Short: "A command line client for personal OneDrive",
	Long: `onedrive-personal talks to a personal OneDrive through Microsoft Graph.

It can show and list items, create folders, rename, move and delete items,
download files and upload files of any size. Large uploads use resumable
sessions: an interrupted upload continues where it stopped when the same
command is run again.

Credentials come from ONEDRIVE_ACCESS_TOKEN or from a token file imported
with 'onedrive-personal auth import'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute runs the root command. Interrupts cancel the running request;
// an interrupted upload keeps its session for the next run.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err)
	if hint := errorHint(err); hint != "" {
		fmt.Fprintln(w, hint)
	}
}

// errorHint suggests what to do about well known failures.
func errorHint(err error) string {
	switch {
	case errors.Is(err, app.ErrNotLoggedIn):
		return ""
	case errors.Is(err, onedrive.ErrAuthentication):
		return "OneDrive rejected the credentials. Import a fresh token with 'onedrive-personal auth import <token.json>'."
	case errors.Is(err, context.Canceled):
		return "Interrupted."
	case errors.Is(err, onedrive.ErrSessionExpired):
		return "The upload session expired. Run the upload again to start a new one."
	}
	return ""
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default $XDG_CONFIG_HOME/onedrive-personal/config.toml, or $ONEDRIVE_CONFIG_PATH)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log requests and SDK internals at debug level")

	cmdItems.InitItemsCommands(rootCmd)
}
