package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-personal/internal/app"
	"github.com/tonimelisma/onedrive-personal/internal/config"
	"github.com/tonimelisma/onedrive-personal/internal/tokenstore"
	"github.com/tonimelisma/onedrive-personal/internal/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored credentials",
	Long: `Manages the OAuth2 token file. Tokens are obtained with any tool that
can run the Microsoft identity platform flows and imported here; refreshed
tokens are written back to the file automatically.`,
}

var authImportCmd = &cobra.Command{
	Use:   "import <token.json|->",
	Short: "Import an OAuth2 token",
	Long:  `Reads a token JSON (access_token, refresh_token, expiry) from a file, or from stdin with "-", and stores it in the token file.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return authImportLogic(a, cmd, args)
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what credentials are available",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return authStatusLogic(a, cmd, args)
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete the stored token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return authLogoutLogic(a, cmd, args)
	},
}

func authImportLogic(a *app.App, cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("reading token: %w", err)
	}

	if _, err := a.Tokens.Import(data); err != nil {
		return err
	}
	ui.Success(a.Out, "Token saved to %s", a.Tokens.Path())
	if a.Config.AccessToken != "" {
		fmt.Fprintf(a.Out, "Note: %s is set and takes precedence over the token file.\n", config.EnvAccessToken)
	}
	return nil
}

func authStatusLogic(a *app.App, cmd *cobra.Command, args []string) error {
	if a.Config.AccessToken != "" {
		fmt.Fprintf(a.Out, "Using the access token from %s.\n", config.EnvAccessToken)
	}

	st, err := a.Tokens.Inspect()
	if errors.Is(err, tokenstore.ErrNoToken) {
		fmt.Fprintf(a.Out, "No token stored in %s.\n", a.Tokens.Path())
		return nil
	}
	if err != nil {
		return err
	}
	ui.DisplayTokenStatus(a.Out, a.Tokens.Path(), st, a.Now())
	return nil
}

func authLogoutLogic(a *app.App, cmd *cobra.Command, args []string) error {
	if err := a.Tokens.Remove(); err != nil {
		return err
	}
	ui.Success(a.Out, "Removed %s", a.Tokens.Path())
	return nil
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authImportCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)
}
