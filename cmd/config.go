package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-personal/internal/app"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as TOML",
	Long:  "Prints the configuration after defaults, the config file and the environment have been applied. The output is a valid config file.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return configShowLogic(a, cmd, args)
	},
}

func configShowLogic(a *app.App, cmd *cobra.Command, args []string) error {
	if a.Config.Path != "" {
		fmt.Fprintf(a.Out, "# %s\n", a.Config.Path)
	}
	return a.Config.Write(a.Out)
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}
