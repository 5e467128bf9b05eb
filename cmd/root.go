package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/monosense-io/synergyflow/cmd/serve"
	"github.com/monosense-io/synergyflow/cmd/submit"
	"github.com/monosense-io/synergyflow/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "synergyflow",
		Short: "SynergyFlow time-entry tracking service",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		serve.Command(settings),
		submit.Command(settings),
	)

	return rootCmd
}

// setupFlags defines global flags and binds them into viper so command
// line arguments override the configuration file.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")
	cmd.PersistentFlags().StringVarP(&settings.WebServer.Port, "port", "p", settings.WebServer.Port, "Port for the REST API server")

	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		cobra.CheckErr(err)
	}
}
