package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/takutakahashi/ghclient/cmd"
)

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ghclient",
	Short: "GitHub REST client",
	Long: `ghclient talks to the GitHub REST API with automatic credential discovery
(GitHub CLI, GITHUB_TOKEN, GH_TOKEN, config file), OAuth App and GitHub App
authentication, and actionable error messages.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		return cmd.Setup(c, viper.GetString("config"), viper.GetBool("verbose"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Configuration file path (default $XDG_CONFIG_HOME/ghclient/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Bind flags to viper
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind config flag: %v\n", err)
	}
	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind verbose flag: %v\n", err)
	}

	rootCmd.AddCommand(cmd.AuthCmd)
	rootCmd.AddCommand(cmd.OAuthCmd)
	rootCmd.AddCommand(cmd.AppCmd)
	rootCmd.AddCommand(cmd.APICmd)
	rootCmd.AddCommand(cmd.ConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cmd.ErrorMessage(err))
		os.Exit(1)
	}
}
