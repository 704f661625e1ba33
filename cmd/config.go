package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/takutakahashi/ghclient/pkg/config"
)

var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the ghclient config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Write a starter config file to the --config path, or the default
location when none is given. An existing file is never overwritten.`,
	Annotations: map[string]string{annotationConfigOptional: "true"},
	Args:        cobra.NoArgs,
	RunE:        runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets redacted",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	s, err := current()
	if err != nil {
		return err
	}
	if err := config.WriteDefault(s.ConfigPath); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nReplace the token placeholder or remove it to use gh or the environment.\n", s.ConfigPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	s, err := current()
	if err != nil {
		return err
	}
	cfg := *s.Config
	cfg.Token = redact(cfg.Token)
	cfg.OAuth.ClientSecret = redact(cfg.OAuth.ClientSecret)
	cfg.App.PrivateKey = redact(cfg.App.PrivateKey)

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	return enc.Close()
}

func redact(secret string) string {
	secret = strings.TrimSpace(secret)
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:4] + "****"
	}
}
