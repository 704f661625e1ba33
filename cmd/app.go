package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/takutakahashi/ghclient/pkg/apierror"
)

var (
	appInstallationID int64
	appRepository     string
)

var AppCmd = &cobra.Command{
	Use:   "app",
	Short: "Authenticate as a GitHub App",
	Long: `Mint GitHub App credentials from app.app_id and app.private_key (or
app.private_key_path) in the config.`,
}

var appJWTCmd = &cobra.Command{
	Use:   "jwt",
	Short: "Print a freshly signed App JWT (valid for 10 minutes)",
	Args:  cobra.NoArgs,
	RunE:  runAppJWT,
}

var appTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an installation access token",
	Long: `Mint an installation access token. The installation comes from
--installation-id, from --repo (discovered through the API) or from
app.installation_id in the config.`,
	Args: cobra.NoArgs,
	RunE: runAppToken,
}

var appInstallationCmd = &cobra.Command{
	Use:   "installation OWNER/REPO",
	Short: "Find the installation id covering a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppInstallation,
}

func init() {
	appTokenCmd.Flags().Int64Var(&appInstallationID, "installation-id", 0, "Installation to mint a token for")
	appTokenCmd.Flags().StringVar(&appRepository, "repo", "", "Repository (owner/name) whose installation to use")

	AppCmd.AddCommand(appJWTCmd)
	AppCmd.AddCommand(appTokenCmd)
	AppCmd.AddCommand(appInstallationCmd)
}

func runAppJWT(cmd *cobra.Command, args []string) error {
	s, err := current()
	if err != nil {
		return err
	}
	app, err := s.App(-1)
	if err != nil {
		return err
	}
	signed, err := app.JWT()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), signed)
	return nil
}

func runAppToken(cmd *cobra.Command, args []string) error {
	s, err := current()
	if err != nil {
		return err
	}

	id := appInstallationID
	if id == 0 && appRepository != "" {
		cache, err := s.InstallationCache()
		if err != nil {
			return err
		}
		if id, err = cache.GetInstallationID(cmd.Context(), appRepository); err != nil {
			return err
		}
	}

	app, err := s.App(id)
	if err != nil {
		return err
	}
	if app.InstallationID() == 0 {
		return apierror.New(apierror.KindValidation,
			"no installation selected; pass --installation-id or --repo, or set app.installation_id")
	}
	if err := app.Refresh(cmd.Context()); err != nil {
		return err
	}

	tok, _ := app.InstallationToken()
	return printJSON(cmd.OutOrStdout(), map[string]any{
		"installation_id":      app.InstallationID(),
		"token":                tok.Token,
		"expires_at":           tok.ExpiresAt.UTC().Format(time.RFC3339),
		"permissions":          tok.Permissions,
		"repository_selection": tok.RepositorySelection,
	})
}

func runAppInstallation(cmd *cobra.Command, args []string) error {
	s, err := current()
	if err != nil {
		return err
	}
	cache, err := s.InstallationCache()
	if err != nil {
		return err
	}
	id, err := cache.GetInstallationID(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}
