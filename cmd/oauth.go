package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var oauthScopes []string

var OAuthCmd = &cobra.Command{
	Use:   "oauth",
	Short: "Run the OAuth App web flow",
	Long: `Run the OAuth App web flow using oauth.client_id, oauth.client_secret and
oauth.redirect_url from the config.

  ghclient oauth url                # open the printed URL in a browser
  ghclient oauth exchange CODE      # trade the callback code for a token`,
}

var oauthURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print an authorization URL and its state",
	Args:  cobra.NoArgs,
	RunE:  runOAuthURL,
}

var oauthExchangeCmd = &cobra.Command{
	Use:   "exchange CODE",
	Short: "Exchange an authorization code for an access token",
	Args:  cobra.ExactArgs(1),
	RunE:  runOAuthExchange,
}

func init() {
	oauthURLCmd.Flags().StringSliceVar(&oauthScopes, "scope", nil, "Scopes to request (defaults to oauth.scopes)")

	OAuthCmd.AddCommand(oauthURLCmd)
	OAuthCmd.AddCommand(oauthExchangeCmd)
}

func runOAuthURL(cmd *cobra.Command, args []string) error {
	s, err := current()
	if err != nil {
		return err
	}
	o, err := s.OAuth(false)
	if err != nil {
		return err
	}
	authURL, state, err := o.AuthorizationURLWithState(oauthScopes)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, authURL)
	_, _ = fmt.Fprintf(out, "state: %s\n", state)
	return nil
}

func runOAuthExchange(cmd *cobra.Command, args []string) error {
	s, err := current()
	if err != nil {
		return err
	}
	o, err := s.OAuth(true)
	if err != nil {
		return err
	}
	token, err := o.AccessToken(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
