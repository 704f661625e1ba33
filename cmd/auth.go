package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var showRateLimit bool

var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Inspect GitHub credentials",
	Long:  "Show which credential source ghclient would use and how to configure one",
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active credential source",
	Long: `Probe the credential sources in priority order (GitHub CLI, GITHUB_TOKEN,
GH_TOKEN, config file) and report which one would be used.

With --rate-limit the current API quota is fetched as well.`,
	Args: cobra.NoArgs,
	RunE: runAuthStatus,
}

var authTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the resolved token",
	Args:  cobra.NoArgs,
	RunE:  runAuthToken,
}

var authHelpCmd = &cobra.Command{
	Use:   "help",
	Short: "Explain how to configure authentication",
	Args:  cobra.NoArgs,
	RunE:  runAuthHelp,
}

func init() {
	authStatusCmd.Flags().BoolVar(&showRateLimit, "rate-limit", false, "Also fetch the current rate limit")

	AuthCmd.AddCommand(authStatusCmd)
	AuthCmd.AddCommand(authTokenCmd)
	AuthCmd.AddCommand(authHelpCmd)
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	s, err := current()
	if err != nil {
		return err
	}
	r, err := s.Resolver()
	if err != nil {
		return err
	}
	if _, err := r.Resolve(cmd.Context(), false); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, r.AuthenticationStatus())
	if !r.IsAuthenticated() {
		_, _ = fmt.Fprintf(out, "\n%s\n", r.AuthenticationHelp())
	}
	if !showRateLimit {
		return nil
	}

	c, err := s.Client(nil)
	if err != nil {
		return err
	}
	limits, err := c.RateLimit(cmd.Context())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Rate limit: %d/%d remaining, resets at %s\n",
		limits.Rate.Remaining, limits.Rate.Limit, limits.Rate.ResetTime().UTC().Format(time.RFC1123))
	return nil
}

func runAuthToken(cmd *cobra.Command, args []string) error {
	s, err := current()
	if err != nil {
		return err
	}
	r, err := s.Resolver()
	if err != nil {
		return err
	}
	token, err := r.Resolve(cmd.Context(), true)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runAuthHelp(cmd *cobra.Command, args []string) error {
	s, err := current()
	if err != nil {
		return err
	}
	r, err := s.Resolver()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), r.AuthenticationHelp())
	return nil
}
