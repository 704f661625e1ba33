package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/takutakahashi/ghclient/pkg/apierror"
	"github.com/takutakahashi/ghclient/pkg/auth"
)

var (
	apiMethod  string
	apiData    string
	apiUseApp  bool
	apiInclude bool
)

var APICmd = &cobra.Command{
	Use:   "api PATH",
	Short: "Send an authenticated request to the GitHub REST API",
	Long: `Send a request to the GitHub REST API and print the JSON reply.

Credentials are resolved the same way as 'ghclient auth status'. With --app
the configured GitHub App installation token is used instead.

Examples:
  ghclient api /user
  ghclient api repos/octo/hello/issues -X POST -d '{"title":"bug"}'
  ghclient api /installation/repositories --app`,
	Args: cobra.ExactArgs(1),
	RunE: runAPI,
}

func init() {
	APICmd.Flags().StringVarP(&apiMethod, "method", "X", http.MethodGet, "HTTP method")
	APICmd.Flags().StringVarP(&apiData, "data", "d", "", "JSON request body")
	APICmd.Flags().BoolVar(&apiUseApp, "app", false, "Authenticate as the configured GitHub App")
	APICmd.Flags().BoolVarP(&apiInclude, "include", "i", false, "Print the status line and response headers")
}

func runAPI(cmd *cobra.Command, args []string) error {
	s, err := current()
	if err != nil {
		return err
	}

	var body any
	if apiData != "" {
		if !json.Valid([]byte(apiData)) {
			return apierror.New(apierror.KindValidation, "--data must be valid JSON")
		}
		body = json.RawMessage(apiData)
	}

	var strategy auth.Strategy
	if apiUseApp {
		app, err := s.App(0)
		if err != nil {
			return err
		}
		strategy = app
	}

	c, err := s.Client(strategy)
	if err != nil {
		return err
	}
	resp, err := c.Do(cmd.Context(), strings.ToUpper(apiMethod), args[0], body, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if apiInclude {
		_, _ = fmt.Fprintf(out, "HTTP %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
		keys := make([]string, 0, len(resp.Header))
		for k := range resp.Header {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(out, "%s: %s\n", k, strings.Join(resp.Header[k], ", "))
		}
		_, _ = fmt.Fprintln(out)
	}
	if len(resp.Body) == 0 {
		return nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Body, "", "  "); err != nil {
		_, _ = out.Write(resp.Body)
		return nil
	}
	_, _ = fmt.Fprintln(out, pretty.String())
	return nil
}
