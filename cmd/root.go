// Package cmd holds the ghclient subcommands. main wires them under the root
// command and calls Setup before any of them run.
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/takutakahashi/ghclient/pkg/apierror"
	"github.com/takutakahashi/ghclient/pkg/auth"
	"github.com/takutakahashi/ghclient/pkg/client"
	"github.com/takutakahashi/ghclient/pkg/config"
	"github.com/takutakahashi/ghclient/pkg/credential"
	"github.com/takutakahashi/ghclient/pkg/github"
	"github.com/takutakahashi/ghclient/pkg/logger"
	"github.com/takutakahashi/ghclient/pkg/utils"
)

// Settings is the loaded configuration shared by every subcommand
type Settings struct {
	Config     *config.Config
	Viper      *viper.Viper
	ConfigPath string
}

// annotationConfigOptional marks commands that run before a config file exists
const annotationConfigOptional = "ghclient/config-optional"

var settings *Settings

// Setup loads the config at configPath (empty for the default location) and
// initializes logging for c. verbose forces debug level.
func Setup(c *cobra.Command, configPath string, verbose bool) error {
	s, err := LoadSettings(configPath)
	if err != nil {
		if c == nil || c.Annotations[annotationConfigOptional] == "" || !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if s, err = LoadSettings(""); err != nil {
			return err
		}
		s.ConfigPath = configPath
	}

	opts := logger.DefaultOptions()
	opts.Level = s.Config.Log.Level
	opts.Format = s.Config.Log.Format
	if verbose {
		opts.Level = "debug"
		opts.WithCaller = true
	}
	logger.Init(opts)

	settings = s
	return nil
}

// LoadSettings reads the configuration without touching global state
func LoadSettings(configPath string) (*Settings, error) {
	v, err := config.NewViper(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}
	if cfg.APIBase == "" {
		cfg.APIBase = github.APIBase()
	}
	if cfg.WebBase == "" {
		cfg.WebBase = github.WebBase()
	}

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return &Settings{Config: cfg, Viper: v, ConfigPath: path}, nil
}

func current() (*Settings, error) {
	if settings == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return settings, nil
}

// Resolver builds the credential resolver from the config
func (s *Settings) Resolver() (*credential.Resolver, error) {
	return credential.FromConfig(s.Config, config.NewStore(s.Viper), s.ConfigPath)
}

// HTTPClient honors the configured timeout
func (s *Settings) HTTPClient() *http.Client {
	return utils.NewHTTPClient(s.Config.Timeout)
}

// Client builds a Connector. A nil strategy defers to the resolver.
func (s *Settings) Client(strategy auth.Strategy) (*client.Client, error) {
	opts := []client.Option{
		client.WithBaseURL(s.Config.APIBase),
		client.WithHTTPClient(s.HTTPClient()),
		client.WithUserAgent(s.Config.UserAgent),
	}
	if strategy != nil {
		opts = append(opts, client.WithStrategy(strategy))
	} else {
		r, err := s.Resolver()
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithResolver(r))
	}
	return client.New(opts...), nil
}

// OAuth builds the OAuth strategy from the registered App settings. Building
// an authorize URL needs only the client id; exchange needs the full set.
func (s *Settings) OAuth(full bool) (*auth.OAuthToken, error) {
	o := auth.NewOAuthToken(auth.OAuthConfig{
		ClientID:     s.Config.OAuth.ClientID,
		ClientSecret: s.Config.OAuth.ClientSecret,
		RedirectURL:  s.Config.OAuth.RedirectURL,
		Scopes:       s.Config.OAuth.Scopes,
		WebBase:      s.Config.WebBase,
		HTTPClient:   s.HTTPClient(),
	})
	if full {
		if err := o.Validate(); err != nil {
			return nil, err
		}
	} else if o.ClientID() == "" {
		return nil, apierror.New(apierror.KindAuthentication, "OAuth client ID is required; set oauth.client_id")
	}
	return o, nil
}

// App builds the GitHub App strategy. installationID overrides the
// configured one; zero keeps it and a negative value forces App-level use.
func (s *Settings) App(installationID int64) (*auth.GitHubApp, error) {
	key, err := s.Config.App.LoadPrivateKey()
	if err != nil {
		return nil, apierror.Wrap(err, apierror.KindAuthentication, "cannot load GitHub App private key")
	}

	id := installationID
	if id == 0 && strings.TrimSpace(s.Config.App.InstallationID) != "" {
		id, err = strconv.ParseInt(strings.TrimSpace(s.Config.App.InstallationID), 10, 64)
		if err != nil {
			return nil, apierror.Newf(apierror.KindValidation, "installation id must be numeric, got %q", s.Config.App.InstallationID)
		}
	}
	if id < 0 {
		id = 0
	}

	app := auth.NewGitHubApp(s.Config.App.AppID, key,
		auth.WithInstallation(id),
		auth.WithIssuer(github.NewIssuer(s.Config.APIBase, s.HTTPClient())),
	)
	if err := app.Validate(); err != nil {
		return nil, err
	}
	return app, nil
}

// InstallationCache discovers installations for the configured App
func (s *Settings) InstallationCache() (*github.InstallationCache, error) {
	app, err := s.App(-1)
	if err != nil {
		return nil, err
	}
	id, _ := strconv.ParseInt(app.AppID(), 10, 64)
	key, err := s.Config.App.LoadPrivateKey()
	if err != nil {
		return nil, err
	}
	return github.NewInstallationCache(id, []byte(key), github.WithAPIBase(s.Config.APIBase)), nil
}

// ErrorMessage renders err for the terminal. Classified HTTP errors print
// their actionable message without the wrapped cause.
func ErrorMessage(err error) string {
	if e, ok := apierror.As(err); ok {
		msg := e.Message
		if e.StatusCode == 0 {
			msg = e.Error()
		}
		if id, ok := e.Context["request_id"].(string); ok && id != "" {
			msg += fmt.Sprintf("\n(request %s)", id)
		}
		return msg
	}
	return err.Error()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
