package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/takutakahashi/ghclient/pkg/apierror"
	"github.com/takutakahashi/ghclient/pkg/logger"
	"github.com/takutakahashi/ghclient/pkg/utils"
)

// DefaultScopes are requested when AuthorizationURL gets none
var DefaultScopes = []string{"repo", "user", "read:org"}

const (
	defaultWebBase = "https://github.com"
	stateBytes     = 16
	maxTokenBody   = 1 << 20
)

// OAuthConfig describes an OAuth App registration
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// WebBase is the github.com (or GHE) root serving /login/oauth/*
	WebBase    string
	HTTPClient *http.Client
	Classifier *apierror.Classifier
	Logger     *zerolog.Logger
}

// OAuthToken runs the OAuth web flow and then sends the user token
type OAuthToken struct {
	conf        oauth2.Config
	client      *http.Client
	classifier  *apierror.Classifier
	log         *zerolog.Logger
	accessToken string
}

func NewOAuthToken(cfg OAuthConfig) *OAuthToken {
	base := strings.TrimSuffix(cfg.WebBase, "/")
	if base == "" {
		base = defaultWebBase
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	client := cfg.HTTPClient
	if client == nil {
		client = utils.NewHTTPClient(utils.DefaultHTTPTimeout)
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = apierror.NewClassifier(nil)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Named("oauth")
	}

	return &OAuthToken{
		conf: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/login/oauth/authorize",
				TokenURL:  base + "/login/oauth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client:     client,
		classifier: classifier,
		log:        log,
	}
}

func (o *OAuthToken) sealed() {}

func (o *OAuthToken) Type() string { return TypeOAuth }

func (o *OAuthToken) ClientID() string { return o.conf.ClientID }

// AuthorizationURL returns the authorize URL with a fresh state
func (o *OAuthToken) AuthorizationURL(scopes []string) (string, error) {
	authURL, _, err := o.AuthorizationURLWithState(scopes)
	return authURL, err
}

// AuthorizationURLWithState also returns the state so the caller can verify
// the callback
func (o *OAuthToken) AuthorizationURLWithState(scopes []string) (string, string, error) {
	state, err := generateState()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}
	conf := o.conf
	if len(scopes) > 0 {
		conf.Scopes = scopes
	}
	return conf.AuthCodeURL(state), state, nil
}

// AccessToken exchanges an authorization code for a user token and keeps it
// for AuthorizationHeader
func (o *OAuthToken) AccessToken(ctx context.Context, code string) (string, error) {
	form := url.Values{
		"client_id":     {o.conf.ClientID},
		"client_secret": {o.conf.ClientSecret},
		"code":          {code},
		"redirect_uri":  {o.conf.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.conf.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Accept", "application/x-www-form-urlencoded")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", o.classifier.ClassifyTransport(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBody))
	if err != nil {
		return "", o.classifier.ClassifyTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		o.log.Debug().Int("status", resp.StatusCode).Msg("token exchange rejected")
		return "", o.classifier.Classify(apierror.Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
		})
	}

	values := parseTokenResponse(resp.Header.Get("Content-Type"), body)
	token := values.Get("access_token")
	if token == "" {
		msg := "Failed to get access token"
		if errCode := values.Get("error"); errCode != "" {
			msg += ": " + errCode
			if desc := values.Get("error_description"); desc != "" {
				msg += " (" + desc + ")"
			}
		}
		return "", apierror.New(apierror.KindAuthentication, msg).
			WithStatus(resp.StatusCode).
			AddContext("error", values.Get("error")).
			AddContext("error_description", values.Get("error_description")).
			AddContext("error_uri", values.Get("error_uri"))
	}

	o.accessToken = token
	o.log.Info().Str("scope", values.Get("scope")).Str("token_type", values.Get("token_type")).Msg("obtained OAuth access token")
	return token, nil
}

// parseTokenResponse accepts the form-encoded response GitHub sends for
// Accept: application/x-www-form-urlencoded, and JSON for servers that
// ignore Accept
func parseTokenResponse(contentType string, body []byte) url.Values {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/json" {
		var m map[string]any
		if err := json.Unmarshal(body, &m); err != nil {
			return url.Values{}
		}
		values := url.Values{}
		for k, v := range m {
			if s, ok := v.(string); ok {
				values.Set(k, s)
			}
		}
		return values
	}
	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return url.Values{}
	}
	return values
}

// SetAccessToken installs a token obtained elsewhere
func (o *OAuthToken) SetAccessToken(token string) { o.accessToken = strings.TrimSpace(token) }

func (o *OAuthToken) HasAccessToken() bool { return o.accessToken != "" }

func (o *OAuthToken) AuthorizationHeader() (string, error) {
	if o.accessToken == "" {
		return "", apierror.New(apierror.KindAuthentication,
			"No OAuth access token yet: complete the authorization flow with AccessToken or call SetAccessToken")
	}
	return "Bearer " + o.accessToken, nil
}

func (o *OAuthToken) Validate() error {
	if o.conf.ClientID == "" {
		return apierror.New(apierror.KindAuthentication, "OAuth client ID is required")
	}
	if o.conf.ClientSecret == "" {
		return apierror.New(apierror.KindAuthentication, "OAuth client secret is required")
	}
	u, err := url.Parse(o.conf.RedirectURL)
	if o.conf.RedirectURL == "" || err != nil || !u.IsAbs() || u.Host == "" {
		return apierror.Newf(apierror.KindAuthentication, "OAuth redirect URL must be an absolute URL, got %q", o.conf.RedirectURL)
	}
	return nil
}

func (o *OAuthToken) NeedsRefresh() bool { return false }

func (o *OAuthToken) Refresh(context.Context) error { return nil }

// generateState returns 32 lowercase hex characters from crypto/rand
func generateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
