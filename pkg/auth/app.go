package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/takutakahashi/ghclient/pkg/apierror"
	"github.com/takutakahashi/ghclient/pkg/logger"
)

// AppJWTLifetime is the validity of a minted App JWT. GitHub allows ten
// minutes at most.
const AppJWTLifetime = 10 * time.Minute

// TokenIssuer exchanges an App JWT for an installation token
type TokenIssuer interface {
	CreateInstallationToken(ctx context.Context, appJWT string, installationID int64) (InstallationToken, error)
}

// AppOption configures a GitHubApp
type AppOption func(*GitHubApp)

// WithInstallation switches the App into installation mode
func WithInstallation(id int64) AppOption {
	return func(a *GitHubApp) { a.installationID = id }
}

// WithIssuer sets the collaborator used by Refresh
func WithIssuer(issuer TokenIssuer) AppOption {
	return func(a *GitHubApp) { a.issuer = issuer }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) AppOption {
	return func(a *GitHubApp) { a.now = now }
}

func WithAppLogger(l *zerolog.Logger) AppOption {
	return func(a *GitHubApp) { a.log = l }
}

// GitHubApp authenticates as a GitHub App. Without an installation id every
// header is a freshly minted App JWT. With one, the cached installation
// token is sent, falling back to the App JWT until Refresh obtains one.
//
// GitHubApp does no locking; callers sharing one across goroutines must
// serialize Refresh and SetInstallationToken.
type GitHubApp struct {
	appID          string
	privateKey     string
	installationID int64
	issuer         TokenIssuer
	now            func() time.Time
	log            *zerolog.Logger

	key   *rsa.PrivateKey
	token *InstallationToken
}

// NewGitHubApp takes the numeric App id and its PEM private key, raw or
// base64 encoded
func NewGitHubApp(appID, privateKey string, opts ...AppOption) *GitHubApp {
	a := &GitHubApp{
		appID:      strings.TrimSpace(appID),
		privateKey: privateKey,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.Named("github_app")
	}
	return a
}

func (a *GitHubApp) sealed() {}

func (a *GitHubApp) Type() string { return TypeGitHubApp }

func (a *GitHubApp) AppID() string { return a.appID }

func (a *GitHubApp) InstallationID() int64 { return a.installationID }

func (a *GitHubApp) HasIssuer() bool { return a.issuer != nil }

// JWT mints an App-level token valid for AppJWTLifetime
func (a *GitHubApp) JWT() (string, error) {
	key, err := a.signingKey()
	if err != nil {
		return "", err
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(AppJWTLifetime)),
		Issuer:    a.appID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", apierror.Wrap(err, apierror.KindAuthentication, "failed to sign GitHub App JWT")
	}
	return signed, nil
}

func (a *GitHubApp) AuthorizationHeader() (string, error) {
	if a.installationID != 0 && a.token != nil && !a.token.NeedsRefreshAt(a.now()) {
		return "Bearer " + a.token.Token, nil
	}
	signed, err := a.JWT()
	if err != nil {
		return "", err
	}
	return "Bearer " + signed, nil
}

func (a *GitHubApp) NeedsRefresh() bool {
	if a.installationID == 0 {
		return false
	}
	return a.token == nil || a.token.NeedsRefreshAt(a.now())
}

// Refresh obtains a new installation token from the issuer. It is a no-op
// for App-level use.
func (a *GitHubApp) Refresh(ctx context.Context) error {
	if a.installationID == 0 {
		return nil
	}
	if a.issuer == nil {
		return apierror.New(apierror.KindAuthentication,
			"Installation token refresh needs a token issuer; configure one with WithIssuer or supply a token with SetInstallationToken").
			AddContext("installation_id", a.installationID)
	}

	signed, err := a.JWT()
	if err != nil {
		return err
	}
	token, err := a.issuer.CreateInstallationToken(ctx, signed, a.installationID)
	if err != nil {
		if _, ok := apierror.As(err); ok {
			return err
		}
		return apierror.Wrap(err, apierror.KindAuthentication, "failed to obtain installation token").
			AddContext("installation_id", a.installationID)
	}
	if token.Token == "" {
		return apierror.New(apierror.KindAuthentication, "token issuer returned an empty installation token").
			AddContext("installation_id", a.installationID)
	}

	a.token = &token
	a.log.Info().Int64("installation_id", a.installationID).Time("expires_at", token.ExpiresAt).Msg("refreshed installation token")
	return nil
}

// SetInstallationToken replaces the cached installation token
func (a *GitHubApp) SetInstallationToken(token InstallationToken) {
	a.token = &token
}

// InstallationToken returns a copy of the cached token, if any
func (a *GitHubApp) InstallationToken() (InstallationToken, bool) {
	if a.token == nil {
		return InstallationToken{}, false
	}
	return *a.token, true
}

var appIDPattern = regexp.MustCompile(`^[0-9]+$`)

func (a *GitHubApp) Validate() error {
	if a.appID == "" {
		return apierror.New(apierror.KindAuthentication, "GitHub App ID is required")
	}
	if !appIDPattern.MatchString(a.appID) {
		return apierror.Newf(apierror.KindAuthentication, "GitHub App ID must be a positive number, got %q", a.appID)
	}
	if id, err := strconv.ParseInt(a.appID, 10, 64); err != nil || id <= 0 {
		return apierror.Newf(apierror.KindAuthentication, "GitHub App ID must be a positive number, got %q", a.appID)
	}
	if strings.TrimSpace(a.privateKey) == "" {
		return apierror.New(apierror.KindAuthentication, "GitHub App private key is required")
	}
	if _, err := a.signingKey(); err != nil {
		return err
	}
	return nil
}

func (a *GitHubApp) signingKey() (*rsa.PrivateKey, error) {
	if a.key != nil {
		return a.key, nil
	}
	key, err := ParsePrivateKey(a.privateKey)
	if err != nil {
		return nil, apierror.Wrap(err, apierror.KindAuthentication, "GitHub App private key is not a valid RSA PEM key")
	}
	a.key = key
	return key, nil
}

// ParsePrivateKey accepts a PEM encoded RSA key, or the same PEM wrapped in
// base64 as it often is in environment variables
func ParsePrivateKey(raw string) (*rsa.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty private key")
	}
	if strings.Contains(raw, "-----BEGIN") {
		return jwt.ParseRSAPrivateKeyFromPEM([]byte(raw))
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("private key is neither PEM nor base64: %w", err)
	}
	return jwt.ParseRSAPrivateKeyFromPEM(decoded)
}
