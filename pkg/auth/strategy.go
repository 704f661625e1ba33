// Package auth implements the ways a request to GitHub can be authenticated:
// a static personal or installation token, an OAuth App user token, and a
// GitHub App acting as itself or as one of its installations.
package auth

import (
	"context"
	"fmt"
)

// Strategy types as reported by Type()
const (
	TypeStaticToken = "token"
	TypeOAuth       = "oauth"
	TypeGitHubApp   = "github_app"
)

// Strategy produces the Authorization header for a request. The set of
// implementations is closed: *StaticToken, *OAuthToken and *GitHubApp.
type Strategy interface {
	// AuthorizationHeader returns the full header value, e.g. "Bearer ghp_..."
	AuthorizationHeader() (string, error)
	Validate() error
	Type() string
	// NeedsRefresh reports whether Refresh should run before the next request
	NeedsRefresh() bool
	Refresh(ctx context.Context) error

	sealed()
}

// Describe summarizes a strategy for status output. It never includes
// secret material.
func Describe(s Strategy) string {
	switch v := s.(type) {
	case nil:
		return "anonymous"
	case *StaticToken:
		return fmt.Sprintf("static token (%s)", v.Kind())
	case *OAuthToken:
		if v.HasAccessToken() {
			return fmt.Sprintf("OAuth App %s (user token)", v.ClientID())
		}
		return fmt.Sprintf("OAuth App %s (no token yet)", v.ClientID())
	case *GitHubApp:
		if v.InstallationID() == 0 {
			return fmt.Sprintf("GitHub App %s (app JWT)", v.AppID())
		}
		return fmt.Sprintf("GitHub App %s installation %d", v.AppID(), v.InstallationID())
	default:
		panic(fmt.Sprintf("auth: unknown strategy %T", s))
	}
}
