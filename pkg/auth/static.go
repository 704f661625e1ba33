package auth

import (
	"context"
	"regexp"
	"strings"

	"github.com/takutakahashi/ghclient/pkg/apierror"
)

const minTokenLength = 10

var (
	legacyTokenPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

	tokenPrefixes = map[string]string{
		"ghp_": "personal access token",
		"gho_": "OAuth token",
		"ghu_": "user-to-server token",
		"ghs_": "server-to-server token",
		"ghr_": "refresh token",
	}
)

// StaticToken sends a fixed token
type StaticToken struct {
	token string
}

func NewStaticToken(token string) *StaticToken {
	return &StaticToken{token: strings.TrimSpace(token)}
}

func (s *StaticToken) sealed() {}

func (s *StaticToken) Type() string { return TypeStaticToken }

func (s *StaticToken) AuthorizationHeader() (string, error) {
	if s.token == "" {
		return "", apierror.New(apierror.KindAuthentication, "No GitHub token configured")
	}
	return "Bearer " + s.token, nil
}

// Validate checks the token shape. It does not contact GitHub.
func (s *StaticToken) Validate() error {
	if s.token == "" {
		return apierror.New(apierror.KindAuthentication, "GitHub token is empty")
	}
	if len(s.token) < minTokenLength {
		return apierror.Newf(apierror.KindAuthentication,
			"GitHub token is too short (%d characters, need at least %d)", len(s.token), minTokenLength)
	}
	if s.Kind() == "" {
		return apierror.New(apierror.KindAuthentication,
			"GitHub token format not recognized: expected a ghp_, gho_, ghu_, ghs_ or ghr_ prefix, or a 40 character lowercase hex classic token")
	}
	return nil
}

// Kind names the token family from its prefix, or "" when unrecognized
func (s *StaticToken) Kind() string {
	if len(s.token) > 4 {
		if kind, ok := tokenPrefixes[s.token[:4]]; ok {
			return kind
		}
	}
	if legacyTokenPattern.MatchString(s.token) {
		return "classic token"
	}
	return ""
}

func (s *StaticToken) NeedsRefresh() bool { return false }

func (s *StaticToken) Refresh(context.Context) error { return nil }
