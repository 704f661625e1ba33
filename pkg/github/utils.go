package github

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/go-github/v57/github"
)

const (
	DefaultAPIBase = "https://api.github.com"
	DefaultWebBase = "https://github.com"
)

// APIBase returns the REST API root, honoring GITHUB_API for GitHub Enterprise
func APIBase() string {
	if v := strings.TrimSpace(os.Getenv("GITHUB_API")); v != "" {
		return strings.TrimSuffix(v, "/")
	}
	return DefaultAPIBase
}

// WebBase returns the web root, honoring GITHUB_URL for GitHub Enterprise
func WebBase() string {
	if v := strings.TrimSpace(os.Getenv("GITHUB_URL")); v != "" {
		return strings.TrimSuffix(v, "/")
	}
	return DefaultWebBase
}

// NewAPIClient builds a go-github client for apiBase. A GHE base ending in
// /api/v3 gets matching upload URLs; any other non-default base is used as is.
func NewAPIClient(httpClient *http.Client, apiBase string) (*github.Client, error) {
	client := github.NewClient(httpClient)

	apiBase = strings.TrimSuffix(apiBase, "/")
	if apiBase == "" || apiBase == DefaultAPIBase {
		return client, nil
	}

	if strings.HasSuffix(apiBase, "/api/v3") {
		root := strings.TrimSuffix(apiBase, "/api/v3")
		client, err := client.WithEnterpriseURLs(apiBase, root+"/api/uploads")
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub Enterprise client: %w", err)
		}
		return client, nil
	}

	u, err := url.Parse(apiBase + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid API base %q: %w", apiBase, err)
	}
	client.BaseURL = u
	return client, nil
}

// ParseRepository accepts owner/repo or any common git remote URL form and
// returns owner and repo
func ParseRepository(s string) (owner, repo string, err error) {
	s = strings.TrimSpace(s)
	path := s

	switch {
	case strings.Contains(s, "://"):
		u, perr := url.Parse(s)
		if perr != nil {
			return "", "", fmt.Errorf("invalid repository URL %q: %w", s, perr)
		}
		path = u.Path
	case strings.Contains(s, "@") && strings.Contains(s, ":"):
		// scp-like: git@host:owner/repo.git
		path = s[strings.Index(s, ":")+1:]
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q, expected 'owner/repo'", s)
	}
	return parts[0], parts[1], nil
}
