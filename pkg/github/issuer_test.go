package github

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takutakahashi/ghclient/pkg/apierror"
	"github.com/takutakahashi/ghclient/pkg/auth"
	"github.com/takutakahashi/ghclient/pkg/auth/testutil"
	"github.com/takutakahashi/ghclient/pkg/logger"
)

func TestIssuer_CreateInstallationToken(t *testing.T) {
	mock := testutil.NewGitHubMockServer()
	defer mock.Close()

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	mock.SetInstallationToken(678, &testutil.InstallationTokenResponse{
		Token:               "ghs_minted",
		ExpiresAt:           expires,
		Permissions:         map[string]string{"contents": "read", "issues": "write"},
		RepositorySelection: "selected",
	})

	tok, err := NewIssuer(mock.URL(), mock.Client()).CreateInstallationToken(context.Background(), "app.jwt.value", 678)
	require.NoError(t, err)

	assert.Equal(t, "ghs_minted", tok.Token)
	assert.True(t, expires.Equal(tok.ExpiresAt))
	assert.Equal(t, map[string]string{"contents": "read", "issues": "write"}, tok.Permissions)
	assert.Equal(t, "selected", tok.RepositorySelection)

	req, ok := mock.LastRequest()
	require.True(t, ok)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/app/installations/678/access_tokens", req.Path)
	assert.Equal(t, "Bearer app.jwt.value", req.Headers.Get("Authorization"))
}

func TestIssuer_UnknownInstallation(t *testing.T) {
	mock := testutil.NewGitHubMockServer()
	defer mock.Close()

	_, err := NewIssuer(mock.URL(), mock.Client()).CreateInstallationToken(context.Background(), "jwt", 1)
	require.Error(t, err)
	assert.True(t, apierror.IsNotFound(err))
}

func TestIssuer_BadJWT(t *testing.T) {
	mock := testutil.NewGitHubMockServer()
	defer mock.Close()
	mock.SetError("/app/installations/1/access_tokens", testutil.ErrorResponse{
		Status: http.StatusUnauthorized,
		Body:   `{"message":"'Expiration time' claim ('exp') is too far in the future","documentation_url":"https://docs.github.com/rest"}`,
	})

	_, err := NewIssuer(mock.URL(), mock.Client()).CreateInstallationToken(context.Background(), "jwt", 1)
	e, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.KindAuthentication, e.Kind)
	assert.Equal(t, http.StatusUnauthorized, e.StatusCode)
	assert.Contains(t, e.Message, "too far in the future")
	assert.Equal(t, "https://docs.github.com/rest", e.DocumentationURL)
}

func TestIssuer_Unreachable(t *testing.T) {
	mock := testutil.NewGitHubMockServer()
	base := mock.URL()
	mock.Close()

	_, err := NewIssuer(base, nil).CreateInstallationToken(context.Background(), "jwt", 1)
	assert.True(t, apierror.IsNetwork(err))
}

func TestIssuer_RefreshesGitHubApp(t *testing.T) {
	mock := testutil.NewGitHubMockServer()
	defer mock.Close()
	mock.SetInstallationToken(42, &testutil.InstallationTokenResponse{
		Token:     "ghs_via_app",
		ExpiresAt: time.Now().Add(time.Hour),
	})

	_, pemKey := testutil.GenerateRSAKey(t)
	app := auth.NewGitHubApp("12345", pemKey,
		auth.WithInstallation(42),
		auth.WithIssuer(NewIssuer(mock.URL(), mock.Client())),
		auth.WithAppLogger(logger.Nop()),
	)

	require.True(t, app.NeedsRefresh())
	require.NoError(t, app.Refresh(context.Background()))

	header, err := app.AuthorizationHeader()
	require.NoError(t, err)
	assert.Equal(t, "Bearer ghs_via_app", header)

	req, ok := mock.LastRequest()
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(req.Headers.Get("Authorization"), "Bearer ey"), "App JWT sent to issuer")
}
