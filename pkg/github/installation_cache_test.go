package github

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takutakahashi/ghclient/pkg/apierror"
	"github.com/takutakahashi/ghclient/pkg/auth/testutil"
)

func newTestCache(t *testing.T, mock *testutil.GitHubMockServer, opts ...CacheOption) *InstallationCache {
	t.Helper()
	_, pemKey := testutil.GenerateRSAKey(t)
	opts = append([]CacheOption{WithAPIBase(mock.URL())}, opts...)
	return NewInstallationCache(12345, []byte(pemKey), opts...)
}

func countRequests(mock *testutil.GitHubMockServer, path string) int {
	n := 0
	for _, r := range mock.GetRequestLog() {
		if r.Path == path {
			n++
		}
	}
	return n
}

func TestInstallationCache_RepositoryInstallation(t *testing.T) {
	mock := testutil.NewGitHubMockServer()
	defer mock.Close()
	mock.SetRepoInstallation("octo/hello", 111)

	cache := newTestCache(t, mock)
	id, err := cache.GetInstallationID(context.Background(), "octo/hello")
	require.NoError(t, err)
	assert.Equal(t, int64(111), id)

	// second lookup is served from cache
	id, err = cache.GetInstallationID(context.Background(), "octo/hello")
	require.NoError(t, err)
	assert.Equal(t, int64(111), id)
	assert.Equal(t, 1, countRequests(mock, "/repos/octo/hello/installation"))

	repos, orgs := cache.GetCacheStats()
	assert.Equal(t, 1, repos)
	assert.Equal(t, 1, orgs)
}

func TestInstallationCache_FallsBackToOrganization(t *testing.T) {
	mock := testutil.NewGitHubMockServer()
	defer mock.Close()
	mock.SetOrgInstallation("octo", 222)

	cache := newTestCache(t, mock)
	id, err := cache.GetInstallationID(context.Background(), "octo/private")
	require.NoError(t, err)
	assert.Equal(t, int64(222), id)

	// a sibling repository reuses the owner entry
	id, err = cache.GetInstallationID(context.Background(), "octo/other")
	require.NoError(t, err)
	assert.Equal(t, int64(222), id)
	assert.Equal(t, 1, countRequests(mock, "/orgs/octo/installation"))
}

func TestInstallationCache_NotInstalled(t *testing.T) {
	mock := testutil.NewGitHubMockServer()
	defer mock.Close()

	_, err := newTestCache(t, mock).GetInstallationID(context.Background(), "nobody/nothing")
	require.Error(t, err)
	assert.True(t, apierror.IsNotFound(err))
	assert.Contains(t, err.Error(), "install the App")
}

func TestInstallationCache_ServerErrorDoesNotFallBack(t *testing.T) {
	mock := testutil.NewGitHubMockServer()
	defer mock.Close()
	mock.SetupServerError("/repos/octo/hello/installation", http.StatusBadGateway)
	mock.SetOrgInstallation("octo", 222)

	_, err := newTestCache(t, mock).GetInstallationID(context.Background(), "octo/hello")
	assert.True(t, apierror.IsNetwork(err))
	assert.Zero(t, countRequests(mock, "/orgs/octo/installation"))
}

func TestInstallationCache_TTLExpiry(t *testing.T) {
	mock := testutil.NewGitHubMockServer()
	defer mock.Close()
	mock.SetRepoInstallation("octo/hello", 111)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := newTestCache(t, mock, WithTTL(time.Minute), WithCacheClock(func() time.Time { return now }))

	_, err := cache.GetInstallationID(context.Background(), "octo/hello")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = cache.GetInstallationID(context.Background(), "octo/hello")
	require.NoError(t, err)
	assert.Equal(t, 2, countRequests(mock, "/repos/octo/hello/installation"))
}

func TestInstallationCache_ClearCache(t *testing.T) {
	mock := testutil.NewGitHubMockServer()
	defer mock.Close()
	mock.SetRepoInstallation("octo/hello", 111)

	cache := newTestCache(t, mock)
	_, err := cache.GetInstallationID(context.Background(), "octo/hello")
	require.NoError(t, err)

	cache.ClearCache()
	repos, orgs := cache.GetCacheStats()
	assert.Zero(t, repos)
	assert.Zero(t, orgs)
}

func TestInstallationCache_RemoteURLs(t *testing.T) {
	mock := testutil.NewGitHubMockServer()
	defer mock.Close()
	mock.SetRepoInstallation("octo/hello", 111)

	cache := newTestCache(t, mock)
	for _, name := range []string{
		"git@github.com:octo/hello.git",
		"https://github.com/octo/hello.git",
		"octo/hello",
	} {
		id, err := cache.GetInstallationID(context.Background(), name)
		require.NoError(t, err, name)
		assert.Equal(t, int64(111), id, name)
	}
	// every form shares one cache entry
	assert.Equal(t, 1, countRequests(mock, "/repos/octo/hello/installation"))
}

func TestInstallationCache_InvalidName(t *testing.T) {
	mock := testutil.NewGitHubMockServer()
	defer mock.Close()

	cache := newTestCache(t, mock)
	for _, name := range []string{"", "octo", "octo/", "/hello", "a/b/c"} {
		_, err := cache.GetInstallationID(context.Background(), name)
		assert.True(t, apierror.IsValidation(err), name)
	}
}

func TestInstallationCache_BadKey(t *testing.T) {
	mock := testutil.NewGitHubMockServer()
	defer mock.Close()

	cache := NewInstallationCache(1, []byte("not a pem"), WithAPIBase(mock.URL()))
	_, err := cache.GetInstallationID(context.Background(), "octo/hello")
	assert.True(t, apierror.IsAuthentication(err))
}
