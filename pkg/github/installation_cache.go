package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	ghinstallation "github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/rs/zerolog"

	"github.com/takutakahashi/ghclient/pkg/apierror"
	"github.com/takutakahashi/ghclient/pkg/logger"
)

// DefaultInstallationTTL is how long a discovered installation id is reused
const DefaultInstallationTTL = 24 * time.Hour

// installationCacheEntry represents a cached installation ID with expiration time
type installationCacheEntry struct {
	installationID int64
	expiresAt      time.Time
}

// InstallationCache finds the App installation that covers a repository and
// remembers the answer
type InstallationCache struct {
	appID   int64
	pemData []byte
	apiBase string
	base    http.RoundTripper

	// key = "{appID}:{owner}/{repo}" -> installationID
	repoCache sync.Map
	// key = "{appID}:{org}" -> installationID
	orgCache sync.Map

	ttl        time.Duration
	now        func() time.Time
	classifier *apierror.Classifier
	log        *zerolog.Logger
}

// CacheOption configures an InstallationCache
type CacheOption func(*InstallationCache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *InstallationCache) { c.ttl = ttl }
}

func WithAPIBase(apiBase string) CacheOption {
	return func(c *InstallationCache) { c.apiBase = strings.TrimSuffix(apiBase, "/") }
}

// WithTransport sets the round tripper under the App JWT transport
func WithTransport(rt http.RoundTripper) CacheOption {
	return func(c *InstallationCache) { c.base = rt }
}

func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *InstallationCache) { c.now = now }
}

// NewInstallationCache looks installations up as App appID signing with pemData
func NewInstallationCache(appID int64, pemData []byte, opts ...CacheOption) *InstallationCache {
	c := &InstallationCache{
		appID:   appID,
		pemData: pemData,
		apiBase: DefaultAPIBase,
		base:    http.DefaultTransport,
		ttl:     DefaultInstallationTTL,
		now:     time.Now,
		classifier: apierror.NewClassifier(apierror.StaticAuthState{
			Authenticated: true,
			Status:        "Authenticated as a GitHub App (JWT).",
		}),
		log: logger.Named("installation_cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetInstallationID returns the installation id for repoFullName, given as
// owner/repo or a git remote URL
func (c *InstallationCache) GetInstallationID(ctx context.Context, repoFullName string) (int64, error) {
	owner, repo, err := ParseRepository(repoFullName)
	if err != nil {
		return 0, apierror.Wrap(err, apierror.KindValidation, "invalid repository, expected 'owner/repo'")
	}

	repoKey := fmt.Sprintf("%d:%s/%s", c.appID, owner, repo)
	if id, found := c.get(&c.repoCache, repoKey); found {
		c.log.Debug().Str("repository", repoFullName).Int64("installation_id", id).Msg("cache hit")
		return id, nil
	}

	orgKey := fmt.Sprintf("%d:%s", c.appID, owner)
	if id, found := c.get(&c.orgCache, orgKey); found {
		c.log.Debug().Str("owner", owner).Int64("installation_id", id).Msg("owner cache hit")
		c.set(&c.repoCache, repoKey, id)
		return id, nil
	}

	id, err := c.discover(ctx, owner, repo)
	if err != nil {
		return 0, err
	}
	c.set(&c.repoCache, repoKey, id)
	c.set(&c.orgCache, orgKey, id)
	c.log.Info().Str("repository", repoFullName).Int64("installation_id", id).Msg("discovered installation")
	return id, nil
}

// discover asks GitHub for the repository's installation, falling back to the
// owner's organization installation
func (c *InstallationCache) discover(ctx context.Context, owner, repo string) (int64, error) {
	transport, err := ghinstallation.NewAppsTransport(c.base, c.appID, c.pemData)
	if err != nil {
		return 0, apierror.Wrap(err, apierror.KindAuthentication, "failed to create GitHub App transport")
	}
	transport.BaseURL = c.apiBase

	client, err := NewAPIClient(&http.Client{Transport: transport}, c.apiBase)
	if err != nil {
		return 0, err
	}

	inst, _, err := client.Apps.FindRepositoryInstallation(ctx, owner, repo)
	if err == nil {
		return inst.GetID(), nil
	}
	repoErr := classify(c.classifier, err)
	if !apierror.IsNotFound(repoErr) {
		return 0, repoErr
	}

	c.log.Debug().Str("owner", owner).Str("repo", repo).Msg("no repository installation, trying organization")
	inst, _, err = client.Apps.FindOrganizationInstallation(ctx, owner)
	if err != nil {
		orgErr := classify(c.classifier, err)
		if apierror.IsNotFound(orgErr) {
			return 0, apierror.Newf(apierror.KindNotFound,
				"no installation of GitHub App %d found for %s/%s; install the App on the repository or its owner", c.appID, owner, repo).
				AddContext("owner", owner).
				AddContext("repo", repo)
		}
		return 0, orgErr
	}
	return inst.GetID(), nil
}

func (c *InstallationCache) get(m *sync.Map, key string) (int64, bool) {
	entry, exists := m.Load(key)
	if !exists {
		return 0, false
	}
	cacheEntry, ok := entry.(installationCacheEntry)
	if !ok || !c.now().Before(cacheEntry.expiresAt) {
		m.Delete(key)
		return 0, false
	}
	return cacheEntry.installationID, true
}

func (c *InstallationCache) set(m *sync.Map, key string, id int64) {
	m.Store(key, installationCacheEntry{installationID: id, expiresAt: c.now().Add(c.ttl)})
}

// ClearCache clears all cached entries
func (c *InstallationCache) ClearCache() {
	c.repoCache.Clear()
	c.orgCache.Clear()
}

// GetCacheStats returns cache statistics for debugging
func (c *InstallationCache) GetCacheStats() (repoCount, orgCount int) {
	c.repoCache.Range(func(_, _ any) bool {
		repoCount++
		return true
	})
	c.orgCache.Range(func(_, _ any) bool {
		orgCount++
		return true
	})
	return repoCount, orgCount
}
