package auth

import "time"

// RefreshBuffer is how long before expiry an installation token is treated
// as stale
const RefreshBuffer = 5 * time.Minute

// InstallationToken is a short-lived token scoped to one App installation
type InstallationToken struct {
	Token               string            `json:"token"`
	ExpiresAt           time.Time         `json:"expires_at"`
	Permissions         map[string]string `json:"permissions,omitempty"`
	RepositorySelection string            `json:"repository_selection,omitempty"`
}

// IsExpiredAt is true once now reaches ExpiresAt
func (t InstallationToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// ExpiresInAt is the whole seconds left at now, rounded down, so any instant
// past expiry is negative
func (t InstallationToken) ExpiresInAt(now time.Time) int64 {
	d := t.ExpiresAt.Sub(now)
	secs := int64(d / time.Second)
	if d%time.Second < 0 {
		secs--
	}
	return secs
}

// NeedsRefreshAt is true from RefreshBuffer before ExpiresAt onward
func (t InstallationToken) NeedsRefreshAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt.Add(-RefreshBuffer))
}

func (t InstallationToken) IsExpired() bool { return t.IsExpiredAt(time.Now()) }

func (t InstallationToken) ExpiresIn() int64 { return t.ExpiresInAt(time.Now()) }

func (t InstallationToken) NeedsRefresh() bool { return t.NeedsRefreshAt(time.Now()) }
