package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takutakahashi/ghclient/pkg/apierror"
	"github.com/takutakahashi/ghclient/pkg/auth/testutil"
	"github.com/takutakahashi/ghclient/pkg/logger"
)

type fakeIssuer struct {
	token    InstallationToken
	err      error
	calls    int
	lastJWT  string
	lastInst int64
}

func (f *fakeIssuer) CreateInstallationToken(_ context.Context, appJWT string, installationID int64) (InstallationToken, error) {
	f.calls++
	f.lastJWT = appJWT
	f.lastInst = installationID
	return f.token, f.err
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestApp(t *testing.T, opts ...AppOption) (*GitHubApp, *rsa.PrivateKey) {
	t.Helper()
	key, pemKey := testutil.GenerateRSAKey(t)
	opts = append([]AppOption{WithAppLogger(logger.Nop())}, opts...)
	return NewGitHubApp("12345", pemKey, opts...), key
}

func parseAppJWT(t *testing.T, signed string, key *rsa.PrivateKey) *jwt.RegisteredClaims {
	t.Helper()
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(tok *jwt.Token) (any, error) {
		assert.Equal(t, jwt.SigningMethodRS256, tok.Method)
		return &key.PublicKey, nil
	}, jwt.WithoutClaimsValidation())
	require.NoError(t, err)
	require.True(t, token.Valid)
	return claims
}

func TestGitHubApp_JWTStructure(t *testing.T) {
	app, key := newTestApp(t)

	header, err := app.AuthorizationHeader()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(header, "Bearer "))

	claims := parseAppJWT(t, strings.TrimPrefix(header, "Bearer "), key)
	assert.Equal(t, "12345", claims.Issuer)
	require.NotNil(t, claims.IssuedAt)
	require.NotNil(t, claims.ExpiresAt)
	assert.Equal(t, int64(600), claims.ExpiresAt.Unix()-claims.IssuedAt.Unix())
	assert.Equal(t, TypeGitHubApp, app.Type())
}

func TestGitHubApp_AppLevelNeverNeedsRefresh(t *testing.T) {
	issuer := &fakeIssuer{}
	app, _ := newTestApp(t, WithIssuer(issuer))

	assert.False(t, app.NeedsRefresh())
	assert.NoError(t, app.Refresh(context.Background()))
	assert.Zero(t, issuer.calls)
}

func TestGitHubApp_MintsFreshJWTPerCall(t *testing.T) {
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	app, key := newTestApp(t, WithClock(c.Now))

	first, err := app.JWT()
	require.NoError(t, err)
	c.Advance(2 * time.Second)
	second, err := app.JWT()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, c.now.Unix(), parseAppJWT(t, second, key).IssuedAt.Unix())
}

func TestGitHubApp_InstallationLifecycle(t *testing.T) {
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	issuer := &fakeIssuer{token: InstallationToken{Token: "ghs_first", ExpiresAt: c.now.Add(time.Hour)}}
	app, key := newTestApp(t, WithInstallation(678), WithIssuer(issuer), WithClock(c.Now))

	// no token yet: interim App JWT
	assert.True(t, app.NeedsRefresh())
	header, err := app.AuthorizationHeader()
	require.NoError(t, err)
	assert.Equal(t, "12345", parseAppJWT(t, strings.TrimPrefix(header, "Bearer "), key).Issuer)

	require.NoError(t, app.Refresh(context.Background()))
	assert.Equal(t, 1, issuer.calls)
	assert.Equal(t, int64(678), issuer.lastInst)
	assert.Equal(t, "12345", parseAppJWT(t, issuer.lastJWT, key).Issuer)

	assert.False(t, app.NeedsRefresh())
	header, err = app.AuthorizationHeader()
	require.NoError(t, err)
	assert.Equal(t, "Bearer ghs_first", header)

	tok, ok := app.InstallationToken()
	require.True(t, ok)
	assert.Equal(t, "ghs_first", tok.Token)

	// into the buffer
	c.Advance(55 * time.Minute)
	assert.True(t, app.NeedsRefresh())
	header, err = app.AuthorizationHeader()
	require.NoError(t, err)
	assert.NotEqual(t, "Bearer ghs_first", header)

	issuer.token = InstallationToken{Token: "ghs_second", ExpiresAt: c.now.Add(time.Hour)}
	require.NoError(t, app.Refresh(context.Background()))
	header, err = app.AuthorizationHeader()
	require.NoError(t, err)
	assert.Equal(t, "Bearer ghs_second", header)
}

func TestGitHubApp_RefreshBoundary(t *testing.T) {
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	app, _ := newTestApp(t, WithInstallation(1), WithClock(c.Now))

	app.SetInstallationToken(InstallationToken{Token: "ghs_x", ExpiresAt: c.now.Add(5*time.Minute + time.Second)})
	assert.False(t, app.NeedsRefresh())

	app.SetInstallationToken(InstallationToken{Token: "ghs_x", ExpiresAt: c.now.Add(5 * time.Minute)})
	assert.True(t, app.NeedsRefresh())
}

func TestGitHubApp_RefreshWithoutIssuer(t *testing.T) {
	app, _ := newTestApp(t, WithInstallation(678))

	err := app.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apierror.IsAuthentication(err))
	assert.Contains(t, err.Error(), "SetInstallationToken")

	_, ok := app.InstallationToken()
	assert.False(t, ok)
}

func TestGitHubApp_RefreshIssuerFailure(t *testing.T) {
	t.Run("plain error is wrapped", func(t *testing.T) {
		boom := errors.New("boom")
		app, _ := newTestApp(t, WithInstallation(1), WithIssuer(&fakeIssuer{err: boom}))

		err := app.Refresh(context.Background())
		assert.True(t, apierror.IsAuthentication(err))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("classified error passes through", func(t *testing.T) {
		notFound := apierror.New(apierror.KindNotFound, "Resource not found")
		app, _ := newTestApp(t, WithInstallation(1), WithIssuer(&fakeIssuer{err: notFound}))

		err := app.Refresh(context.Background())
		assert.True(t, apierror.IsNotFound(err))
	})

	t.Run("empty token", func(t *testing.T) {
		app, _ := newTestApp(t, WithInstallation(1), WithIssuer(&fakeIssuer{}))
		assert.Error(t, app.Refresh(context.Background()))
		_, ok := app.InstallationToken()
		assert.False(t, ok)
	})
}

func TestGitHubApp_Validate(t *testing.T) {
	_, pemKey := testutil.GenerateRSAKey(t)
	_, pkcs8 := testutil.GeneratePKCS8Key(t)

	tests := []struct {
		name    string
		appID   string
		key     string
		wantErr string
	}{
		{name: "raw pem", appID: "12345", key: pemKey},
		{name: "pkcs8 pem", appID: "12345", key: pkcs8},
		{name: "base64 pem", appID: "12345", key: base64.StdEncoding.EncodeToString([]byte(pemKey))},
		{name: "missing app id", key: pemKey, wantErr: "App ID is required"},
		{name: "non-numeric app id", appID: "my-app", key: pemKey, wantErr: "positive number"},
		{name: "zero app id", appID: "0", key: pemKey, wantErr: "positive number"},
		{name: "signed app id", appID: "+12345", key: pemKey, wantErr: "positive number"},
		{name: "negative app id", appID: "-1", key: pemKey, wantErr: "positive number"},
		{name: "padded app id", appID: " 12345", key: pemKey, wantErr: "positive number"},
		{name: "missing key", appID: "12345", wantErr: "private key is required"},
		{name: "garbage key", appID: "12345", key: "not a key!", wantErr: "not a valid RSA PEM"},
		{name: "base64 garbage", appID: "12345", key: base64.StdEncoding.EncodeToString([]byte("nope")), wantErr: "not a valid RSA PEM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewGitHubApp(tt.appID, tt.key, WithAppLogger(logger.Nop())).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apierror.IsAuthentication(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGitHubApp_InvalidKeyHeader(t *testing.T) {
	_, err := NewGitHubApp("12345", "garbage", WithAppLogger(logger.Nop())).AuthorizationHeader()
	assert.True(t, apierror.IsAuthentication(err))
}

func TestDescribe(t *testing.T) {
	app, _ := newTestApp(t)
	inst, _ := newTestApp(t, WithInstallation(9))
	oauth := newTestOAuth("")

	assert.Equal(t, "anonymous", Describe(nil))
	assert.Equal(t, "static token (personal access token)", Describe(NewStaticToken("ghp_1234567890abcdef")))
	assert.Equal(t, "OAuth App Iv1.client (no token yet)", Describe(oauth))
	oauth.SetAccessToken("gho_x")
	assert.Equal(t, "OAuth App Iv1.client (user token)", Describe(oauth))
	assert.Equal(t, "GitHub App 12345 (app JWT)", Describe(app))
	assert.Equal(t, "GitHub App 12345 installation 9", Describe(inst))
}
