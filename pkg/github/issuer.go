package github

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/go-github/v57/github"
	"github.com/rs/zerolog"

	"github.com/takutakahashi/ghclient/pkg/apierror"
	"github.com/takutakahashi/ghclient/pkg/auth"
	"github.com/takutakahashi/ghclient/pkg/logger"
	"github.com/takutakahashi/ghclient/pkg/utils"
)

// Issuer mints installation tokens through POST
// /app/installations/{id}/access_tokens. It implements auth.TokenIssuer.
type Issuer struct {
	apiBase    string
	httpClient *http.Client
	classifier *apierror.Classifier
	log        *zerolog.Logger

	// Repositories and Permissions narrow the minted token when set
	Repositories []string
	Permissions  *github.InstallationPermissions
}

// NewIssuer talks to apiBase with httpClient (nil means a 30s client)
func NewIssuer(apiBase string, httpClient *http.Client) *Issuer {
	if httpClient == nil {
		httpClient = utils.NewHTTPClient(utils.DefaultHTTPTimeout)
	}
	authed := apierror.StaticAuthState{Authenticated: true, Status: "Authenticated as a GitHub App (JWT)."}
	return &Issuer{
		apiBase:    apiBase,
		httpClient: httpClient,
		classifier: apierror.NewClassifier(authed),
		log:        logger.Named("issuer"),
	}
}

var _ auth.TokenIssuer = (*Issuer)(nil)

func (i *Issuer) CreateInstallationToken(ctx context.Context, appJWT string, installationID int64) (auth.InstallationToken, error) {
	client, err := NewAPIClient(i.httpClient, i.apiBase)
	if err != nil {
		return auth.InstallationToken{}, err
	}
	client = client.WithAuthToken(appJWT)

	var opts *github.InstallationTokenOptions
	if len(i.Repositories) > 0 || i.Permissions != nil {
		opts = &github.InstallationTokenOptions{Repositories: i.Repositories, Permissions: i.Permissions}
	}

	tok, _, err := client.Apps.CreateInstallationToken(ctx, installationID, opts)
	if err != nil {
		return auth.InstallationToken{}, classify(i.classifier, err)
	}

	i.log.Debug().Int64("installation_id", installationID).Time("expires_at", tok.GetExpiresAt().Time).Msg("minted installation token")
	return auth.InstallationToken{
		Token:               tok.GetToken(),
		ExpiresAt:           tok.GetExpiresAt().Time,
		Permissions:         permissionMap(tok.Permissions),
		RepositorySelection: tok.GetRepositorySelection(),
	}, nil
}

// permissionMap flattens go-github's permission struct into name -> level
func permissionMap(p *github.InstallationPermissions) map[string]string {
	if p == nil {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	out := map[string]string{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
